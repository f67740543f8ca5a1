package auth

import "context"

// Scopes recognized by the API.
const (
	// ScopeOrdersWrite allows placing orders and validating coupons.
	ScopeOrdersWrite = "orders:write"
	// ScopeOrdersAdmin allows order status transitions.
	ScopeOrdersAdmin = "orders:admin"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID is the platform user the key acts on behalf of; it becomes the
// order owner and the subject of per-user coupon limits.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Package notify delivers order-confirmation jobs to the notification
// dispatcher over AMQP. Delivery is best effort by contract: the order
// service logs and swallows any error returned from here.
package notify

import (
	"context"

	"github.com/marketlane/checkout/internal/domain/order"
)

// Nop discards confirmations. Used when no AMQP broker is configured, e.g.
// in local development and unit tests.
type Nop struct{}

// OrderConfirmed implements order.Notifier by doing nothing.
func (Nop) OrderConfirmed(context.Context, order.Confirmation) error {
	return nil
}

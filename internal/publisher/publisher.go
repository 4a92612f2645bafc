// Package publisher defines the notification fan-out used for fraud alerts.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Package messaging delivers outbound customer messages through the WhatsApp
// Business API.
package messaging

import "context"

// Sender delivers a message to an E.164 phone number and returns the
// provider's message id.
type Sender interface {
	SendTemplate(ctx context.Context, phone, template string, params []string) (string, error)
	SendText(ctx context.Context, phone, body string) (string, error)
}

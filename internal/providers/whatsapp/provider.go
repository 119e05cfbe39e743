package whatsapp

import "context"

// Provider sends outbound text messages over the messaging platform.
type Provider interface {
	SendText(ctx context.Context, to string, body string) error
}

// NoOpProvider is used when no access token is configured, which keeps
// local development from needing platform credentials. Sends succeed
// silently.
type NoOpProvider struct{}

func (p *NoOpProvider) SendText(ctx context.Context, to string, body string) error {
	return nil
}

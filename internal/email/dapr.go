package email

import (
	"context"
	"fmt"

	dapr "github.com/dapr/go-sdk/client"
)

// bindingInvoker is the slice of dapr.Client the sender needs.
type bindingInvoker interface {
	InvokeBinding(ctx context.Context, in *dapr.InvokeBindingRequest) (*dapr.BindingEvent, error)
}

// DaprSender hands the message to a Dapr output binding (postmark, smtp,
// sendgrid, ...). The sidecar owns credentials and delivery.
type DaprSender struct {
	client  bindingInvoker
	binding string
	sender  string
}

func NewDaprSender(client dapr.Client, binding, sender string) *DaprSender {
	return &DaprSender{client: client, binding: binding, sender: sender}
}

func (s *DaprSender) SendEmail(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	body := htmlBody
	if body == "" {
		body = textBody
	}

	_, err := s.client.InvokeBinding(ctx, &dapr.InvokeBindingRequest{
		Name:      s.binding,
		Operation: "create",
		Data:      []byte(body),
		Metadata: map[string]string{
			"emailFrom": s.sender,
			"emailTo":   recipient,
			"subject":   subject,
		},
	})
	if err != nil {
		return fmt.Errorf("invoke dapr binding %s: %w", s.binding, err)
	}
	return nil
}

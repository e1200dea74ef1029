package notifier

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

type SendGrid struct {
	from   string
	to     string
	client sendgridClient
}

func NewSendGrid(apiKey, from, to string) *SendGrid {
	return &SendGrid{from: from, to: to, client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGrid) Name() string { return "sendgrid" }

func (s *SendGrid) Send(ctx context.Context, subject, body string) error {
	from := sgmail.NewEmail("healthwatch", s.from)
	to := sgmail.NewEmail("On-call", s.to)
	msg := sgmail.NewSingleEmail(from, subject, to, body, "")
	res, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

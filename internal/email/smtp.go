// Package email notifies operators about qualified leads over SMTP.
package email

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers operator notifications through the configured SMTP
// server using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	toEmail   string
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName, toEmail string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
		toEmail:   toEmail,
	}
}

var handoffTemplate = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Novo lead aguardando atendimento humano</h2>
  <pre style="background: #f4f4f4; padding: 12px; border-radius: 4px; white-space: pre-wrap;">{{.Notice}}</pre>
</body>
</html>`))

// Send delivers the operator notice as an HTML e-mail. The notice text is
// the same one posted to the operator WhatsApp channel.
func (s *SMTPSender) Send(ctx context.Context, notice string) error {
	var body strings.Builder
	if err := handoffTemplate.Execute(&body, struct{ Notice string }{Notice: notice}); err != nil {
		return fmt.Errorf("render handoff email: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject("Novo lead - atendimento humano")
	msg.SetBodyString(gomail.TypeTextHTML, body.String())

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

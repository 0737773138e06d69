package handoff

import "context"

// WhatsAppSender is the outbound surface needed to reach the operator line.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// WhatsAppNotifier posts operator notices to a fixed WhatsApp number.
type WhatsAppNotifier struct {
	sender WhatsAppSender
	number string
}

func NewWhatsAppNotifier(sender WhatsAppSender, number string) *WhatsAppNotifier {
	return &WhatsAppNotifier{sender: sender, number: number}
}

func (n *WhatsAppNotifier) Send(ctx context.Context, notice string) error {
	return n.sender.SendMessage(ctx, n.number, notice)
}

package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/ManuelReschke/AssetVault/internal/pkg/billing"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Olá {{.Name}},</p>
<p>Recebemos o pagamento do pedido <strong>{{.OrderID}}</strong>.</p>
<p>{{.Description}}: <strong>{{.Amount}}</strong></p>
{{if .ReceiptURL}}<p><a href="{{.ReceiptURL}}">Ver comprovante</a></p>{{end}}
<p>A sua assinatura já está ativa. Bons downloads!</p>`))

var rejectionTmpl = template.Must(template.New("rejection").Parse(`<p>Olá {{.Name}},</p>
<p>O pagamento do pedido <strong>{{.OrderID}}</strong> ({{.Description}}, {{.Amount}}) não foi aprovado.</p>
<p>{{.RejectionReason}}</p>
<p><small>Código: {{.StatusDetail}}</small></p>`))

// Sender is the subset of SMTPMailer used by PaymentNotifier.
type Sender interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// PaymentNotifier renders payment emails and hands them to a Sender.
type PaymentNotifier struct {
	sender Sender
}

var _ billing.Notifier = (*PaymentNotifier)(nil)

func NewPaymentNotifier(sender Sender) *PaymentNotifier {
	return &PaymentNotifier{sender: sender}
}

func (n *PaymentNotifier) SendPaymentConfirmation(ctx context.Context, c billing.Confirmation) error {
	body, err := render(confirmationTmpl, struct {
		billing.Confirmation
		Amount string
	}{c, FormatBRL(c.AmountCents)})
	if err != nil {
		return err
	}
	return n.sender.SendMail(ctx, c.To, "Pagamento aprovado - pedido "+c.OrderID, body)
}

func (n *PaymentNotifier) SendPaymentRejection(ctx context.Context, r billing.Rejection) error {
	body, err := render(rejectionTmpl, struct {
		billing.Rejection
		Amount string
	}{r, FormatBRL(r.AmountCents)})
	if err != nil {
		return err
	}
	return n.sender.SendMail(ctx, r.To, "Pagamento não aprovado - pedido "+r.OrderID, body)
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// FormatBRL formats cents as "R$ 1.234,56".
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b []byte
	for i, d := range []byte(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b = append(b, '.')
		}
		b = append(b, d)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b, cents%100)
}

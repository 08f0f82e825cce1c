package export

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/sjawhar/pitchspeak/internal/estimate"
)

var ErrInvalidRecipient = errors.New("invalid email recipient")

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Mailer sends estimation reports through Resend with the PDF attached.
type Mailer struct {
	from   string
	emails emailSender
	now    func() time.Time
}

func NewMailer(apiKey, from string) *Mailer {
	client := resend.NewClient(apiKey)
	return newMailer(client.Emails, from)
}

func newMailer(emails emailSender, from string) *Mailer {
	return &Mailer{from: from, emails: emails, now: time.Now}
}

// Send emails the report for rec to a single recipient and returns the
// provider message id.
func (m *Mailer) Send(ctx context.Context, to string, rec estimate.Record, pdf []byte) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}

	req := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{addr.Address},
		Subject: "Your project estimation report",
		Html:    emailHTML(rec),
		Text:    emailText(rec),
	}
	if len(pdf) > 0 {
		req.Attachments = []*resend.Attachment{{
			Content:     pdf,
			Filename:    PDFFilename(m.now()),
			ContentType: "application/pdf",
		}}
	}

	resp, err := m.emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return resp.Id, nil
}

func emailText(rec estimate.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", rec.ProjectSummary)
	fmt.Fprintf(&b, "Complexity: %s\nTimeframe: %s\n", rec.Estimation.Complexity, rec.Estimation.Timeframe)
	if rec.Estimation.Cost != "" {
		fmt.Fprintf(&b, "Estimated Cost: %s\n", rec.Estimation.Cost)
	}
	b.WriteString("\nThe full report is attached.\n")
	return b.String()
}

func emailHTML(rec estimate.Record) string {
	var b strings.Builder
	b.WriteString("<h1>Project Estimation Report</h1>")
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(rec.ProjectSummary))
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li><strong>Complexity:</strong> %s</li>", html.EscapeString(rec.Estimation.Complexity))
	fmt.Fprintf(&b, "<li><strong>Timeframe:</strong> %s</li>", html.EscapeString(rec.Estimation.Timeframe))
	if rec.Estimation.Cost != "" {
		fmt.Fprintf(&b, "<li><strong>Estimated Cost:</strong> %s</li>", html.EscapeString(rec.Estimation.Cost))
	}
	b.WriteString("</ul>")
	if len(rec.Estimation.Features) > 0 {
		b.WriteString("<h2>Key Features</h2><ol>")
		for _, feature := range rec.Estimation.Features {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(feature))
		}
		b.WriteString("</ol>")
	}
	b.WriteString("<p>The full report is attached.</p>")
	return b.String()
}

package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesRenderEveryKind(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)

	for _, kind := range []string{
		"waiting_for_vet", "new_request", "accepted", "declined", "time_proposed",
		"proposal_accepted", "proposal_declined", "started", "completed", "cancelled",
	} {
		t.Run(kind, func(t *testing.T) {
			msg, err := tmpl.Render(kind, Data{
				RecipientName:    "Sam",
				Title:            "Visit update",
				Body:             "Something happened to Rex.",
				PetName:          "Rex",
				Date:             "2026-11-02",
				TimeSlot:         "09:00",
				ProposedDate:     "2026-11-03",
				ProposedTimeSlot: "10:00",
				TotalCents:       12050,
				Currency:         "usd",
				AppointmentURL:   "https://vetcall.test/appointments/a1",
			})
			require.NoError(t, err)
			assert.Equal(t, "VetCall: Visit update", msg.Subject)
			assert.Contains(t, msg.HTML, "Hi Sam,")
			assert.Contains(t, msg.HTML, "Something happened to Rex.")
			assert.Contains(t, msg.HTML, "https://vetcall.test/appointments/a1")
			assert.Contains(t, msg.Text, "https://vetcall.test/appointments/a1")
		})
	}
}

func TestTemplatesFallBackToGeneric(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)

	msg, err := tmpl.Render("something_new", Data{Title: "Heads up", Body: "Body text"})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "<h2>Heads up</h2>")
	assert.NotContains(t, msg.HTML, "View appointment")
}

func TestTemplatesEscapeUserText(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)

	msg, err := tmpl.Render("time_proposed", Data{Title: "t", Body: "b", Message: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "120.05 USD", Data{TotalCents: 12005, Currency: "usd"}.Amount())
	assert.Empty(t, Data{}.Amount())
}

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestSender(cfg SMTPConfig, out *[]captured) *SMTPSender {
	s := NewSMTPSender(cfg)
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		*out = append(*out, captured{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return s
}

func TestSMTPSenderBuildsMultipartMessage(t *testing.T) {
	var sent []captured
	s := newTestSender(SMTPConfig{Host: "mailpit", Port: "1025"}, &sent)

	require.NoError(t, s.Send(context.Background(), Message{To: "sam@example.com", Subject: "VetCall: Visit confirmed", HTML: "<p>hi</p>", Text: "hi"}))
	require.Len(t, sent, 1)
	assert.Equal(t, "mailpit:1025", sent[0].addr)
	assert.Equal(t, "no-reply@vetcall.local", sent[0].from)
	assert.Equal(t, []string{"sam@example.com"}, sent[0].to)
	assert.Contains(t, sent[0].msg, "multipart/alternative")
	assert.Contains(t, sent[0].msg, "Content-Type: text/html; charset=utf-8\r\n\r\n<p>hi</p>")
	assert.True(t, strings.HasSuffix(sent[0].msg, "--"+boundary+"--\r\n"))
}

func TestSMTPSenderIsRateLimited(t *testing.T) {
	var sent []captured
	s := newTestSender(SMTPConfig{Host: "mailpit", Port: "1025", PerMinute: 1}, &sent)

	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Send(ctx, Message{To: "b@example.com"})
	require.Error(t, err)
	assert.Len(t, sent, 1)
}

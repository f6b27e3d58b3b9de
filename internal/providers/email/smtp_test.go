package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEscapesValues(t *testing.T) {
	body, err := Render("rejected", map[string]any{
		"recipient_name": "Ana",
		"approver":       "<b>boss@example.com</b>",
		"title":          "Laptops",
		"amount":         "$100.00",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Hello Ana")
	assert.Contains(t, body, "&lt;b&gt;boss@example.com&lt;/b&gt;")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestSendTemplateUsesSubject(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.test", Port: 25, From: "noreply@test"})
	var captured []byte
	var rcpt []string
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.test:25", addr)
		assert.Nil(t, a)
		captured = msg
		rcpt = to
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"a@test"}, "approved", map[string]any{
		"subject": "Purchase Request Approved - Laptops",
		"title":   "Laptops",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@test"}, rcpt)
	assert.Contains(t, string(captured), "Subject: Purchase Request Approved - Laptops")
}

func TestSendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.test", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

package mail

import (
	"strings"
	"testing"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/replyparse"
	"github.com/clawplaza/clawlink/internal/transport"
)

func TestRenderTemplateMatchesParser(t *testing.T) {
	p := transport.Payload{
		Subject:   "widget is waiting for you",
		Body:      "The assistant finished and is waiting for input.",
		Token:     "ABCDEFGH",
		SessionID: "123e4567-e89b-12d3-a456-426614174000",
	}
	subject := renderSubject(p)
	body := renderBody(p)

	if !strings.Contains(subject, "[ClawLink #ABCDEFGH]") {
		t.Errorf("subject missing token tag: %q", subject)
	}
	if !strings.Contains(body, "Session ID: 123e4567-e89b-12d3-a456-426614174000") {
		t.Errorf("body missing session line: %q", body)
	}

	// The outbound template and the reply parser agree: a reply quoting
	// this notification resolves to the same token, with the quoted
	// template stripped.
	quoted := "On Sun, Jun 1, 2025 at 12:00 PM ClawLink <bot@example.com> wrote:\n> " +
		strings.ReplaceAll(body, "\n", "\n> ")
	parsed, err := replyparse.ParseEmail(replyparse.Message{
		Subject: "Re: " + subject,
		Body:    "run the next step\n\n" + quoted,
	})
	if err != nil {
		t.Fatalf("ParseEmail on rendered template: %v", err)
	}
	if parsed.Token != "ABCDEFGH" {
		t.Errorf("token = %q", parsed.Token)
	}
	if parsed.Command != "run the next step" {
		t.Errorf("command = %q", parsed.Command)
	}
}

func TestAuthenticateWhitelist(t *testing.T) {
	tr := New(config.MailConfig{
		To:             "op@example.com",
		AllowedSenders: []string{"Op@Example.com", "backup@example.com"},
	})
	cases := []struct {
		sender string
		ok     bool
	}{
		{"op@example.com", true},
		{"OP@EXAMPLE.COM", true},
		{"backup@example.com", true},
		{"mallory@example.com", false},
	}
	for _, tc := range cases {
		if got := tr.Authenticate(transport.Message{Sender: tc.sender}); got.OK != tc.ok {
			t.Errorf("Authenticate(%q).OK = %v, want %v", tc.sender, got.OK, tc.ok)
		}
	}
}

func TestAuthenticateDefaultsToOperator(t *testing.T) {
	tr := New(config.MailConfig{To: "op@example.com"})
	if !tr.Authenticate(transport.Message{Sender: "op@example.com"}).OK {
		t.Error("operator address rejected with empty whitelist")
	}
	if tr.Authenticate(transport.Message{Sender: "other@example.com"}).OK {
		t.Error("stranger accepted with empty whitelist")
	}
}

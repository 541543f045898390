package linebot

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/transport"
)

func testTransport() *Transport {
	return New(config.LineConfig{
		ChannelSecret: "secret",
		ChannelToken:  "token",
		AllowedIDs:    []string{"U1234"},
	}, log.New(io.Discard, "", 0))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const webhookJSON = `{
  "events": [
    {
      "type": "message",
      "message": {"type": "text", "id": "m1", "text": "/cmd ABCDEFGH run tests"},
      "source": {"type": "user", "userId": "U1234"},
      "replyToken": "rt-1",
      "timestamp": 1717243200000
    }
  ]
}`

func TestVerifySignature(t *testing.T) {
	body := []byte("payload")
	good := sign("secret", body)
	if !VerifySignature("secret", body, good) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("secret", body, sign("other", body)) {
		t.Error("signature from wrong secret accepted")
	}
	if VerifySignature("secret", []byte("tampered"), good) {
		t.Error("signature over different body accepted")
	}
}

func TestWebhookSignatureMismatchIs401(t *testing.T) {
	tr := testTransport()
	srv := httptest.NewServer(tr.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook/line", bytes.NewBufferString(webhookJSON))
	req.Header.Set(signatureHeader, "bogus")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	msgs, _, _ := tr.Poll(req.Context(), "")
	if len(msgs) != 0 {
		t.Errorf("unsigned message buffered: %+v", msgs)
	}
}

func TestWebhookBuffersAndPollDrains(t *testing.T) {
	tr := testTransport()
	srv := httptest.NewServer(tr.Router())
	defer srv.Close()

	body := []byte(webhookJSON)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook/line", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("secret", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	msgs, next, err := tr.Poll(req.Context(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.Sender != "U1234" || m.Body != "/cmd ABCDEFGH run tests" || m.ReplyRef != "rt-1" {
		t.Errorf("message = %+v", m)
	}
	if next != "1" {
		t.Errorf("cursor = %q, want 1", next)
	}

	// Drained: the same poll again yields nothing.
	msgs, _, _ = tr.Poll(req.Context(), next)
	if len(msgs) != 0 {
		t.Errorf("second poll returned %d messages", len(msgs))
	}
}

func TestAuthenticateWhitelist(t *testing.T) {
	tr := testTransport()
	if res := tr.Authenticate(transport.Message{Sender: "U1234"}); !res.OK {
		t.Errorf("whitelisted sender rejected: %s", res.Reason)
	}
	if res := tr.Authenticate(transport.Message{Sender: "U9999"}); res.OK {
		t.Error("unlisted sender accepted")
	}
}

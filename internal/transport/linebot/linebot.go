// Package linebot implements the LINE Messaging API transport: a signed
// webhook for inbound commands and the reply/push endpoints for outbound
// notifications.
//
// Inbound is webhook-driven rather than polled: the HTTP handler verifies
// the channel signature, buffers events, and Poll drains the buffer. The
// signature is HMAC-SHA256 of the raw request body keyed by the channel
// secret, base64-encoded; mismatches are answered 401 before any content is
// trusted.
package linebot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/transport"
)

const (
	signatureHeader = "X-Line-Signature"
	replyEndpoint   = "https://api.line.me/v2/bot/message/reply"
	pushEndpoint    = "https://api.line.me/v2/bot/message/push"
)

// webhookBody is the LINE webhook payload shape.
type webhookBody struct {
	Events []struct {
		Type    string `json:"type"`
		Message struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"message"`
		Source struct {
			Type    string `json:"type"`
			UserID  string `json:"userId"`
			GroupID string `json:"groupId"`
		} `json:"source"`
		ReplyToken string `json:"replyToken"`
		Timestamp  int64  `json:"timestamp"`
	} `json:"events"`
}

// Transport is the LINE adapter.
type Transport struct {
	cfg    config.LineConfig
	logger *log.Logger
	client *http.Client

	mu      sync.Mutex
	pending []transport.Message
}

// New builds the LINE transport.
func New(cfg config.LineConfig, logger *log.Logger) *Transport {
	return &Transport{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements transport.Inbound and transport.Outbound.
func (t *Transport) Name() string { return "line" }

// Router returns the HTTP routes the daemon mounts for this transport.
func (t *Transport) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook/line", t.handleWebhook).Methods(http.MethodPost)
	return r
}

// ListenAddr returns the configured webhook bind address.
func (t *Transport) ListenAddr() string { return t.cfg.Listen }

// VerifySignature checks the channel signature over the raw body.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// handleWebhook verifies and buffers inbound events.
func (t *Transport) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if !VerifySignature(t.cfg.ChannelSecret, body, r.Header.Get(signatureHeader)) {
		t.logger.Printf("line: webhook signature mismatch from %s", r.RemoteAddr)
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		sender := ev.Source.UserID
		if ev.Source.GroupID != "" {
			sender = ev.Source.GroupID
		}
		t.pending = append(t.pending, transport.Message{
			ID:       ev.Message.ID,
			Sender:   sender,
			Body:     ev.Message.Text,
			ReplyRef: ev.ReplyToken,
			Received: time.UnixMilli(ev.Timestamp),
		})
	}
	t.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// Poll drains the webhook buffer: each buffered message is handed out once,
// whatever cursor is passed, so a repeated call with the same cursor does not
// return it again. The returned cursor is the running count of consumed
// messages.
func (t *Transport) Poll(ctx context.Context, cursor string) ([]transport.Message, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil, cursor, nil
	}
	msgs := t.pending
	t.pending = nil
	consumed, _ := strconv.ParseUint(cursor, 10, 64)
	return msgs, strconv.FormatUint(consumed+uint64(len(msgs)), 10), nil
}

// Authenticate enforces the userId/groupId whitelist. The signature was
// already verified at the HTTP edge.
func (t *Transport) Authenticate(m transport.Message) transport.AuthResult {
	for _, id := range t.cfg.AllowedIDs {
		if m.Sender == id {
			return transport.AuthResult{OK: true}
		}
	}
	return transport.AuthResult{OK: false, Reason: fmt.Sprintf("line id %s not whitelisted", m.Sender)}
}

// lineMessage is one outbound message object.
type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send delivers a payload. A recipient of the form "reply:<token>" uses the
// reply endpoint (cheaper, must be fresh); anything else is a push to a
// userId/groupId.
func (t *Transport) Send(ctx context.Context, recipient string, p transport.Payload) (string, error) {
	text := p.Body
	if p.Subject != "" {
		text = p.Subject + "\n\n" + text
	}
	if p.Token != "" {
		text += fmt.Sprintf("\n\nToken %s\nReply: /cmd %s <command>", p.Token, p.Token)
	}

	var endpoint string
	var reqBody map[string]interface{}
	if len(recipient) > 6 && recipient[:6] == "reply:" {
		endpoint = replyEndpoint
		reqBody = map[string]interface{}{
			"replyToken": recipient[6:],
			"messages":   []lineMessage{{Type: "text", Text: text}},
		}
	} else {
		if recipient == "" {
			recipient = t.cfg.To
		}
		endpoint = pushEndpoint
		reqBody = map[string]interface{}{
			"to":       recipient,
			"messages": []lineMessage{{Type: "text", Text: text}},
		}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", transport.Permanentf("line marshal", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", transport.Permanentf("line request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.ChannelToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", transport.Transientf("line send", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", transport.Transientf("line send", fmt.Errorf("status %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		// 4xx means misconfiguration (bad token, bad recipient): fatal.
		return "", transport.Permanentf("line send", fmt.Errorf("status %s", resp.Status))
	}
	return "", nil
}

// Package mail implements the email transport: IMAP polling for inbound
// replies and SMTP for outbound notifications. Replies are resolved through
// the subject tag the sender writes ("[ClawLink #TOKEN]"), so the sender and
// the parser share one template.
package mail

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/transport"
)

// Transport is the email adapter. It implements both capabilities.
type Transport struct {
	cfg    config.MailConfig
	sender *Sender
}

// New builds the mail transport from configuration.
func New(cfg config.MailConfig) *Transport {
	return &Transport{
		cfg:    cfg,
		sender: NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.From, cfg.SMTPTLS),
	}
}

// Name implements transport.Inbound and transport.Outbound.
func (t *Transport) Name() string { return "mail" }

// PollInterval returns the configured poll cadence.
func (t *Transport) PollInterval() time.Duration {
	if t.cfg.PollIntervalSeconds > 0 {
		return time.Duration(t.cfg.PollIntervalSeconds) * time.Second
	}
	return constants.MailPollInterval
}

// dial opens and authenticates an IMAP connection.
func (t *Transport) dial() (*imapclient.Client, error) {
	addr := net.JoinHostPort(t.cfg.IMAPHost, strconv.Itoa(t.cfg.IMAPPort))

	var c *imapclient.Client
	var err error
	if t.cfg.IMAPSecure {
		c, err = imapclient.DialTLS(addr, nil)
	} else {
		c, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, transport.Transientf("imap dial "+addr, err)
	}
	if err := c.Login(t.cfg.IMAPUser, t.cfg.IMAPPass).Wait(); err != nil {
		c.Close()
		// Bad credentials will not fix themselves; stop the transport.
		return nil, transport.Permanentf("imap login", err)
	}
	return c, nil
}

// Poll fetches messages with UID strictly greater than the cursor. The
// cursor is the highest UID seen, persisted as its decimal string; an empty
// cursor starts from the current mailbox end so historical mail is never
// replayed into the relay.
func (t *Transport) Poll(ctx context.Context, cursor string) ([]transport.Message, string, error) {
	c, err := t.dial()
	if err != nil {
		return nil, cursor, err
	}
	defer c.Close()
	defer func() { _ = c.Logout() }()

	mbox, err := c.Select("INBOX", nil).Wait()
	if err != nil {
		return nil, cursor, transport.Transientf("imap select", err)
	}

	last, _ := strconv.ParseUint(cursor, 10, 32)
	if cursor == "" {
		// First run: start the watermark at UIDNEXT-1 and report nothing.
		next := uint64(mbox.UIDNext)
		if next > 0 {
			return nil, strconv.FormatUint(next-1, 10), nil
		}
		return nil, "0", nil
	}

	var uidSet imap.UIDSet
	uidSet.AddRange(imap.UID(last+1), 0) // 0 = "*"
	searchData, err := c.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{uidSet},
	}, nil).Wait()
	if err != nil {
		return nil, cursor, transport.Transientf("imap search", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, cursor, nil
	}

	bodySection := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText}
	fetchSet := imap.UIDSetNum(uids...)
	msgs, err := c.Fetch(fetchSet, &imap.FetchOptions{
		UID:           true,
		Envelope:      true,
		BodyStructure: &imap.FetchItemBodyStructure{},
		BodySection:   []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, cursor, transport.Transientf("imap fetch", err)
	}

	out := make([]transport.Message, 0, len(msgs))
	maxUID := last
	for _, m := range msgs {
		if uint64(m.UID) > maxUID {
			maxUID = uint64(m.UID)
		}
		var sender string
		subject := ""
		received := time.Time{}
		if m.Envelope != nil {
			subject = m.Envelope.Subject
			received = m.Envelope.Date
			if len(m.Envelope.From) > 0 {
				sender = m.Envelope.From[0].Addr()
			}
		}
		body := decodeBody(m.FindBodySection(bodySection), m.BodyStructure)
		out = append(out, transport.Message{
			ID:       strconv.FormatUint(uint64(m.UID), 10),
			Sender:   sender,
			Subject:  subject,
			Body:     body,
			Received: received,
		})
	}

	// Mark the batch seen so the operator's mailbox reflects consumption.
	// Failure here is harmless: the UID cursor is the real watermark.
	_ = c.Store(fetchSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Flags:  []imap.Flag{imap.FlagSeen},
		Silent: true,
	}, nil).Close()

	return out, strconv.FormatUint(maxUID, 10), nil
}

// Authenticate enforces the sender whitelist.
func (t *Transport) Authenticate(m transport.Message) transport.AuthResult {
	addr := strings.ToLower(strings.TrimSpace(m.Sender))
	allowed := t.cfg.AllowedSenders
	if len(allowed) == 0 {
		allowed = []string{t.cfg.To}
	}
	for _, a := range allowed {
		if addr == strings.ToLower(strings.TrimSpace(a)) {
			return transport.AuthResult{OK: true}
		}
	}
	return transport.AuthResult{OK: false, Reason: fmt.Sprintf("sender %s not whitelisted", m.Sender)}
}

// Send renders the payload into the plain-text template and delivers it.
// The subject carries the bracketed token tag and the body a Session ID
// line, which is how replies find their way home.
func (t *Transport) Send(ctx context.Context, recipient string, p transport.Payload) (string, error) {
	if recipient == "" {
		recipient = t.cfg.To
	}
	if err := t.sender.Send(recipient, renderSubject(p), renderBody(p)); err != nil {
		return "", transport.Transientf("smtp send", err)
	}
	return "", nil
}

// renderSubject prefixes the bracketed token tag the reply parser looks for.
func renderSubject(p transport.Payload) string {
	if p.Token == "" {
		return p.Subject
	}
	return fmt.Sprintf("[%s #%s] %s", constants.Product, p.Token, p.Subject)
}

// renderBody appends the token line and the Session ID line to the body.
func renderBody(p transport.Payload) string {
	var b strings.Builder
	b.WriteString(p.Body)
	b.WriteString("\n\n")
	if p.Token != "" {
		fmt.Fprintf(&b, "%s %s\n", constants.TokenLinePrefix, p.Token)
		b.WriteString("Reply to this mail with your next command.\n")
	}
	if p.SessionID != "" {
		fmt.Fprintf(&b, "%s %s\n", constants.SessionIDPrefix, p.SessionID)
	}
	return b.String()
}

// Package ingest turns unstructured mailbox traffic into tickets and
// comments exactly once per message.
package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// ParsedMessage is the normalized form of one inbound mailbox message.
type ParsedMessage struct {
	MessageID   string
	ThreadKey   string
	From        string
	Subject     string
	ReceivedAt  time.Time
	BodyText    string
	BodyHTML    string
	Attachments []domain.RawAttachment
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fw|fwd)\s*:\s*`)

// NormalizeSubject strips a leading re:/fw:/fwd: token and lowercases the
// remainder, so replies and forwards land on the original thread.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(replyPrefix.ReplaceAllString(subject, "")))
}

// ThreadKey groups related messages: normalized subject plus sender.
func ThreadKey(subject, from string) string {
	return NormalizeSubject(subject) + "|" + strings.ToLower(strings.TrimSpace(from))
}

// FallbackMessageID derives a dedupe key when the native Message-Id header
// is absent. SHA1 over subject|from|date is a deliberate best-effort
// de-dup policy, not a cryptographic guarantee.
func FallbackMessageID(subject, from string, date time.Time) string {
	sum := sha1.Sum([]byte(subject + "|" + from + "|" + date.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}

var textPolicy = bluemonday.StrictPolicy()

// Snippet reduces a body to a short plain-text preview for ticket comments.
func Snippet(text string, max int) string {
	text = strings.Join(strings.Fields(textPolicy.Sanitize(text)), " ")
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

// ParseSource parses an RFC 822 message body into text, HTML and
// attachments. Header-level fields (subject, from, date, message-id) come
// from the envelope and are filled by the caller.
func ParseSource(source []byte, msg *ParsedMessage) error {
	reader, err := mail.CreateReader(strings.NewReader(string(source)))
	if err != nil {
		return fmt.Errorf("create mail reader: %w", err)
	}
	defer reader.Close()

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read mail part: %w", err)
		}
		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read part body: %w", err)
			}
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				msg.BodyHTML = string(body)
			case strings.HasPrefix(contentType, "text/plain"), contentType == "":
				if msg.BodyText == "" {
					msg.BodyText = string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, domain.RawAttachment{
				FileName:    filename,
				ContentType: contentType,
				Content:     content,
			})
		}
	}

	if msg.BodyText == "" && msg.BodyHTML != "" {
		msg.BodyText = Snippet(msg.BodyHTML, 4000)
	}
	return nil
}

// Finalize fills derived fields after envelope data is set.
func (m *ParsedMessage) Finalize() {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}
	if m.MessageID == "" {
		m.MessageID = FallbackMessageID(m.Subject, m.From, m.ReceivedAt)
	}
	m.ThreadKey = ThreadKey(m.Subject, m.From)
}

package ingest

import (
	"context"
	"time"
)

// RawMessage is one fetched mailbox message: envelope fields plus the raw
// RFC 822 source.
type RawMessage struct {
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Source    []byte
}

// MailboxSession is one open mail-protocol session. Logout must be safe to
// call on every exit path.
type MailboxSession interface {
	Search(ctx context.Context, since time.Time) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) (*RawMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Logout() error
}

// MailboxDialer opens sessions against the configured mailbox.
type MailboxDialer interface {
	Dial(ctx context.Context) (MailboxSession, error)
}

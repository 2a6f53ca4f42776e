package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// IMAPConfig carries mailbox connection settings.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
}

// IMAPDialer opens IMAP sessions over TLS.
type IMAPDialer struct {
	cfg IMAPConfig
}

// NewIMAPDialer constructs the dialer.
func NewIMAPDialer(cfg IMAPConfig) *IMAPDialer {
	return &IMAPDialer{cfg: cfg}
}

// Dial connects, authenticates and selects the configured folder.
func (d *IMAPDialer) Dial(ctx context.Context) (MailboxSession, error) {
	if d.cfg.Host == "" || d.cfg.Username == "" {
		return nil, apperrors.NewConfigError("mailbox credentials are not configured")
	}
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	client, err := imapclient.DialTLS(addr, &imapclient.Options{})
	if err != nil {
		return nil, apperrors.NewTransportError("could not connect to mailbox", err)
	}
	if err := client.Login(d.cfg.Username, d.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewTransportError("could not authenticate to mailbox", err)
	}
	folder := d.cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, apperrors.NewTransportError("could not open mailbox folder", err)
	}
	return &imapSession{client: client}, nil
}

type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) Search(ctx context.Context, since time.Time) ([]uint32, error) {
	criteria := &imap.SearchCriteria{Since: since}
	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, apperrors.NewTransportError("mailbox search failed", err)
	}
	return data.AllSeqNums(), nil
}

func (s *imapSession) Fetch(ctx context.Context, uid uint32) (*RawMessage, error) {
	seqSet := imap.SeqSetNum(uid)
	bodySection := &imap.FetchItemBodySection{}
	options := &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}
	msgs, err := s.client.Fetch(seqSet, options).Collect()
	if err != nil {
		return nil, apperrors.NewTransportError("mailbox fetch failed", err)
	}
	if len(msgs) == 0 {
		return nil, apperrors.NewTransportError("message disappeared during fetch", nil)
	}
	buf := msgs[0]
	raw := &RawMessage{UID: uid, Source: buf.FindBodySection(bodySection)}
	if env := buf.Envelope; env != nil {
		raw.MessageID = env.MessageID
		raw.Subject = env.Subject
		raw.Date = env.Date
		if len(env.From) > 0 {
			raw.From = env.From[0].Addr()
		}
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	seqSet := imap.SeqSetNum(uid)
	flags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := s.client.Store(seqSet, flags, nil).Close(); err != nil {
		return apperrors.NewTransportError("could not mark message read", err)
	}
	return nil
}

func (s *imapSession) Logout() error {
	err := s.client.Logout().Wait()
	_ = s.client.Close()
	return err
}

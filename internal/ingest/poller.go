package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/observability"
)

// InboundStore persists the append-only inbound email log.
type InboundStore interface {
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	LatestByThreadKey(ctx context.Context, threadKey string) (*domain.InboundEmail, error)
	Create(ctx context.Context, email *domain.InboundEmail) error
}

// TicketIntake is the narrow ticket surface the poller drives.
type TicketIntake interface {
	CreateFromEmail(ctx context.Context, msg ParsedMessage, attachments []domain.EmailAttachment) (*domain.Ticket, error)
	AppendThreadReply(ctx context.Context, ticketID string, msg ParsedMessage) error
}

// AttachmentStore persists raw attachments to durable storage.
type AttachmentStore interface {
	Save(ctx context.Context, messageID string, attachments []domain.RawAttachment) ([]domain.EmailAttachment, error)
}

// Settings is re-read before every reschedule so interval edits take
// effect on the next cycle.
type Settings struct {
	Enabled      bool
	PollInterval time.Duration
	CycleTimeout time.Duration
}

// Poller drives the single-worker mailbox polling loop. At most one cycle
// runs at a time; a timer firing while a cycle is in flight is deferred.
type Poller struct {
	dialer      MailboxDialer
	inbound     InboundStore
	intake      TicketIntake
	attachments AttachmentStore
	watermark   WatermarkStore
	settings    func() Settings
	logger      *zap.Logger
	metrics     *observability.Metrics

	inFlight atomic.Bool
}

// NewPoller constructs the poller.
func NewPoller(dialer MailboxDialer, inbound InboundStore, intake TicketIntake, attachments AttachmentStore, watermark WatermarkStore, settings func() Settings, logger *zap.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		dialer:      dialer,
		inbound:     inbound,
		intake:      intake,
		attachments: attachments,
		watermark:   watermark,
		settings:    settings,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start runs the polling loop until ctx is cancelled. Rescheduling always
// happens after a cycle completes, using the interval configured at that
// moment, so a slow mailbox delays but never duplicates cycles.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		for {
			if s := p.settings(); s.Enabled {
				if err := p.RunOnce(ctx); err != nil {
					p.logger.Error("mail poll cycle failed", zap.Error(err))
				}
			}
			interval := p.settings().PollInterval
			if interval <= 0 {
				interval = 5 * time.Minute
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

// RunOnce executes a single poll cycle. The watermark advances only after
// the full batch succeeds; a mid-batch failure leaves it untouched so the
// next cycle re-scans the same window. Message-level dedupe keeps the
// re-scan idempotent.
func (p *Poller) RunOnce(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("poll cycle already in flight; deferring")
		return nil
	}
	defer p.inFlight.Store(false)

	if timeout := p.settings().CycleTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cycleStart := time.Now()
	p.metrics.Inc("mail_poll_cycles")

	session, err := p.dialer.Dial(ctx)
	if err != nil {
		p.metrics.Inc("mail_poll_errors")
		return err
	}
	defer func() {
		if err := session.Logout(); err != nil {
			p.logger.Warn("mailbox logout failed", zap.Error(err))
		}
	}()

	since, err := p.sinceWindow(ctx, cycleStart)
	if err != nil {
		return err
	}

	uids, err := session.Search(ctx, since)
	if err != nil {
		p.metrics.Inc("mail_poll_errors")
		return err
	}

	for _, uid := range uids {
		if err := p.processMessage(ctx, session, uid); err != nil {
			p.metrics.Inc("mail_poll_errors")
			return err
		}
	}

	if err := p.watermark.Set(ctx, cycleStart); err != nil {
		return err
	}
	p.logger.Info("mail poll cycle complete",
		zap.Int("messages", len(uids)),
		zap.Time("since", since))
	return nil
}

func (p *Poller) sinceWindow(ctx context.Context, now time.Time) (time.Time, error) {
	floor := now.Add(-7 * 24 * time.Hour)
	last, err := p.watermark.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if last.After(floor) {
		return last, nil
	}
	return floor, nil
}

func (p *Poller) processMessage(ctx context.Context, session MailboxSession, uid uint32) error {
	raw, err := session.Fetch(ctx, uid)
	if err != nil {
		return err
	}

	msg := ParsedMessage{
		MessageID:  raw.MessageID,
		Subject:    raw.Subject,
		From:       raw.From,
		ReceivedAt: raw.Date,
	}
	if len(raw.Source) > 0 {
		if err := ParseSource(raw.Source, &msg); err != nil {
			// A malformed MIME body must not poison the batch; the envelope
			// still carries enough to open a ticket.
			p.logger.Warn("could not parse message body",
				zap.String("subject", raw.Subject), zap.Error(err))
		}
	}
	msg.Finalize()

	exists, err := p.inbound.ExistsByMessageID(ctx, msg.MessageID)
	if err != nil {
		return err
	}
	if exists {
		p.metrics.Inc("mail_deduped")
		return session.MarkSeen(ctx, uid)
	}

	prior, err := p.inbound.LatestByThreadKey(ctx, msg.ThreadKey)
	if err != nil {
		return err
	}

	var ticketID string
	var storedAttachments []domain.EmailAttachment
	if len(msg.Attachments) > 0 {
		storedAttachments, err = p.attachments.Save(ctx, msg.MessageID, msg.Attachments)
		if err != nil {
			return err
		}
	}

	if prior != nil {
		ticketID = prior.TicketID
		if err := p.intake.AppendThreadReply(ctx, ticketID, msg); err != nil {
			return err
		}
		p.metrics.Inc("mail_thread_replies")
	} else {
		ticket, err := p.intake.CreateFromEmail(ctx, msg, storedAttachments)
		if err != nil {
			return err
		}
		ticketID = ticket.ID
		p.metrics.Inc("mail_tickets_created")
	}

	row := &domain.InboundEmail{
		MessageID:   msg.MessageID,
		ThreadKey:   msg.ThreadKey,
		TicketID:    ticketID,
		From:        msg.From,
		Subject:     msg.Subject,
		ReceivedAt:  msg.ReceivedAt,
		BodyText:    msg.BodyText,
		BodyHTML:    msg.BodyHTML,
		Attachments: storedAttachments,
	}
	if err := p.inbound.Create(ctx, row); err != nil {
		return err
	}
	return session.MarkSeen(ctx, uid)
}

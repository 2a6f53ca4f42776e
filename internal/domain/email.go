package domain

import "time"

// InboundEmail is one received mailbox message, written once by the
// ingestion engine and never mutated afterward.
type InboundEmail struct {
	ID          string
	MessageID   string
	ThreadKey   string
	TicketID    string
	From        string
	Subject     string
	ReceivedAt  time.Time
	BodyText    string
	BodyHTML    string
	Attachments []EmailAttachment
	CreatedAt   time.Time
}

// OutboundEmailStatus records delivery outcome.
type OutboundEmailStatus string

const (
	OutboundStatusSent   OutboundEmailStatus = "SENT"
	OutboundStatusFailed OutboundEmailStatus = "FAILED"
)

// OutboundEmail is one agent reply or automation notification, immutable
// after creation. Failed sends are recorded rather than raised so delivery
// status stays visible without blocking the workflow.
type OutboundEmail struct {
	ID           string
	TicketID     *string
	To           []string
	Cc           []string
	Bcc          []string
	Subject      string
	Body         string
	Status       OutboundEmailStatus
	ErrorMessage *string
	CreatedAt    time.Time
}

// EmailAttachment holds metadata for a stored attachment.
type EmailAttachment struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	StoragePath string
}

// RawAttachment is attachment content as parsed off the wire, before it is
// persisted to durable storage.
type RawAttachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

package domain

import "time"

// CommentAuthorType indicates who authored a ticket comment.
type CommentAuthorType string

const (
	CommentAuthorSystem     CommentAuthorType = "SYSTEM"
	CommentAuthorAgent      CommentAuthorType = "AGENT"
	CommentAuthorRequester  CommentAuthorType = "REQUESTER"
	CommentAuthorAutomation CommentAuthorType = "AUTOMATION"
)

// TicketComment is one append-only entry in a ticket's comment trail.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorType CommentAuthorType
	Author     string
	Body       string
	CreatedAt  time.Time
}

package automation

import (
	"strings"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Render substitutes {{ticket_*}} tokens in rule params with snapshot values.
func Render(text string, ticket domain.Ticket) string {
	assignee := ""
	if ticket.Assignee != nil {
		assignee = *ticket.Assignee
	}
	replacer := strings.NewReplacer(
		"{{ticket_code}}", ticket.Code,
		"{{ticket_subject}}", ticket.Subject,
		"{{ticket_status}}", string(ticket.Status),
		"{{ticket_priority}}", string(ticket.Priority),
		"{{ticket_queue}}", string(ticket.Queue),
		"{{ticket_assignee}}", assignee,
	)
	return replacer.Replace(text)
}

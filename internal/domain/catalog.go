package domain

import "time"

// ServiceCatalogEntry describes a requestable service and the routing and
// approval defaults a ticket created from it inherits.
type ServiceCatalogEntry struct {
	ID               string
	Name             string
	Category         string
	System           string
	DefaultPriority  *TicketPriority
	RequiresApproval bool
	ApproverRole     *string
	ApproverID       *string
	AutoAssignTo     *string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

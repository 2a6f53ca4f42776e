package domain

import "time"

// AgentRole enumerates operator roles. Approvers and admins may decide
// approval-gated tickets.
type AgentRole string

const (
	AgentRoleAgent    AgentRole = "AGENT"
	AgentRoleApprover AgentRole = "APPROVER"
	AgentRoleAdmin    AgentRole = "ADMIN"
)

// Agent models a service-desk operator.
type Agent struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         AgentRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

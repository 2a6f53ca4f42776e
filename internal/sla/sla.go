// Package sla derives ticket priority from impact and urgency and computes
// SLA deadlines from priority and a configurable policy. Both computations
// are pure: they read nothing beyond their arguments.
package sla

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Default per-priority response windows, in hours.
const (
	DefaultP0Hours = 8
	DefaultP1Hours = 48
	DefaultP2Hours = 120
	DefaultP3Hours = 240

	DefaultWarningMinutes = 60
)

// Policy holds per-priority hour windows and the warning lead time. Zero
// fields fall back to defaults at computation time, so a partially
// configured policy is always usable.
type Policy struct {
	P0Hours        int
	P1Hours        int
	P2Hours        int
	P3Hours        int
	WarningMinutes int
}

// Normalize returns a copy of p with defaults filled in for unset fields.
func (p Policy) Normalize() Policy {
	if p.P0Hours <= 0 {
		p.P0Hours = DefaultP0Hours
	}
	if p.P1Hours <= 0 {
		p.P1Hours = DefaultP1Hours
	}
	if p.P2Hours <= 0 {
		p.P2Hours = DefaultP2Hours
	}
	if p.P3Hours <= 0 {
		p.P3Hours = DefaultP3Hours
	}
	if p.WarningMinutes <= 0 {
		p.WarningMinutes = DefaultWarningMinutes
	}
	return p
}

// HoursFor returns the response window for the given priority.
func (p Policy) HoursFor(priority domain.TicketPriority) int {
	p = p.Normalize()
	switch priority {
	case domain.PriorityP0:
		return p.P0Hours
	case domain.PriorityP1:
		return p.P1Hours
	case domain.PriorityP2:
		return p.P2Hours
	default:
		return p.P3Hours
	}
}

// ComputePriority maps impact x urgency onto P0..P3. Total: unrecognized
// severities are treated as LOW.
func ComputePriority(impact, urgency domain.Severity) domain.TicketPriority {
	high := func(s domain.Severity) bool { return s == domain.SeverityHigh }
	medium := func(s domain.Severity) bool { return s == domain.SeverityMedium }

	switch {
	case high(impact) && high(urgency):
		return domain.PriorityP0
	case high(impact) && medium(urgency), medium(impact) && high(urgency):
		return domain.PriorityP1
	case high(impact), high(urgency), medium(impact) && medium(urgency):
		return domain.PriorityP2
	default:
		return domain.PriorityP3
	}
}

// ComputeSlaDueAt returns openedAt plus the policy window for the priority.
func ComputeSlaDueAt(priority domain.TicketPriority, openedAt time.Time, policy Policy) time.Time {
	return openedAt.Add(time.Duration(policy.HoursFor(priority)) * time.Hour)
}

package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
)

type fakeRuleSource struct {
	rules []domain.AutomationRule
	err   error
}

func (f *fakeRuleSource) ListActive(_ context.Context, trigger domain.AutomationTrigger) ([]domain.AutomationRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.AutomationRule
	for _, r := range f.rules {
		if r.Trigger == trigger && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeWriter struct {
	fields   map[string]string
	assignee string
	comments []string
	failSet  bool
}

func (f *fakeWriter) SetField(_ context.Context, _, field, value string) error {
	if f.failSet {
		return errors.New("boom")
	}
	if f.fields == nil {
		f.fields = map[string]string{}
	}
	f.fields[field] = value
	return nil
}

func (f *fakeWriter) ApplyRawPatch(_ context.Context, _ string, patch map[string]string) error {
	if f.fields == nil {
		f.fields = map[string]string{}
	}
	for k, v := range patch {
		f.fields[k] = v
	}
	return nil
}

func (f *fakeWriter) Assign(_ context.Context, _ string, assignee string) error {
	f.assignee = assignee
	return nil
}

func (f *fakeWriter) AppendComment(_ context.Context, _ string, _ domain.CommentAuthorType, _ string, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, to []string, subject, _ string, _ *string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, fmt.Sprintf("%v|%s", to, subject))
	return nil
}

func testTicket() domain.Ticket {
	return domain.Ticket{
		ID:       "t-1",
		Code:     "SD-000001",
		Queue:    domain.QueueInternalIT,
		Status:   domain.TicketStatusNew,
		Subject:  "VPN outage",
		Priority: domain.PriorityP0,
		Impact:   domain.SeverityHigh,
		Urgency:  domain.SeverityHigh,
	}
}

func newTestEngine(rules *fakeRuleSource, writer *fakeWriter, sender *fakeSender) *Engine {
	return NewEngine(rules, writer, sender, zap.NewNop())
}

func TestRunAssignsOnMatch(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{{
		Name:    "page oncall",
		Trigger: domain.TriggerTicketCreated,
		Active:  true,
		Conditions: []domain.RuleCondition{
			{Field: "priority", Operator: domain.OperatorEquals, Value: "P0"},
		},
		Actions: []domain.RuleAction{
			{Type: domain.ActionAssignAgent, AssignAgent: &domain.AssignAgentParams{Assignee: "oncall@example.com"}},
		},
	}}}
	writer := &fakeWriter{}
	engine := newTestEngine(rules, writer, &fakeSender{})

	if err := engine.Run(context.Background(), domain.TriggerTicketCreated, testTicket()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer.assignee != "oncall@example.com" {
		t.Fatalf("assignee = %q", writer.assignee)
	}
	if len(writer.comments) != 1 {
		t.Fatalf("comments = %v, want one audit comment", writer.comments)
	}
}

func TestRunSkipsNonMatching(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{{
		Name:    "vendor only",
		Trigger: domain.TriggerTicketCreated,
		Active:  true,
		Conditions: []domain.RuleCondition{
			{Field: "queue", Operator: domain.OperatorEquals, Value: "VENDOR"},
		},
		Actions: []domain.RuleAction{
			{Type: domain.ActionAssignAgent, AssignAgent: &domain.AssignAgentParams{Assignee: "x"}},
		},
	}}}
	writer := &fakeWriter{}
	engine := newTestEngine(rules, writer, &fakeSender{})

	if err := engine.Run(context.Background(), domain.TriggerTicketCreated, testTicket()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer.assignee != "" {
		t.Fatalf("non-matching rule must not act, assignee = %q", writer.assignee)
	}
}

func TestRunSendEmailRendersTemplates(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{{
		Name:    "notify",
		Trigger: domain.TriggerTicketCreated,
		Active:  true,
		Actions: []domain.RuleAction{{
			Type: domain.ActionSendEmail,
			SendEmail: &domain.SendEmailParams{
				To:      "it@example.com",
				Subject: "New {{ticket_priority}}: {{ticket_code}}",
				Body:    "{{ticket_subject}}",
			},
		}},
	}}}
	sender := &fakeSender{}
	writer := &fakeWriter{}
	engine := newTestEngine(rules, writer, sender)

	if err := engine.Run(context.Background(), domain.TriggerTicketCreated, testTicket()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "[it@example.com]|New P0: SD-000001" {
		t.Fatalf("sent = %v", sender.sent)
	}
}

func TestRunActionErrorIsolation(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{{
		Name:    "two actions",
		Trigger: domain.TriggerTicketUpdated,
		Active:  true,
		Actions: []domain.RuleAction{
			{Type: domain.ActionUpdateTicket, UpdateTicket: &domain.UpdateTicketParams{Field: "category", Value: "Network"}},
			{Type: domain.ActionAssignAgent, AssignAgent: &domain.AssignAgentParams{AgentEmail: "net@example.com"}},
		},
	}}}
	writer := &fakeWriter{failSet: true}
	engine := newTestEngine(rules, writer, &fakeSender{})

	// First action fails; the second must still run and Run reports no error.
	if err := engine.Run(context.Background(), domain.TriggerTicketUpdated, testTicket()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if writer.assignee != "net@example.com" {
		t.Fatalf("second action should run after first failure, assignee = %q", writer.assignee)
	}
}

func TestRunRuleSourceError(t *testing.T) {
	engine := newTestEngine(&fakeRuleSource{err: errors.New("db down")}, &fakeWriter{}, &fakeSender{})
	if err := engine.Run(context.Background(), domain.TriggerTicketCreated, testTicket()); err == nil {
		t.Fatal("rule load failure must surface")
	}
}

func TestMatchesOperators(t *testing.T) {
	ticket := testTicket()
	cases := []struct {
		cond domain.RuleCondition
		want bool
	}{
		{domain.RuleCondition{Field: "priority", Operator: domain.OperatorEquals, Value: "p0"}, true},
		{domain.RuleCondition{Field: "priority", Operator: domain.OperatorNotEquals, Value: "P3"}, true},
		{domain.RuleCondition{Field: "subject", Operator: domain.OperatorContains, Value: "vpn"}, true},
		{domain.RuleCondition{Field: "subject", Operator: domain.OperatorContains, Value: "printer"}, false},
		{domain.RuleCondition{Field: "status", Operator: domain.OperatorEquals, Value: "NEW"}, true},
		{domain.RuleCondition{Field: "assignee", Operator: domain.OperatorEquals, Value: ""}, true},
		{domain.RuleCondition{Field: "priority", Operator: domain.OperatorGreaterThan, Value: "1"}, false},
	}
	for i, tc := range cases {
		rule := domain.AutomationRule{Conditions: []domain.RuleCondition{tc.cond}}
		if got := Matches(rule, ticket); got != tc.want {
			t.Errorf("case %d: Matches = %v, want %v (%+v)", i, got, tc.want, tc.cond)
		}
	}
}

func TestMatchesAllConditionsAnd(t *testing.T) {
	rule := domain.AutomationRule{Conditions: []domain.RuleCondition{
		{Field: "priority", Operator: domain.OperatorEquals, Value: "P0"},
		{Field: "queue", Operator: domain.OperatorEquals, Value: "VENDOR"},
	}}
	if Matches(rule, testTicket()) {
		t.Fatal("all conditions must pass for a match")
	}
}

func TestRenderTokens(t *testing.T) {
	assignee := "kim@example.com"
	ticket := testTicket()
	ticket.Assignee = &assignee

	got := Render("[{{ticket_code}}] {{ticket_subject}} -> {{ticket_assignee}} ({{ticket_queue}})", ticket)
	want := "[SD-000001] VPN outage -> kim@example.com (INTERNAL_IT)"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
	if Render("{{unknown_token}}", ticket) != "{{unknown_token}}" {
		t.Fatal("unknown tokens pass through unchanged")
	}
}

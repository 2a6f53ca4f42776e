package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

type memAgents struct {
	byEmail map[string]domain.Agent
	seq     int
}

func newMemAgents() *memAgents {
	return &memAgents{byEmail: map[string]domain.Agent{}}
}

func (m *memAgents) Create(_ context.Context, agent *domain.Agent) error {
	m.seq++
	agent.ID = agent.Email
	m.byEmail[agent.Email] = *agent
	return nil
}

func (m *memAgents) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	for _, agent := range m.byEmail {
		if agent.ID == id {
			return &agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAgents) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	agent, ok := m.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &agent, nil
}

func newTestAuthService(agents *memAgents) *AuthService {
	return NewAuthService(config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 15,
		BcryptCost:            bcrypt.MinCost,
	}}, agents)
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	agents := newMemAgents()
	svc := newTestAuthService(agents)

	registered, err := svc.RegisterAgent(context.Background(), "Kim", "Kim@Example.com", "s3cret-password", domain.AgentRoleAgent)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if registered.Email != "kim@example.com" {
		t.Fatalf("email not normalized: %q", registered.Email)
	}
	if registered.PasswordHash == "s3cret-password" {
		t.Fatal("password must be stored hashed")
	}

	agent, token, expiresAt, err := svc.Login(context.Background(), "kim@example.com", "s3cret-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if agent.Email != "kim@example.com" || token == "" || expiresAt.IsZero() {
		t.Fatalf("login result: agent=%+v token=%q expires=%v", agent, token, expiresAt)
	}

	claims, err := svc.TokenManager().ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Email != "kim@example.com" || claims.Role != domain.AgentRoleAgent {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	agents := newMemAgents()
	svc := newTestAuthService(agents)
	if _, err := svc.RegisterAgent(context.Background(), "Kim", "kim@example.com", "s3cret-password", domain.AgentRoleAgent); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	_, _, _, err := svc.Login(context.Background(), "kim@example.com", "wrong-password")
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestLoginRejectsUnknownAndInactive(t *testing.T) {
	agents := newMemAgents()
	svc := newTestAuthService(agents)

	_, _, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("unknown agent: expected UNAUTHORIZED, got %v", err)
	}

	if _, err := svc.RegisterAgent(context.Background(), "Kim", "kim@example.com", "s3cret-password", domain.AgentRoleAgent); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	deactivated := agents.byEmail["kim@example.com"]
	deactivated.Active = false
	agents.byEmail["kim@example.com"] = deactivated

	_, _, _, err = svc.Login(context.Background(), "kim@example.com", "s3cret-password")
	if !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("inactive agent: expected UNAUTHORIZED, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(newMemAgents())

	if _, err := svc.RegisterAgent(context.Background(), "x", "", "s3cret-password", domain.AgentRoleAgent); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("missing email: got %v", err)
	}
	if _, err := svc.RegisterAgent(context.Background(), "x", "a@example.com", "short", domain.AgentRoleAgent); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("short password: got %v", err)
	}
	if _, err := svc.RegisterAgent(context.Background(), "x", "a@example.com", "s3cret-password", domain.AgentRole("SUPERUSER")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("bad role: got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(newMemAgents())
	if _, err := svc.RegisterAgent(context.Background(), "a", "dup@example.com", "s3cret-password", domain.AgentRoleAgent); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.RegisterAgent(context.Background(), "b", "dup@example.com", "s3cret-password", domain.AgentRoleAdmin)
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

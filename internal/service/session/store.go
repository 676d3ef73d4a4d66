package session

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
	"github.com/prescottprue/tessellate-sub000/pkg/jwt"
)

// Store creates and terminates sessions and issues session tokens.
type Store struct {
	sessions repository.SessionRepository
	secret   string
	logger   *slog.Logger
}

// New constructs a Store.
func New(sessions repository.SessionRepository, secret string, logger *slog.Logger) Store {
	return Store{sessions: sessions, secret: secret, logger: logger}
}

// Start creates and persists a new active session for the account.
// Prior sessions are left untouched, so an account can hold several
// active sessions at once.
func (s Store) Start(ctx context.Context, accountID string) (*domain.Session, error) {
	if accountID == "" {
		return nil, domain.E(domain.KindValidation, "account id required")
	}
	session := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "create session", err)
	}
	s.logger.Info("session started", "session_id", session.ID, "account_id", accountID)
	return session, nil
}

// End terminates a session. Ending an already-ended or missing session
// succeeds and returns a minimal stub: logout must never fail a client.
func (s Store) End(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := time.Now().UTC()
	matched, err := s.sessions.EndSession(ctx, sessionID, now)
	if err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "end session", err)
	}
	if !matched {
		return &domain.Session{ID: sessionID, Active: false}, nil
	}
	s.logger.Info("session ended", "session_id", sessionID)
	return &domain.Session{ID: sessionID, Active: false, EndedAt: &now}, nil
}

// EndForAccount terminates every active session of the account. Zero
// matches is still success.
func (s Store) EndForAccount(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	ended, err := s.sessions.EndSessionsForAccount(ctx, accountID, now)
	if err != nil {
		return domain.WrapErr(domain.KindUnknown, "end sessions", err)
	}
	if ended > 0 {
		s.logger.Info("sessions ended", "account_id", accountID, "count", ended)
	}
	return nil
}

// IssueToken signs a session token carrying the account identity. No
// expiry is set; lifetime enforcement is a boundary concern.
func (s Store) IssueToken(account *domain.Account, groupIDs []string, sessionID string) (string, error) {
	if s.secret == "" {
		return "", domain.E(domain.KindConfiguration, "token secret not configured")
	}
	token, err := jwt.Generate(account.ID, account.Username, sessionID, groupIDs, s.secret)
	if err != nil {
		return "", domain.WrapErr(domain.KindUnknown, "sign token", err)
	}
	return token, nil
}

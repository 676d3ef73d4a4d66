package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/pkg/jwt"
)

type stubSessionRepository struct {
	created  []*domain.Session
	matched  bool
	endedFor int64
	err      error
}

func (s *stubSessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, session)
	return nil
}

func (s *stubSessionRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	for _, sess := range s.created {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubSessionRepository) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	return s.matched, s.err
}

func (s *stubSessionRepository) EndSessionsForAccount(ctx context.Context, accountID string, endedAt time.Time) (int64, error) {
	return s.endedFor, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartCreatesActiveSession(t *testing.T) {
	repo := &stubSessionRepository{}
	store := New(repo, "secret", testLogger())

	sess, err := store.Start(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "acct-1", sess.AccountID)
	assert.True(t, sess.Active)
	require.Len(t, repo.created, 1)
}

func TestStartRequiresAccountID(t *testing.T) {
	store := New(&stubSessionRepository{}, "secret", testLogger())

	_, err := store.Start(context.Background(), "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestEndIsIdempotent(t *testing.T) {
	repo := &stubSessionRepository{matched: false}
	store := New(repo, "secret", testLogger())

	sess, err := store.End(context.Background(), "sess-gone")
	require.NoError(t, err)
	assert.Equal(t, "sess-gone", sess.ID)
	assert.False(t, sess.Active)
	assert.Nil(t, sess.EndedAt)
}

func TestEndMatchedSession(t *testing.T) {
	repo := &stubSessionRepository{matched: true}
	store := New(repo, "secret", testLogger())

	sess, err := store.End(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, sess.Active)
	require.NotNil(t, sess.EndedAt)
}

func TestEndForAccountZeroMatchesSucceeds(t *testing.T) {
	store := New(&stubSessionRepository{endedFor: 0}, "secret", testLogger())

	assert.NoError(t, store.EndForAccount(context.Background(), "acct-1"))
}

func TestIssueTokenCarriesIdentity(t *testing.T) {
	store := New(&stubSessionRepository{}, "signing-secret", testLogger())
	account := &domain.Account{ID: "acct-1", Username: "alice"}

	token, err := store.IssueToken(account, []string{"grp-1"}, "sess-1")
	require.NoError(t, err)

	claims, err := jwt.Parse(token, "signing-secret")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, []string{"grp-1"}, claims.GroupIDs)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	store := New(&stubSessionRepository{}, "", testLogger())

	_, err := store.IssueToken(&domain.Account{ID: "acct-1"}, nil, "sess-1")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

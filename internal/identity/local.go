package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
	"github.com/prescottprue/tessellate-sub000/internal/service/session"
	"github.com/prescottprue/tessellate-sub000/pkg/crypto"
)

// Local implements Backend against local persistence.
type Local struct {
	accounts repository.AccountRepository
	groups   repository.GroupRepository
	projects repository.ProjectRepository
	sessions session.Store
	logger   *slog.Logger
}

var _ Backend = (*Local)(nil)

// NewLocal constructs the local identity backend.
func NewLocal(accounts repository.AccountRepository, groups repository.GroupRepository, projects repository.ProjectRepository, sessions session.Store, logger *slog.Logger) *Local {
	return &Local{accounts: accounts, groups: groups, projects: projects, sessions: sessions, logger: logger}
}

// Login authenticates against the local password record, starts a
// session and issues a token. A password mismatch never starts a
// session.
func (l *Local) Login(ctx context.Context, project *domain.Project, creds Credentials) (*LoginResult, error) {
	login := strings.TrimSpace(creds.Login)
	if login == "" || creds.Password == "" {
		return nil, domain.E(domain.KindValidation, "login and password required")
	}
	account, err := l.accounts.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.E(domain.KindNotFound, "account not found")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "find account", err)
	}
	if !account.Local() {
		return nil, domain.E(domain.KindInvalidCredentials, "account has no local credentials")
	}
	ok, err := crypto.VerifyPassword(creds.Password, account.PasswordHash)
	if err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "verify password", err)
	}
	if !ok {
		return nil, domain.E(domain.KindInvalidCredentials, "invalid credentials")
	}
	return l.establishSession(ctx, account)
}

// Signup creates a local account with a hashed password and logs it in
// immediately. The storage unique constraint is the authoritative
// duplicate check.
func (l *Local) Signup(ctx context.Context, project *domain.Project, data SignupData) (*LoginResult, error) {
	username := strings.TrimSpace(data.Username)
	email := strings.TrimSpace(data.Email)
	if username == "" || email == "" {
		return nil, domain.E(domain.KindValidation, "username and email required")
	}
	hash, err := crypto.HashPassword(data.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrEmptyPassword) {
			return nil, domain.E(domain.KindValidation, "password required")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "hash password", err)
	}
	account := &domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.E(domain.KindAlreadyExists, "username or email already taken")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "create account", err)
	}
	l.logger.Info("account created", "account_id", account.ID, "username", username)
	return l.establishSession(ctx, account)
}

func (l *Local) establishSession(ctx context.Context, account *domain.Account) (*LoginResult, error) {
	sess, err := l.sessions.Start(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	groupIDs, err := l.groups.ListGroupIDsByMember(ctx, account.ID)
	if err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "list account groups", err)
	}
	token, err := l.sessions.IssueToken(account, groupIDs, sess.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Account: account.WithoutHash()}, nil
}

// Logout ends the account's active sessions. Missing accounts and
// already-ended sessions are not errors: logout is best-effort by
// contract.
func (l *Local) Logout(ctx context.Context, project *domain.Project, username string) error {
	account, err := l.accounts.GetAccountByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return domain.WrapErr(domain.KindUnknown, "find account", err)
	}
	return l.sessions.EndForAccount(ctx, account.ID)
}

// AddGroup finds or creates the named group and links it to the
// project exactly once.
func (l *Local) AddGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error) {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return nil, domain.E(domain.KindValidation, "group name required")
	}
	group, err := l.groups.GetGroupByName(ctx, project.ID, name)
	if errors.Is(err, repository.ErrNotFound) {
		group = &domain.Group{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
		if createErr := l.groups.CreateGroup(ctx, group); createErr != nil {
			if errors.Is(createErr, repository.ErrDuplicate) {
				// lost the create race; reuse the winner
				group, err = l.groups.GetGroupByName(ctx, project.ID, name)
				if err != nil {
					return nil, domain.WrapErr(domain.KindUnknown, "find group", err)
				}
			} else {
				return nil, domain.WrapErr(domain.KindUnknown, "create group", createErr)
			}
		}
	} else if err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "find group", err)
	}

	groupID := group.ID
	if _, err := repository.MutateProjectRefs(ctx, l.projects, project.Name, func(p *domain.Project) bool {
		if p.HasGroup(groupID) {
			return false
		}
		p.GroupIDs = append(p.GroupIDs, groupID)
		return true
	}); err != nil {
		return nil, domain.WrapErr(domain.KindUnknown, "link group", err)
	}
	l.logger.Info("group linked", "project", project.Name, "group", name)
	return group, nil
}

// UpdateGroup renames an existing group.
func (l *Local) UpdateGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error) {
	group, err := l.groups.GetGroupByName(ctx, project.ID, strings.TrimSpace(desc.Name))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.E(domain.KindNotFound, "group not found")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "find group", err)
	}
	newName := strings.TrimSpace(desc.NewName)
	if newName == "" || newName == group.Name {
		return group, nil
	}
	if err := l.groups.RenameGroup(ctx, group.ID, newName); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.E(domain.KindAlreadyExists, "group name already taken")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "rename group", err)
	}
	group.Name = newName
	return group, nil
}

// RemoveGroup unlinks the named group from the project and deletes its
// row. A group that was never linked reports NotFound and leaves the
// project untouched.
func (l *Local) RemoveGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) error {
	group, err := l.groups.GetGroupByName(ctx, project.ID, strings.TrimSpace(desc.Name))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.E(domain.KindNotFound, "group not found")
		}
		return domain.WrapErr(domain.KindUnknown, "find group", err)
	}
	groupID := group.ID
	if _, err := repository.MutateProjectRefs(ctx, l.projects, project.Name, func(p *domain.Project) bool {
		kept := p.GroupIDs[:0]
		removed := false
		for _, id := range p.GroupIDs {
			if id == groupID {
				removed = true
				continue
			}
			kept = append(kept, id)
		}
		p.GroupIDs = kept
		return removed
	}); err != nil {
		return domain.WrapErr(domain.KindUnknown, "unlink group", err)
	}
	if err := l.groups.DeleteGroup(ctx, groupID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.WrapErr(domain.KindUnknown, "delete group", err)
	}
	l.logger.Info("group removed", "project", project.Name, "group", group.Name)
	return nil
}

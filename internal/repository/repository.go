package repository

import (
	"context"
	"time"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

// AccountRepository persists accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	// GetAccountByLogin matches either username or email.
	GetAccountByLogin(ctx context.Context, login string) (*domain.Account, error)
}

// SessionRepository persists authentication sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)
	// EndSession conditionally flips an active session to ended. It
	// reports whether a row matched; zero matches is not an error.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
	// EndSessionsForAccount ends every active session of the account
	// and returns how many rows were touched.
	EndSessionsForAccount(ctx context.Context, accountID string, endedAt time.Time) (int64, error)
}

// ProjectRepository persists projects and their ref lists.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByName(ctx context.Context, name string) (*domain.Project, error)
	DeleteProjectByName(ctx context.Context, name string) error
	// UpdateProjectRefs writes the collaborator and group ref lists
	// conditioned on the version the caller loaded, returning
	// ErrVersionConflict when a concurrent writer got there first.
	UpdateProjectRefs(ctx context.Context, projectID string, version int64, collaboratorIDs, groupIDs []string) error
	SetProjectStorage(ctx context.Context, projectID string, storage *domain.StorageDescriptor) error
}

// GroupRepository persists project-scoped groups.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group *domain.Group) error
	GetGroupByName(ctx context.Context, projectID, name string) (*domain.Group, error)
	RenameGroup(ctx context.Context, groupID, name string) error
	DeleteGroup(ctx context.Context, groupID string) error
	ListGroupIDsByMember(ctx context.Context, accountID string) ([]string, error)
}

// TemplateRepository stores the template registry.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template *domain.Template) error
	GetTemplateByName(ctx context.Context, name string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
}

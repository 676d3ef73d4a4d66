package identity

import (
	"context"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

// Credentials carry a login attempt. Login may hold a username or an
// email address.
type Credentials struct {
	Login    string
	Password string
}

// SignupData carries a registration request.
type SignupData struct {
	Username string
	Email    string
	Password string
}

// GroupDescriptor names a group for membership operations. NewName is
// only consulted by updates.
type GroupDescriptor struct {
	Name    string
	NewName string
}

// LoginResult is the outcome of a successful login or signup. Account
// never carries a password hash.
type LoginResult struct {
	Token   string
	Account *domain.Account
}

// Backend is the identity provider for one project. It is resolved
// once per project and threaded through every account-facing call, so
// local and delegated paths are never mixed within one operation.
type Backend interface {
	Login(ctx context.Context, project *domain.Project, creds Credentials) (*LoginResult, error)
	Signup(ctx context.Context, project *domain.Project, data SignupData) (*LoginResult, error)
	Logout(ctx context.Context, project *domain.Project, username string) error
	AddGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error)
	UpdateGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error)
	RemoveGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) error
}

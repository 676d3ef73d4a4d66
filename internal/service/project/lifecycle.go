package project

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
	"github.com/prescottprue/tessellate-sub000/internal/service/membership"
	"github.com/prescottprue/tessellate-sub000/internal/service/provision"
	"github.com/prescottprue/tessellate-sub000/internal/service/storage"
	"github.com/prescottprue/tessellate-sub000/pkg/crypto"
)

// DelegateInput configures delegated identity on a new project.
type DelegateInput struct {
	BaseURL string
	Realm   string
	APIKey  string
}

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	Name     string
	OwnerID  string
	Template *provision.TemplateRef
	Delegate *DelegateInput
}

// Lifecycle composes identity, membership, storage and provisioning
// into the project-facing operations.
type Lifecycle struct {
	resolver   *identity.Resolver
	membership membership.Directory
	storage    storage.Provisioner
	pipeline   provision.Pipeline
	projects   repository.ProjectRepository
	secretsKey string
	logger     *slog.Logger
}

// New constructs a Lifecycle.
func New(resolver *identity.Resolver, directory membership.Directory, provisioner storage.Provisioner, pipeline provision.Pipeline, projects repository.ProjectRepository, secretsKey string, logger *slog.Logger) Lifecycle {
	return Lifecycle{
		resolver:   resolver,
		membership: directory,
		storage:    provisioner,
		pipeline:   pipeline,
		projects:   projects,
		secretsKey: secretsKey,
		logger:     logger,
	}
}

// Create provisions hosting storage, persists the project and
// enqueues its template job. Enqueue failure rolls the project row
// back; the already-created bucket is reported but not deleted here.
func (l Lifecycle) Create(ctx context.Context, input CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.E(domain.KindValidation, "project name required")
	}
	if input.OwnerID == "" {
		return nil, domain.E(domain.KindValidation, "owner id required")
	}
	now := time.Now().UTC()
	proj := &domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   input.OwnerID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Delegate != nil {
		encrypted, err := crypto.EncryptString(l.secretsKey, input.Delegate.APIKey)
		if err != nil {
			return nil, domain.WrapErr(domain.KindConfiguration, "encrypt delegate api key", err)
		}
		proj.Delegate = &domain.DelegateConfig{
			BaseURL:      input.Delegate.BaseURL,
			Realm:        input.Delegate.Realm,
			EncryptedKey: encrypted,
		}
	}

	descriptor, err := l.storage.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	proj.Storage = descriptor

	var ref provision.TemplateRef
	if input.Template != nil {
		ref = *input.Template
	}
	if err := l.pipeline.CreateWithTemplate(ctx, proj, ref); err != nil {
		return nil, err
	}
	l.logger.Info("project created", "project", name, "owner_id", input.OwnerID, "delegated", proj.Delegated())
	return proj, nil
}

// Get fetches a project by name.
func (l Lifecycle) Get(ctx context.Context, name string) (*domain.Project, error) {
	proj, err := l.projects.GetProjectByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.E(domain.KindNotFound, "project not found")
		}
		return nil, domain.WrapErr(domain.KindUnknown, "find project", err)
	}
	return proj, nil
}

// Delete removes the project row, then best-effort removes its
// storage. A missing row reports NotFound without touching storage.
func (l Lifecycle) Delete(ctx context.Context, name string) error {
	proj, err := l.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := l.projects.DeleteProjectByName(ctx, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.E(domain.KindNotFound, "project not found")
		}
		return domain.WrapErr(domain.KindUnknown, "delete project", err)
	}
	if proj.Storage != nil {
		if err := l.storage.Remove(ctx, proj.Storage); err != nil {
			// storage cleanup is best-effort once the row is gone
			l.logger.Warn("storage removal failed", "project", name, "bucket", proj.Storage.Name, "error", err)
		}
	}
	l.logger.Info("project deleted", "project", name)
	return nil
}

// Login authenticates against the project's identity backend.
func (l Lifecycle) Login(ctx context.Context, projectName string, creds identity.Credentials) (*identity.LoginResult, error) {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	backend, err := l.resolver.ForProject(proj)
	if err != nil {
		return nil, err
	}
	return backend.Login(ctx, proj, creds)
}

// Signup registers an account through the project's identity backend
// and logs it in.
func (l Lifecycle) Signup(ctx context.Context, projectName string, data identity.SignupData) (*identity.LoginResult, error) {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	backend, err := l.resolver.ForProject(proj)
	if err != nil {
		return nil, err
	}
	return backend.Signup(ctx, proj, data)
}

// Logout ends the account's sessions. It always reports success to
// the caller; internal failures are only logged.
func (l Lifecycle) Logout(ctx context.Context, projectName, username string) error {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil
		}
		l.logger.Warn("logout project lookup failed", "project", projectName, "error", err)
		return nil
	}
	backend, err := l.resolver.ForProject(proj)
	if err != nil {
		l.logger.Warn("logout backend resolution failed", "project", projectName, "error", err)
		return nil
	}
	if err := backend.Logout(ctx, proj, username); err != nil {
		l.logger.Warn("logout failed", "project", projectName, "username", username, "error", err)
	}
	return nil
}

// AddCollaborators links accounts to the project by username.
func (l Lifecycle) AddCollaborators(ctx context.Context, projectName string, usernames []string) (*domain.Project, error) {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return l.membership.AddCollaborators(ctx, proj, usernames)
}

// AddGroup creates or reuses a group on the project.
func (l Lifecycle) AddGroup(ctx context.Context, projectName string, desc identity.GroupDescriptor) (*domain.Group, error) {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return l.membership.AddGroup(ctx, proj, desc)
}

// UpdateGroup renames a group on the project.
func (l Lifecycle) UpdateGroup(ctx context.Context, projectName string, desc identity.GroupDescriptor) (*domain.Group, error) {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return l.membership.UpdateGroup(ctx, proj, desc)
}

// DeleteGroup removes a group from the project.
func (l Lifecycle) DeleteGroup(ctx context.Context, projectName string, desc identity.GroupDescriptor) error {
	proj, err := l.Get(ctx, projectName)
	if err != nil {
		return err
	}
	return l.membership.DeleteGroup(ctx, proj, desc)
}

package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
)

// Directory manages a project's groups and collaborator list. Group
// operations dispatch through the project's identity backend;
// collaborator resolution is always local.
type Directory struct {
	resolver *identity.Resolver
	accounts repository.AccountRepository
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New constructs a Directory.
func New(resolver *identity.Resolver, accounts repository.AccountRepository, projects repository.ProjectRepository, logger *slog.Logger) Directory {
	return Directory{resolver: resolver, accounts: accounts, projects: projects, logger: logger}
}

// AddGroup creates or reuses the named group on the project.
func (d Directory) AddGroup(ctx context.Context, project *domain.Project, desc identity.GroupDescriptor) (*domain.Group, error) {
	backend, err := d.resolver.ForProject(project)
	if err != nil {
		return nil, err
	}
	return backend.AddGroup(ctx, project, desc)
}

// UpdateGroup renames a group on the project.
func (d Directory) UpdateGroup(ctx context.Context, project *domain.Project, desc identity.GroupDescriptor) (*domain.Group, error) {
	backend, err := d.resolver.ForProject(project)
	if err != nil {
		return nil, err
	}
	return backend.UpdateGroup(ctx, project, desc)
}

// DeleteGroup removes a group from the project.
func (d Directory) DeleteGroup(ctx context.Context, project *domain.Project, desc identity.GroupDescriptor) error {
	backend, err := d.resolver.ForProject(project)
	if err != nil {
		return err
	}
	return backend.RemoveGroup(ctx, project, desc)
}

// AddCollaborators resolves each username independently and appends
// the resolved account ids to the project in a single version-checked
// save. One lookup's failure does not drop the others: resolved
// accounts are still linked and every failure is reported distinctly
// in the joined error.
func (d Directory) AddCollaborators(ctx context.Context, project *domain.Project, usernames []string) (*domain.Project, error) {
	if len(usernames) == 0 {
		return project, nil
	}
	var resolved []string
	var lookupErrs []error
	for _, username := range usernames {
		name := strings.TrimSpace(username)
		if name == "" {
			lookupErrs = append(lookupErrs, domain.E(domain.KindValidation, "collaborator username required"))
			continue
		}
		account, err := d.accounts.GetAccountByUsername(ctx, name)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				lookupErrs = append(lookupErrs, domain.Ef(domain.KindNotFound, "collaborator %q not found", name))
			} else {
				lookupErrs = append(lookupErrs, fmt.Errorf("resolve collaborator %q: %w", name, err))
			}
			continue
		}
		resolved = append(resolved, account.ID)
	}

	updated := project
	if len(resolved) > 0 {
		var err error
		updated, err = repository.MutateProjectRefs(ctx, d.projects, project.Name, func(p *domain.Project) bool {
			changed := false
			for _, id := range resolved {
				if p.HasCollaborator(id) {
					continue
				}
				p.CollaboratorIDs = append(p.CollaboratorIDs, id)
				changed = true
			}
			return changed
		})
		if err != nil {
			lookupErrs = append(lookupErrs, domain.WrapErr(domain.KindUnknown, "save collaborators", err))
			updated = project
		} else {
			d.logger.Info("collaborators added", "project", project.Name, "count", len(resolved))
		}
	}
	return updated, errors.Join(lookupErrs...)
}

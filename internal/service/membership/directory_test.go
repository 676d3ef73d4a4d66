package membership

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
	"github.com/prescottprue/tessellate-sub000/internal/service/session"
)

type stubRepo struct {
	accounts map[string]*domain.Account
	groups   map[string]*domain.Group
	projects map[string]*domain.Project
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts: make(map[string]*domain.Account),
		groups:   make(map[string]*domain.Group),
		projects: make(map[string]*domain.Project),
	}
}

func (s *stubRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.accounts[account.Username] = account
	return nil
}

func (s *stubRepo) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	for _, account := range s.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	if account, ok := s.accounts[username]; ok {
		return account, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, repository.ErrNotFound
}

func (s *stubRepo) GetAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	return s.GetAccountByUsername(ctx, login)
}

func (s *stubRepo) CreateSession(ctx context.Context, sess *domain.Session) error { return nil }

func (s *stubRepo) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return nil, repository.ErrNotFound
}

func (s *stubRepo) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	return false, nil
}

func (s *stubRepo) EndSessionsForAccount(ctx context.Context, accountID string, endedAt time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) CreateProject(ctx context.Context, project *domain.Project) error { return nil }

func (s *stubRepo) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	if project, ok := s.projects[name]; ok {
		clone := *project
		clone.CollaboratorIDs = append([]string(nil), project.CollaboratorIDs...)
		clone.GroupIDs = append([]string(nil), project.GroupIDs...)
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) DeleteProjectByName(ctx context.Context, name string) error { return nil }

func (s *stubRepo) UpdateProjectRefs(ctx context.Context, projectID string, version int64, collaboratorIDs, groupIDs []string) error {
	for _, project := range s.projects {
		if project.ID == projectID {
			if project.Version != version {
				return repository.ErrVersionConflict
			}
			project.CollaboratorIDs = collaboratorIDs
			project.GroupIDs = groupIDs
			project.Version++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubRepo) SetProjectStorage(ctx context.Context, projectID string, storage *domain.StorageDescriptor) error {
	return nil
}

func (s *stubRepo) CreateGroup(ctx context.Context, group *domain.Group) error {
	s.groups[group.Name] = group
	return nil
}

func (s *stubRepo) GetGroupByName(ctx context.Context, projectID, name string) (*domain.Group, error) {
	if group, ok := s.groups[name]; ok && group.ProjectID == projectID {
		return group, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepo) RenameGroup(ctx context.Context, groupID, name string) error { return nil }

func (s *stubRepo) DeleteGroup(ctx context.Context, groupID string) error { return nil }

func (s *stubRepo) ListGroupIDsByMember(ctx context.Context, accountID string) ([]string, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDirectory(repo *stubRepo) Directory {
	sessions := session.New(repo, "test-secret", testLogger())
	local := identity.NewLocal(repo, repo, repo, sessions, testLogger())
	resolver := identity.NewResolver(local, "secrets-key", time.Second, testLogger())
	return New(resolver, repo, repo, testLogger())
}

func TestAddCollaboratorsLinksResolved(t *testing.T) {
	repo := newStubRepo()
	repo.projects["my-app"] = &domain.Project{ID: "proj-1", Name: "my-app", Version: 1}
	repo.accounts["alice"] = &domain.Account{ID: "acct-alice", Username: "alice"}
	repo.accounts["bob"] = &domain.Account{ID: "acct-bob", Username: "bob"}
	dir := newDirectory(repo)

	project, _ := repo.GetProjectByName(context.Background(), "my-app")
	updated, err := dir.AddCollaborators(context.Background(), project, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acct-alice", "acct-bob"}, updated.CollaboratorIDs)
}

func TestAddCollaboratorsPartialFailure(t *testing.T) {
	repo := newStubRepo()
	repo.projects["my-app"] = &domain.Project{ID: "proj-1", Name: "my-app", Version: 1}
	repo.accounts["alice"] = &domain.Account{ID: "acct-alice", Username: "alice"}
	dir := newDirectory(repo)

	project, _ := repo.GetProjectByName(context.Background(), "my-app")
	updated, err := dir.AddCollaborators(context.Background(), project, []string{"alice", "ghost", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost" not found`)
	// the resolved collaborator is still linked
	assert.Equal(t, []string{"acct-alice"}, updated.CollaboratorIDs)
	assert.Equal(t, []string{"acct-alice"}, repo.projects["my-app"].CollaboratorIDs)
}

func TestAddCollaboratorsDeduplicates(t *testing.T) {
	repo := newStubRepo()
	repo.projects["my-app"] = &domain.Project{ID: "proj-1", Name: "my-app", Version: 1, CollaboratorIDs: []string{"acct-alice"}}
	repo.accounts["alice"] = &domain.Account{ID: "acct-alice", Username: "alice"}
	dir := newDirectory(repo)

	project, _ := repo.GetProjectByName(context.Background(), "my-app")
	updated, err := dir.AddCollaborators(context.Background(), project, []string{"alice", "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-alice"}, updated.CollaboratorIDs)
	// nothing changed, so the version-checked write was skipped
	assert.Equal(t, int64(1), repo.projects["my-app"].Version)
}

func TestAddCollaboratorsEmptyInput(t *testing.T) {
	repo := newStubRepo()
	repo.projects["my-app"] = &domain.Project{ID: "proj-1", Name: "my-app", Version: 1}
	dir := newDirectory(repo)

	project, _ := repo.GetProjectByName(context.Background(), "my-app")
	updated, err := dir.AddCollaborators(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Same(t, project, updated)
}

func TestGroupOpsDispatchToLocalBackend(t *testing.T) {
	repo := newStubRepo()
	repo.projects["my-app"] = &domain.Project{ID: "proj-1", Name: "my-app", Version: 1}
	dir := newDirectory(repo)

	project, _ := repo.GetProjectByName(context.Background(), "my-app")
	group, err := dir.AddGroup(context.Background(), project, identity.GroupDescriptor{Name: "editors"})
	require.NoError(t, err)
	assert.Equal(t, "editors", group.Name)
	assert.Contains(t, repo.projects["my-app"].GroupIDs, group.ID)
}

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

type stubProjectRepository struct {
	project    domain.Project
	updates    int
	conflicts  int
	updatedCol []string
	updatedGrp []string
}

func (s *stubProjectRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	return nil
}

func (s *stubProjectRepository) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	clone := s.project
	return &clone, nil
}

func (s *stubProjectRepository) DeleteProjectByName(ctx context.Context, name string) error {
	return nil
}

func (s *stubProjectRepository) UpdateProjectRefs(ctx context.Context, projectID string, version int64, collaboratorIDs, groupIDs []string) error {
	s.updates++
	if s.conflicts > 0 {
		s.conflicts--
		s.project.Version++
		return ErrVersionConflict
	}
	s.project.Version = version + 1
	s.updatedCol = collaboratorIDs
	s.updatedGrp = groupIDs
	return nil
}

func (s *stubProjectRepository) SetProjectStorage(ctx context.Context, projectID string, storage *domain.StorageDescriptor) error {
	return nil
}

func TestMutateProjectRefsWrites(t *testing.T) {
	repo := &stubProjectRepository{project: domain.Project{ID: "proj-1", Name: "app", Version: 3}}

	updated, err := MutateProjectRefs(context.Background(), repo, "app", func(p *domain.Project) bool {
		p.CollaboratorIDs = append(p.CollaboratorIDs, "acct-1")
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.updates)
	assert.Equal(t, []string{"acct-1"}, repo.updatedCol)
	assert.Equal(t, int64(4), updated.Version)
}

func TestMutateProjectRefsShortCircuits(t *testing.T) {
	repo := &stubProjectRepository{project: domain.Project{ID: "proj-1", Name: "app", Version: 3, GroupIDs: []string{"grp-1"}}}

	updated, err := MutateProjectRefs(context.Background(), repo, "app", func(p *domain.Project) bool {
		return false
	})
	require.NoError(t, err)
	assert.Zero(t, repo.updates)
	assert.Equal(t, int64(3), updated.Version)
}

func TestMutateProjectRefsRetriesOnConflict(t *testing.T) {
	repo := &stubProjectRepository{project: domain.Project{ID: "proj-1", Name: "app", Version: 1}, conflicts: 2}

	_, err := MutateProjectRefs(context.Background(), repo, "app", func(p *domain.Project) bool {
		p.GroupIDs = append(p.GroupIDs, "grp-1")
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.updates)
	assert.Equal(t, []string{"grp-1"}, repo.updatedGrp)
}

func TestMutateProjectRefsGivesUpEventually(t *testing.T) {
	repo := &stubProjectRepository{project: domain.Project{ID: "proj-1", Name: "app", Version: 1}, conflicts: 100}

	_, err := MutateProjectRefs(context.Background(), repo, "app", func(p *domain.Project) bool {
		p.GroupIDs = append(p.GroupIDs, "grp-1")
		return true
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

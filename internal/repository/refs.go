package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

const refWriteAttempts = 5

// MutateProjectRefs loads the named project, applies mutate in memory
// and writes the ref lists back conditioned on the loaded version.
// A conflicting concurrent writer triggers a reload and retry. mutate
// returns false to signal there is nothing to write, which short-
// circuits with the loaded project unchanged.
func MutateProjectRefs(ctx context.Context, projects ProjectRepository, name string, mutate func(*domain.Project) bool) (*domain.Project, error) {
	var result *domain.Project
	backoff := retry.WithMaxRetries(refWriteAttempts, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		project, err := projects.GetProjectByName(ctx, name)
		if err != nil {
			return err
		}
		if !mutate(project) {
			result = project
			return nil
		}
		if err := projects.UpdateProjectRefs(ctx, project.ID, project.Version, project.CollaboratorIDs, project.GroupIDs); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		project.Version++
		result = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

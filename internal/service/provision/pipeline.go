package provision

import (
	"context"
	"errors"

	"log/slog"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/queue"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
)

// TemplateRef names the template to apply. Empty fields fall back to
// the sentinel defaults.
type TemplateRef struct {
	Name string
	Type string
}

// Pipeline enqueues template-provisioning jobs. The request path never
// copies template content inline; success means only that the queue
// accepted the job.
type Pipeline struct {
	queue    queue.Queue
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New constructs a Pipeline. A nil queue marks the transport as
// unconfigured and every enqueue attempt fails fast.
func New(q queue.Queue, projects repository.ProjectRepository, logger *slog.Logger) Pipeline {
	return Pipeline{queue: q, projects: projects, logger: logger}
}

// ApplyTemplate enqueues a job copying the template into the project's
// storage.
func (p Pipeline) ApplyTemplate(ctx context.Context, projectName string, ref TemplateRef) error {
	if ref.Name == "" {
		ref.Name = queue.DefaultTemplateName
	}
	if ref.Type == "" {
		ref.Type = queue.DefaultTemplateType
	}
	if p.queue == nil {
		return domain.E(domain.KindConfiguration, "provisioning queue not configured")
	}
	job := queue.Job{
		TemplateName:    ref.Name,
		TemplateType:    ref.Type,
		ProjectName:     projectName,
		DestinationType: queue.DestinationTypeTag,
	}
	if err := p.queue.Send(ctx, job.Encode()); err != nil {
		return domain.WrapErr(domain.KindUpstream, "enqueue provisioning job", err)
	}
	p.logger.Info("provisioning job enqueued", "project", projectName, "template", ref.Name)
	return nil
}

// CreateWithTemplate persists the project and then enqueues its
// template job. If enqueueing fails the just-created row is deleted
// again so no orphaned project is left behind, and the original error
// is returned.
func (p Pipeline) CreateWithTemplate(ctx context.Context, project *domain.Project, ref TemplateRef) error {
	if err := p.projects.CreateProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.E(domain.KindAlreadyExists, "project name already taken")
		}
		return domain.WrapErr(domain.KindUnknown, "create project", err)
	}
	if err := p.ApplyTemplate(ctx, project.Name, ref); err != nil {
		if delErr := p.projects.DeleteProjectByName(ctx, project.Name); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
			p.logger.Error("compensating project delete failed", "project", project.Name, "error", delErr)
		}
		return err
	}
	return nil
}

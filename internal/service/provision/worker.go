package provision

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/prescottprue/tessellate-sub000/internal/blob"
	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/queue"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
)

// Worker consumes provisioning jobs and copies template content into
// project buckets. Delivery is at-least-once: handling is idempotent
// because object copies overwrite their targets.
type Worker struct {
	consumer  queue.Consumer
	blob      blob.Store
	templates repository.TemplateRepository
	projects  repository.ProjectRepository
	events    *queue.EventPublisher
	logger    *slog.Logger

	// DefaultTemplateBucket serves jobs whose template is missing from
	// the registry.
	DefaultTemplateBucket string
	// PollBackoff throttles the loop after transport errors.
	PollBackoff time.Duration
}

// NewWorker constructs a Worker.
func NewWorker(consumer queue.Consumer, store blob.Store, templates repository.TemplateRepository, projects repository.ProjectRepository, events *queue.EventPublisher, logger *slog.Logger) *Worker {
	return &Worker{
		consumer:    consumer,
		blob:        store,
		templates:   templates,
		projects:    projects,
		events:      events,
		logger:      logger,
		PollBackoff: 2 * time.Second,
	}
}

// Run blocks consuming jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("provisioning worker started")
	for {
		body, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("provisioning worker stopped")
				return
			}
			w.logger.Error("receive provisioning job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.PollBackoff):
			}
			continue
		}
		job, err := queue.DecodeJob(body)
		if err != nil {
			// Malformed messages cannot be retried meaningfully.
			w.logger.Warn("drop malformed provisioning job", "error", err, "body", body)
			continue
		}
		if err := w.Handle(ctx, job); err != nil {
			w.logger.Error("provisioning job failed", "project", job.ProjectName, "template", job.TemplateName, "error", err)
			w.publish(ctx, job, queue.StageFailed, err.Error())
		}
	}
}

// Handle applies one job: resolve the template's source bucket and
// copy every object into the project's bucket.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	w.publish(ctx, job, queue.StageReceived, "provisioning job accepted")

	project, err := w.projects.GetProjectByName(ctx, job.ProjectName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Ef(domain.KindNotFound, "project %q not found", job.ProjectName)
		}
		return domain.WrapErr(domain.KindUnknown, "find project", err)
	}
	if project.Storage == nil || project.Storage.Name == "" {
		return domain.Ef(domain.KindValidation, "project %q has no storage", job.ProjectName)
	}

	sourceBucket := w.DefaultTemplateBucket
	template, err := w.templates.GetTemplateByName(ctx, job.TemplateName)
	switch {
	case err == nil:
		sourceBucket = template.StorageName
	case errors.Is(err, repository.ErrNotFound):
		if sourceBucket == "" {
			return domain.Ef(domain.KindNotFound, "template %q not found", job.TemplateName)
		}
		w.logger.Warn("template missing, using default bucket", "template", job.TemplateName, "bucket", sourceBucket)
	default:
		return domain.WrapErr(domain.KindUnknown, "find template", err)
	}

	keys, err := w.blob.ListObjects(ctx, sourceBucket)
	if err != nil {
		return domain.WrapErr(domain.KindUpstream, "list template objects", err)
	}
	w.publish(ctx, job, queue.StageCopying, "copying template content")
	for _, key := range keys {
		if err := w.blob.CopyObject(ctx, sourceBucket, key, project.Storage.Name, key); err != nil {
			return domain.WrapErr(domain.KindUpstream, "copy template object", err)
		}
	}
	w.logger.Info("template applied", "project", job.ProjectName, "template", job.TemplateName, "objects", len(keys))
	w.publish(ctx, job, queue.StageComplete, "template applied")
	return nil
}

func (w *Worker) publish(ctx context.Context, job queue.Job, stage, message string) {
	w.events.Publish(ctx, queue.Event{
		Project: job.ProjectName,
		Stage:   stage,
		Message: message,
	})
}

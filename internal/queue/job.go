package queue

import (
	"strings"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

// fieldDelimiter joins the four job fields on the wire.
const fieldDelimiter = "**"

// Sentinel defaults applied when a template ref omits fields.
const (
	DefaultTemplateName = "default"
	DefaultTemplateType = "firebase"
	DestinationTypeTag  = "s3"
)

// Job describes one template-provisioning request. It exists only as
// a queue message; the core keeps no job-status record.
type Job struct {
	TemplateName    string
	TemplateType    string
	ProjectName     string
	DestinationType string
}

// Encode serializes the job as a delimiter-joined 4-tuple.
func (j Job) Encode() string {
	return strings.Join([]string{j.TemplateName, j.TemplateType, j.ProjectName, j.DestinationType}, fieldDelimiter)
}

// DecodeJob parses a wire message back into a Job.
func DecodeJob(body string) (Job, error) {
	fields := strings.Split(body, fieldDelimiter)
	if len(fields) != 4 {
		return Job{}, domain.Ef(domain.KindValidation, "malformed job message: expected 4 fields, got %d", len(fields))
	}
	return Job{
		TemplateName:    fields[0],
		TemplateType:    fields[1],
		ProjectName:     fields[2],
		DestinationType: fields[3],
	}, nil
}

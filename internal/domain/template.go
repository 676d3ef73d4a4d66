package domain

import "time"

// Template is a named bundle of site content that provisioning jobs
// copy into a project's bucket.
type Template struct {
	ID          string
	Name        string
	OwnerID     string
	StorageName string
	Tags        []string
	Frameworks  []string
	CreatedAt   time.Time
}

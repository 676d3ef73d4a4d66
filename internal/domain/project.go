package domain

import "time"

// Project is a tenant-owned unit with optional hosting storage and
// optional delegated identity.
type Project struct {
	ID              string
	Name            string
	OwnerID         string
	CollaboratorIDs []string
	GroupIDs        []string
	// Version guards ref-list writes; every successful ref update
	// increments it and writes are conditioned on the loaded value.
	Version   int64
	Storage   *StorageDescriptor
	Delegate  *DelegateConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delegated reports whether account-facing operations on the project
// route through the external identity delegate.
func (p *Project) Delegated() bool {
	return p != nil && p.Delegate != nil
}

// HasGroup reports whether the project already references the group id.
func (p *Project) HasGroup(groupID string) bool {
	for _, id := range p.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// HasCollaborator reports whether the account id is already listed.
func (p *Project) HasCollaborator(accountID string) bool {
	for _, id := range p.CollaboratorIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// StorageDescriptor identifies a project's hosting bucket.
type StorageDescriptor struct {
	Name      string
	Provider  string
	SiteURL   string
	BucketURL string
}

// DelegateConfig points a project at an external identity service.
// The API key is kept encrypted at rest.
type DelegateConfig struct {
	BaseURL      string
	Realm        string
	EncryptedKey []byte
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.AccountRepository  = (*Repository)(nil)
	_ repository.SessionRepository  = (*Repository)(nil)
	_ repository.ProjectRepository  = (*Repository)(nil)
	_ repository.GroupRepository    = (*Repository)(nil)
	_ repository.TemplateRepository = (*Repository)(nil)
)

// isDuplicate detects unique-constraint violations. The constraint is
// the authoritative race signal for duplicate usernames, emails and
// project names.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAccount inserts an account. A duplicate username or email maps
// to repository.ErrDuplicate.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `INSERT INTO accounts (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt)
	if isDuplicate(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *Repository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetAccountByID retrieves an account by identifier.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM accounts WHERE id = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetAccountByUsername fetches an account by username.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM accounts WHERE username = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, username))
}

// GetAccountByEmail fetches an account by email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM accounts WHERE email = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, email))
}

// GetAccountByLogin matches either username or email.
func (r *Repository) GetAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM accounts
		WHERE username = $1 OR email = $1`
	return r.scanAccount(r.pool.QueryRow(ctx, query, login))
}

// CreateSession inserts a session row.
func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `INSERT INTO sessions (id, account_id, active, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, session.ID, session.AccountID, session.Active, session.CreatedAt, session.EndedAt)
	return err
}

// GetSessionByID retrieves a session.
func (r *Repository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	const query = `SELECT id, account_id, active, created_at, ended_at FROM sessions WHERE id = $1`
	var s domain.Session
	if err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.AccountID, &s.Active, &s.CreatedAt, &s.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// EndSession flips an active session to ended. The WHERE active guard
// makes concurrent end calls race-safe: the loser matches zero rows.
func (r *Repository) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	const query = `UPDATE sessions SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`
	tag, err := r.pool.Exec(ctx, query, sessionID, endedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EndSessionsForAccount ends all active sessions of an account.
func (r *Repository) EndSessionsForAccount(ctx context.Context, accountID string, endedAt time.Time) (int64, error) {
	const query = `UPDATE sessions SET active = FALSE, ended_at = $2 WHERE account_id = $1 AND active`
	tag, err := r.pool.Exec(ctx, query, accountID, endedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateProject inserts a project. Duplicate names map to
// repository.ErrDuplicate.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (
			id, name, owner_id, collaborator_ids, group_ids, version,
			storage_name, storage_provider, storage_site_url, storage_bucket_url,
			delegate_base_url, delegate_realm, delegate_api_key,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	var storageName, storageProvider, siteURL, bucketURL *string
	if project.Storage != nil {
		storageName = &project.Storage.Name
		storageProvider = &project.Storage.Provider
		siteURL = &project.Storage.SiteURL
		bucketURL = &project.Storage.BucketURL
	}
	var delegateURL, delegateRealm *string
	var delegateKey []byte
	if project.Delegate != nil {
		delegateURL = &project.Delegate.BaseURL
		delegateRealm = &project.Delegate.Realm
		delegateKey = project.Delegate.EncryptedKey
	}
	_, err := r.pool.Exec(ctx, query,
		project.ID, project.Name, project.OwnerID,
		project.CollaboratorIDs, project.GroupIDs, project.Version,
		storageName, storageProvider, siteURL, bucketURL,
		delegateURL, delegateRealm, delegateKey,
		project.CreatedAt, project.UpdatedAt)
	if isDuplicate(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetProjectByName retrieves a project with its ref lists.
func (r *Repository) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	const query = `SELECT id, name, owner_id, collaborator_ids, group_ids, version,
			storage_name, storage_provider, storage_site_url, storage_bucket_url,
			delegate_base_url, delegate_realm, delegate_api_key,
			created_at, updated_at
		FROM projects WHERE name = $1`
	var p domain.Project
	var storageName, storageProvider, siteURL, bucketURL *string
	var delegateURL, delegateRealm *string
	var delegateKey []byte
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&p.ID, &p.Name, &p.OwnerID, &p.CollaboratorIDs, &p.GroupIDs, &p.Version,
		&storageName, &storageProvider, &siteURL, &bucketURL,
		&delegateURL, &delegateRealm, &delegateKey,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if storageName != nil {
		p.Storage = &domain.StorageDescriptor{Name: *storageName}
		if storageProvider != nil {
			p.Storage.Provider = *storageProvider
		}
		if siteURL != nil {
			p.Storage.SiteURL = *siteURL
		}
		if bucketURL != nil {
			p.Storage.BucketURL = *bucketURL
		}
	}
	if delegateURL != nil {
		p.Delegate = &domain.DelegateConfig{BaseURL: *delegateURL, EncryptedKey: delegateKey}
		if delegateRealm != nil {
			p.Delegate.Realm = *delegateRealm
		}
	}
	return &p, nil
}

// DeleteProjectByName removes a project row, reporting
// repository.ErrNotFound when no row matched.
func (r *Repository) DeleteProjectByName(ctx context.Context, name string) error {
	const query = `DELETE FROM projects WHERE name = $1`
	tag, err := r.pool.Exec(ctx, query, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateProjectRefs writes the ref lists conditioned on version.
func (r *Repository) UpdateProjectRefs(ctx context.Context, projectID string, version int64, collaboratorIDs, groupIDs []string) error {
	const query = `UPDATE projects
		SET collaborator_ids = $3, group_ids = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`
	tag, err := r.pool.Exec(ctx, query, projectID, version, collaboratorIDs, groupIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

// SetProjectStorage attaches or clears a project's storage descriptor.
func (r *Repository) SetProjectStorage(ctx context.Context, projectID string, storage *domain.StorageDescriptor) error {
	const query = `UPDATE projects
		SET storage_name = $2, storage_provider = $3, storage_site_url = $4, storage_bucket_url = $5, updated_at = NOW()
		WHERE id = $1`
	var name, provider, siteURL, bucketURL *string
	if storage != nil {
		name = &storage.Name
		provider = &storage.Provider
		siteURL = &storage.SiteURL
		bucketURL = &storage.BucketURL
	}
	tag, err := r.pool.Exec(ctx, query, projectID, name, provider, siteURL, bucketURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateGroup inserts a group. The (project_id, name) unique index
// maps duplicates to repository.ErrDuplicate.
func (r *Repository) CreateGroup(ctx context.Context, group *domain.Group) error {
	const query = `INSERT INTO groups (id, project_id, name, member_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, group.ID, group.ProjectID, group.Name, group.MemberIDs, group.CreatedAt)
	if isDuplicate(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetGroupByName fetches a group scoped to a project.
func (r *Repository) GetGroupByName(ctx context.Context, projectID, name string) (*domain.Group, error) {
	const query = `SELECT id, project_id, name, member_ids, created_at FROM groups
		WHERE project_id = $1 AND name = $2`
	var g domain.Group
	if err := r.pool.QueryRow(ctx, query, projectID, name).Scan(&g.ID, &g.ProjectID, &g.Name, &g.MemberIDs, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// RenameGroup updates a group's name.
func (r *Repository) RenameGroup(ctx context.Context, groupID, name string) error {
	const query = `UPDATE groups SET name = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, groupID, name)
	if err != nil {
		if isDuplicate(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteGroup removes a group row.
func (r *Repository) DeleteGroup(ctx context.Context, groupID string) error {
	const query = `DELETE FROM groups WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListGroupIDsByMember returns ids of groups the account belongs to.
func (r *Repository) ListGroupIDsByMember(ctx context.Context, accountID string) ([]string, error) {
	const query = `SELECT id FROM groups WHERE $1 = ANY(member_ids) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateTemplate registers a template.
func (r *Repository) CreateTemplate(ctx context.Context, template *domain.Template) error {
	const query = `INSERT INTO templates (id, name, owner_id, storage_name, tags, frameworks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, template.ID, template.Name, template.OwnerID, template.StorageName, template.Tags, template.Frameworks, template.CreatedAt)
	if isDuplicate(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetTemplateByName fetches a template by its unique name.
func (r *Repository) GetTemplateByName(ctx context.Context, name string) (*domain.Template, error) {
	const query = `SELECT id, name, owner_id, storage_name, tags, frameworks, created_at FROM templates WHERE name = $1`
	var t domain.Template
	if err := r.pool.QueryRow(ctx, query, name).Scan(&t.ID, &t.Name, &t.OwnerID, &t.StorageName, &t.Tags, &t.Frameworks, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTemplates returns the full template registry.
func (r *Repository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	const query = `SELECT id, name, owner_id, storage_name, tags, frameworks, created_at FROM templates ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.OwnerID, &t.StorageName, &t.Tags, &t.Frameworks, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

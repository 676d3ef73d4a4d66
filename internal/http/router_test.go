package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/repository"
	"github.com/prescottprue/tessellate-sub000/internal/service/membership"
	"github.com/prescottprue/tessellate-sub000/internal/service/project"
	"github.com/prescottprue/tessellate-sub000/internal/service/provision"
	"github.com/prescottprue/tessellate-sub000/internal/service/session"
	"github.com/prescottprue/tessellate-sub000/internal/service/storage"
	"github.com/prescottprue/tessellate-sub000/internal/ws"
	"github.com/prescottprue/tessellate-sub000/pkg/jwt"
)

const testTokenSecret = "router-test-secret"

type memStore struct {
	accounts map[string]*domain.Account
	groups   map[string]*domain.Group
	projects map[string]*domain.Project
	sessions map[string]*domain.Session
	buckets  map[string][]string
	jobs     []string
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*domain.Account),
		groups:   make(map[string]*domain.Group),
		projects: make(map[string]*domain.Project),
		sessions: make(map[string]*domain.Session),
		buckets:  make(map[string][]string),
	}
}

func (m *memStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	for _, existing := range m.accounts {
		if existing.Username == account.Username || existing.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *memStore) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) GetAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.Username == login || account.Email == login {
			return account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	m.sessions[sess.ID] = sess
	return nil
}

func (m *memStore) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	sess, ok := m.sessions[sessionID]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.Active = false
	sess.EndedAt = &endedAt
	return true, nil
}

func (m *memStore) EndSessionsForAccount(ctx context.Context, accountID string, endedAt time.Time) (int64, error) {
	var count int64
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && sess.Active {
			sess.Active = false
			sess.EndedAt = &endedAt
			count++
		}
	}
	return count, nil
}

func (m *memStore) CreateProject(ctx context.Context, proj *domain.Project) error {
	if _, ok := m.projects[proj.Name]; ok {
		return repository.ErrDuplicate
	}
	m.projects[proj.Name] = proj
	return nil
}

func (m *memStore) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	if proj, ok := m.projects[name]; ok {
		return proj, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) DeleteProjectByName(ctx context.Context, name string) error {
	if _, ok := m.projects[name]; !ok {
		return repository.ErrNotFound
	}
	delete(m.projects, name)
	return nil
}

func (m *memStore) UpdateProjectRefs(ctx context.Context, projectID string, version int64, collaboratorIDs, groupIDs []string) error {
	for _, proj := range m.projects {
		if proj.ID == projectID {
			if proj.Version != version {
				return repository.ErrVersionConflict
			}
			proj.CollaboratorIDs = collaboratorIDs
			proj.GroupIDs = groupIDs
			proj.Version++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) SetProjectStorage(ctx context.Context, projectID string, descriptor *domain.StorageDescriptor) error {
	return nil
}

func (m *memStore) CreateGroup(ctx context.Context, group *domain.Group) error {
	for _, existing := range m.groups {
		if existing.ProjectID == group.ProjectID && existing.Name == group.Name {
			return repository.ErrDuplicate
		}
	}
	m.groups[group.ID] = group
	return nil
}

func (m *memStore) GetGroupByName(ctx context.Context, projectID, name string) (*domain.Group, error) {
	for _, group := range m.groups {
		if group.ProjectID == projectID && group.Name == name {
			return group, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) RenameGroup(ctx context.Context, groupID, name string) error {
	group, ok := m.groups[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	group.Name = name
	return nil
}

func (m *memStore) DeleteGroup(ctx context.Context, groupID string) error {
	delete(m.groups, groupID)
	return nil
}

func (m *memStore) ListGroupIDsByMember(ctx context.Context, accountID string) ([]string, error) {
	return nil, nil
}

func (m *memStore) CreateBucket(ctx context.Context, name string) error {
	m.buckets[name] = nil
	return nil
}

func (m *memStore) DeleteBucket(ctx context.Context, name string) error {
	delete(m.buckets, name)
	return nil
}

func (m *memStore) PutObject(ctx context.Context, bucket, key string, content []byte) error {
	return nil
}

func (m *memStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	return m.buckets[bucket], nil
}

func (m *memStore) DeleteObject(ctx context.Context, bucket, key string) error { return nil }

func (m *memStore) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	return nil
}

func (m *memStore) ApplyPublicReadPolicy(ctx context.Context, bucket string) error { return nil }

func (m *memStore) ConfigureWebsite(ctx context.Context, bucket, indexDocument string) error {
	return nil
}

func (m *memStore) Send(ctx context.Context, body string) error {
	m.jobs = append(m.jobs, body)
	return nil
}

func newTestRouter(t *testing.T) (*Router, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.New(store, testTokenSecret, logger)
	local := identity.NewLocal(store, store, store, sessions, logger)
	resolver := identity.NewResolver(local, "secrets-key", time.Second, logger)
	directory := membership.New(resolver, store, store, logger)
	provisioner := storage.New(store, storage.Config{
		BucketPrefix:  "tessellate-",
		StorageDomain: "s3.amazonaws.com",
		SiteDomain:    "s3-website-us-east-1.amazonaws.com",
	}, logger)
	pipeline := provision.New(store, store, logger)
	lifecycle := project.New(resolver, directory, provisioner, pipeline, store, "secrets-key", logger)

	router := NewRouter(logger, lifecycle, ws.NewHub(), NewMemoryRateLimiter(), testTokenSecret, nil)
	t.Cleanup(router.Close)
	return router, store
}

func authToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.Generate("acct-owner", "owner", "sess-1", nil, testTokenSecret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router *Router, method, path, token string, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateProjectRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", "", `{"name":"my-app"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetProject(t *testing.T) {
	router, store := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created projectView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "my-app", created.Name)
	assert.Equal(t, "acct-owner", created.OwnerID)
	require.NotNil(t, created.Storage)
	assert.Contains(t, store.buckets, created.Storage.Name)
	assert.Len(t, store.jobs, 1)

	rec = doJSON(t, router, http.MethodGet, "/projects/my-app", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/signup", "",
		`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var signedUp loginView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signedUp))
	assert.NotEmpty(t, signedUp.Token)
	assert.Equal(t, "alice", signedUp.Account.Username)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/login", "",
		`{"username":"alice","password":"hunter22"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/login", "",
		`{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/logout", "",
		`{"username":"alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteProject(t *testing.T) {
	router, store := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/projects/my-app", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.projects)

	rec = doJSON(t, router, http.MethodDelete, "/projects/my-app", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/groups", token, `{"name":"editors"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPut, "/projects/my-app/groups", token,
		`{"name":"editors","newName":"writers"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var renamed groupView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renamed))
	assert.Equal(t, "writers", renamed.Name)

	rec = doJSON(t, router, http.MethodDelete, "/projects/my-app/groups", token, `{"name":"writers"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/projects/my-app/groups", token, `{"name":"writers"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollaboratorsPartialSuccess(t *testing.T) {
	router, store := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/signup", "",
		`{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/projects/my-app/collaborators", token,
		`{"usernames":["alice","ghost"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Project projectView `json:"project"`
		Errors  []string    `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Project.CollaboratorIDs, 1)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "ghost")
	assert.Len(t, store.projects["my-app"].CollaboratorIDs, 1)
}

func TestHealthzWithoutDBCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSignupRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)
	token := authToken(t)

	rec := doJSON(t, router, http.MethodPost, "/projects", token, `{"name":"my-app"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var last int
	for i := 0; i < rateLimitSignup+1; i++ {
		rec := doJSON(t, router, http.MethodPost, "/projects/my-app/signup", "", `{}`)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRouteLabelCollapsesNames(t *testing.T) {
	assert.Equal(t, "/projects", routeLabel("/projects"))
	assert.Equal(t, "/projects/{name}", routeLabel("/projects/my-app"))
	assert.Equal(t, "/projects/{name}/login", routeLabel("/projects/my-app/login"))
	assert.Equal(t, "/events/{name}", routeLabel("/events/my-app"))
	assert.Equal(t, "/healthz", routeLabel("/healthz"))
	assert.Equal(t, "/", routeLabel("/"))
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("Bearer abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	_, err = bearerToken("")
	assert.Error(t, err)

	_, err = bearerToken("Basic abc123")
	assert.Error(t, err)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		decision := limiter.Allow("ip:1.2.3.4", 3, time.Minute)
		assert.True(t, decision.allowed, "request %d", i)
	}
	decision := limiter.Allow("ip:1.2.3.4", 3, time.Minute)
	assert.False(t, decision.allowed)

	// other keys are unaffected
	assert.True(t, limiter.Allow("ip:5.6.7.8", 3, time.Minute).allowed)
}

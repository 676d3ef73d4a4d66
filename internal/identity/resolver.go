package identity

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/pkg/crypto"
)

// Resolver picks the identity backend for a project: delegated when
// the project carries delegate configuration, local otherwise. The
// choice is made once per project, never per sub-operation.
type Resolver struct {
	local      *Local
	secretsKey string
	client     *http.Client
	logger     *slog.Logger
}

// NewResolver constructs a Resolver. secretsKey decrypts delegate API
// keys stored on projects.
func NewResolver(local *Local, secretsKey string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		local:      local,
		secretsKey: secretsKey,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ForProject returns the backend serving the project.
func (r *Resolver) ForProject(project *domain.Project) (Backend, error) {
	if !project.Delegated() {
		return r.local, nil
	}
	apiKey, err := crypto.DecryptToString(r.secretsKey, project.Delegate.EncryptedKey)
	if err != nil {
		return nil, domain.WrapErr(domain.KindConfiguration, "decrypt delegate api key", err)
	}
	return NewDelegate(DelegateSettings{
		BaseURL: project.Delegate.BaseURL,
		Realm:   project.Delegate.Realm,
		APIKey:  apiKey,
	}, r.client, r.logger)
}

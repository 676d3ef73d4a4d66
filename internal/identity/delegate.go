package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"log/slog"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

// Delegate implements Backend by forwarding every call to an external
// multi-tenant identity service. Local persistence is bypassed
// entirely; the delegate's responses pass through.
type Delegate struct {
	baseURL string
	realm   string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ Backend = (*Delegate)(nil)

// DelegateSettings configure one delegate client.
type DelegateSettings struct {
	BaseURL string
	Realm   string
	APIKey  string
}

// NewDelegate validates settings and returns a delegate client.
func NewDelegate(settings DelegateSettings, client *http.Client, logger *slog.Logger) (*Delegate, error) {
	if strings.TrimSpace(settings.BaseURL) == "" {
		return nil, domain.E(domain.KindConfiguration, "delegate base url not configured")
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, domain.E(domain.KindConfiguration, "delegate api key not configured")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Delegate{
		baseURL: strings.TrimRight(settings.BaseURL, "/"),
		realm:   settings.Realm,
		apiKey:  settings.APIKey,
		client:  client,
		logger:  logger,
	}, nil
}

// delegateUser is the delegate's account shape.
type delegateUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// delegateAuthResponse is returned by login and signup.
type delegateAuthResponse struct {
	Token string       `json:"token"`
	User  delegateUser `json:"user"`
}

func (d *Delegate) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, "realms", url.PathEscape(d.realm))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return d.baseURL + "/" + strings.Join(escaped, "/")
}

func (d *Delegate) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return domain.WrapErr(domain.KindUnknown, "encode delegate request", err)
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return domain.WrapErr(domain.KindUnknown, "build delegate request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.WrapErr(domain.KindUpstream, "call identity delegate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("delegate responded %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return domain.E(domain.KindInvalidCredentials, msg)
		case http.StatusNotFound:
			return domain.E(domain.KindNotFound, msg)
		case http.StatusConflict:
			return domain.E(domain.KindAlreadyExists, msg)
		default:
			return domain.E(domain.KindUpstream, msg)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapErr(domain.KindUpstream, "decode delegate response", err)
	}
	return nil
}

func (d *Delegate) toResult(resp delegateAuthResponse) *LoginResult {
	return &LoginResult{
		Token: resp.Token,
		Account: &domain.Account{
			ID:       resp.User.ID,
			Username: resp.User.Username,
			Email:    resp.User.Email,
		},
	}
}

// Login forwards the credentials to the delegate.
func (d *Delegate) Login(ctx context.Context, project *domain.Project, creds Credentials) (*LoginResult, error) {
	payload := map[string]string{"login": creds.Login, "password": creds.Password}
	var resp delegateAuthResponse
	if err := d.do(ctx, http.MethodPost, d.endpoint("login"), payload, &resp); err != nil {
		return nil, err
	}
	return d.toResult(resp), nil
}

// Signup forwards the registration to the delegate.
func (d *Delegate) Signup(ctx context.Context, project *domain.Project, data SignupData) (*LoginResult, error) {
	payload := map[string]string{"username": data.Username, "email": data.Email, "password": data.Password}
	var resp delegateAuthResponse
	if err := d.do(ctx, http.MethodPost, d.endpoint("signup"), payload, &resp); err != nil {
		return nil, err
	}
	return d.toResult(resp), nil
}

// Logout forwards the logout to the delegate.
func (d *Delegate) Logout(ctx context.Context, project *domain.Project, username string) error {
	payload := map[string]string{"username": username}
	return d.do(ctx, http.MethodPost, d.endpoint("logout"), payload, nil)
}

// delegateOrg is the delegate's organization shape, mapped onto local
// groups.
type delegateOrg struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (d *Delegate) orgToGroup(org delegateOrg, project *domain.Project) *domain.Group {
	return &domain.Group{ID: org.ID, ProjectID: project.ID, Name: org.Name}
}

// AddGroup forwards as an org-create call; local group rows stay
// untouched.
func (d *Delegate) AddGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error) {
	payload := map[string]string{"name": desc.Name}
	var org delegateOrg
	if err := d.do(ctx, http.MethodPost, d.endpoint("orgs"), payload, &org); err != nil {
		return nil, err
	}
	return d.orgToGroup(org, project), nil
}

// UpdateGroup forwards as an org update.
func (d *Delegate) UpdateGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) (*domain.Group, error) {
	payload := map[string]string{"name": desc.NewName}
	var org delegateOrg
	if err := d.do(ctx, http.MethodPut, d.endpoint("orgs", desc.Name), payload, &org); err != nil {
		return nil, err
	}
	return d.orgToGroup(org, project), nil
}

// RemoveGroup forwards as an org delete.
func (d *Delegate) RemoveGroup(ctx context.Context, project *domain.Project, desc GroupDescriptor) error {
	return d.do(ctx, http.MethodDelete, d.endpoint("orgs", desc.Name), nil, nil)
}

// GetUser fetches one delegate-managed account by id.
func (d *Delegate) GetUser(ctx context.Context, id string) (*domain.Account, error) {
	var user delegateUser
	if err := d.do(ctx, http.MethodGet, d.endpoint("users", id), nil, &user); err != nil {
		return nil, err
	}
	return &domain.Account{ID: user.ID, Username: user.Username, Email: user.Email}, nil
}

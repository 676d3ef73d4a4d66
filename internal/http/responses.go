package httpx

import (
	"time"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
	"github.com/prescottprue/tessellate-sub000/internal/identity"
)

type storageView struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	SiteURL   string `json:"siteUrl"`
	BucketURL string `json:"bucketUrl"`
}

type projectView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	OwnerID         string       `json:"ownerId"`
	CollaboratorIDs []string     `json:"collaboratorIds,omitempty"`
	GroupIDs        []string     `json:"groupIds,omitempty"`
	Delegated       bool         `json:"delegated"`
	Storage         *storageView `json:"storage,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type accountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginView struct {
	Token   string       `json:"token"`
	Account *accountView `json:"account,omitempty"`
}

type groupView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"memberIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func projectResponse(proj *domain.Project) *projectView {
	if proj == nil {
		return nil
	}
	view := &projectView{
		ID:              proj.ID,
		Name:            proj.Name,
		OwnerID:         proj.OwnerID,
		CollaboratorIDs: proj.CollaboratorIDs,
		GroupIDs:        proj.GroupIDs,
		Delegated:       proj.Delegated(),
		CreatedAt:       proj.CreatedAt,
		UpdatedAt:       proj.UpdatedAt,
	}
	if proj.Storage != nil {
		view.Storage = &storageView{
			Name:      proj.Storage.Name,
			Provider:  proj.Storage.Provider,
			SiteURL:   proj.Storage.SiteURL,
			BucketURL: proj.Storage.BucketURL,
		}
	}
	return view
}

func accountResponse(acct *domain.Account) *accountView {
	if acct == nil {
		return nil
	}
	return &accountView{
		ID:        acct.ID,
		Username:  acct.Username,
		Email:     acct.Email,
		CreatedAt: acct.CreatedAt,
	}
}

func loginResponse(result *identity.LoginResult) *loginView {
	if result == nil {
		return nil
	}
	return &loginView{
		Token:   result.Token,
		Account: accountResponse(result.Account),
	}
}

func groupResponse(group *domain.Group) *groupView {
	if group == nil {
		return nil
	}
	return &groupView{
		ID:        group.ID,
		ProjectID: group.ProjectID,
		Name:      group.Name,
		MemberIDs: group.MemberIDs,
		CreatedAt: group.CreatedAt,
	}
}

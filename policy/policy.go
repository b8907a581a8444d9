// Package policy decides whether a user may perform an action on a resource.
//
// Decisions come from a single role -> action -> scope table. Nothing outside
// this table grants access: unknown roles and actions are denied.
package policy

import (
	"crowpro-api/models"
)

type Action string

const (
	ReadPublished   Action = "read_published"
	ReadUnpublished Action = "read_unpublished"
	CreateArticle   Action = "create_article"
	EditArticle     Action = "edit_article"
	ManageAuthors   Action = "manage_authors"
	ApproveContent  Action = "approve_content"
	PublishContent  Action = "publish_content"
	CreateEditorial Action = "create_editorial"
	EditEditorial   Action = "edit_editorial"
	HideContent     Action = "hide_content"
	ManageUsers     Action = "manage_users"
	ChangeUserRole  Action = "change_user_role"
	ViewStatistics  Action = "view_statistics"
	ViewRequestLogs Action = "view_request_logs"
)

type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAny
)

// Resource describes the content an action targets. A nil Resource is used
// for actions that do not target a single record (create, list users, stats).
type Resource struct {
	CreatorID uint
	AuthorIDs []uint
	Published bool
	Hidden    bool
}

// ResourceOf builds the policy view of a publication.
func ResourceOf(p *models.Publication) *Resource {
	return &Resource{
		CreatorID: p.CreatedByID,
		AuthorIDs: p.AuthorIDs(),
		Published: p.Published,
		Hidden:    p.Hide,
	}
}

var staffCapabilities = map[Action]Scope{
	ReadPublished:   ScopeAny,
	ReadUnpublished: ScopeAny,
	CreateArticle:   ScopeAny,
	EditArticle:     ScopeAny,
	ManageAuthors:   ScopeAny,
	ApproveContent:  ScopeAny,
	PublishContent:  ScopeAny,
	CreateEditorial: ScopeAny,
	EditEditorial:   ScopeAny,
	HideContent:     ScopeAny,
	ManageUsers:     ScopeAny,
	ViewStatistics:  ScopeAny,
	ViewRequestLogs: ScopeAny,
}

var capabilities = map[models.UserRole]map[Action]Scope{
	models.RoleReader: {
		ReadPublished: ScopeAny,
	},
	models.RoleAuthor: {
		ReadPublished:   ScopeAny,
		ReadUnpublished: ScopeOwn,
		CreateArticle:   ScopeAny,
		EditArticle:     ScopeOwn,
		ManageAuthors:   ScopeOwn,
		HideContent:     ScopeOwn,
	},
	models.RoleEditor: {
		ReadPublished:   ScopeAny,
		ReadUnpublished: ScopeAny,
		CreateArticle:   ScopeAny,
		EditArticle:     ScopeOwn,
		ManageAuthors:   ScopeOwn,
		ApproveContent:  ScopeAny,
		PublishContent:  ScopeAny,
		CreateEditorial: ScopeAny,
		EditEditorial:   ScopeAny,
		HideContent:     ScopeAny,
	},
	models.RoleModerator: staffCapabilities,
	models.RoleAdmin:     withAction(staffCapabilities, ChangeUserRole, ScopeAny),
}

// ownerEditsBeforePublish lists the actions whose own-scope grant ends once
// the content is published.
var ownerEditsBeforePublish = map[Action]bool{
	EditArticle: true,
}

func withAction(base map[Action]Scope, action Action, scope Scope) map[Action]Scope {
	out := make(map[Action]Scope, len(base)+1)
	for a, s := range base {
		out[a] = s
	}
	out[action] = scope
	return out
}

// ScopeFor returns the scope the role holds for action.
func ScopeFor(role models.UserRole, action Action) Scope {
	return capabilities[role][action]
}

// Allowed reports whether user may perform action on res. user may be nil for anonymous callers.
func Allowed(user *models.User, action Action, res *Resource) bool {
	if user == nil || !user.IsActive {
		return action == ReadPublished && res != nil && res.Published && !res.Hidden
	}

	switch ScopeFor(user.Role, action) {
	case ScopeAny:
		return true
	case ScopeOwn:
		if res == nil {
			return false
		}
		if !owns(user.ID, action, res) {
			return false
		}
		if ownerEditsBeforePublish[action] && res.Published {
			return false
		}
		return true
	default:
		return false
	}
}

// Authorize is Allowed as an error: nil or models.ErrPermissionDenied.
func Authorize(user *models.User, action Action, res *Resource) error {
	if Allowed(user, action, res) {
		return nil
	}
	return models.ErrPermissionDenied
}

func owns(userID uint, action Action, res *Resource) bool {
	if res.CreatorID == userID {
		return true
	}
	// Only the creator manages the author list.
	if action == ManageAuthors {
		return false
	}
	for _, id := range res.AuthorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

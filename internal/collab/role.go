package collab

// Role is the permission level of a user on one document.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// DefaultColor is used for collaborators without a profile color.
const DefaultColor = "#4f46e5"

// CanEdit reports whether the role may mutate document code.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// NormalizeRole maps persisted role strings onto a known role, defaulting to viewer.
func NormalizeRole(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Profile is the display metadata of a user.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
	Email  string `json:"email,omitempty"`
}

// RosterEntry is one persisted collaborator of a document. Profile is set when
// the store already joined the user record.
type RosterEntry struct {
	UserID  string   `json:"userId"`
	Role    Role     `json:"role"`
	Profile *Profile `json:"profile,omitempty"`
}

// Roster is the persisted owner and collaborator list of a document.
type Roster struct {
	DocumentID    string        `json:"documentId"`
	OwnerID       string        `json:"ownerId"`
	IsPublic      bool          `json:"isPublic"`
	Collaborators []RosterEntry `json:"collaborators"`
}

func (r *Roster) entry(userID string) *RosterEntry {
	for i := range r.Collaborators {
		if r.Collaborators[i].UserID == userID {
			return &r.Collaborators[i]
		}
	}
	return nil
}

// HasAccess reports whether userID may join the document: owner, any listed
// collaborator, or anyone when the document is public.
func (r *Roster) HasAccess(userID string) bool {
	if userID == "" {
		return false
	}
	if r.IsPublic || r.OwnerID == userID {
		return true
	}
	return r.entry(userID) != nil
}

// ResolveRole returns the effective role of userID on the roster's document.
// Only OwnerID yields owner; a leftover owner entry for anyone else (a roster
// read across an ownership transfer) resolves to editor. Users absent from the
// roster are viewers.
func ResolveRole(r *Roster, userID string) Role {
	if r == nil {
		return RoleViewer
	}
	if userID == r.OwnerID {
		return RoleOwner
	}
	e := r.entry(userID)
	if e == nil {
		return RoleViewer
	}
	if e.Role == RoleOwner {
		return RoleEditor
	}
	return NormalizeRole(string(e.Role))
}

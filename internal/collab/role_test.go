package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRole(t *testing.T) {
	roster := &Roster{
		DocumentID: "d1",
		OwnerID:    "owner",
		Collaborators: []RosterEntry{
			{UserID: "ed", Role: RoleEditor},
			{UserID: "view", Role: RoleViewer},
			{UserID: "former-owner", Role: RoleOwner},
			{UserID: "weird", Role: Role("admin")},
		},
	}

	tests := []struct {
		user string
		want Role
	}{
		{"owner", RoleOwner},
		{"ed", RoleEditor},
		{"view", RoleViewer},
		{"former-owner", RoleEditor},
		{"weird", RoleViewer},
		{"stranger", RoleViewer},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRole(roster, tt.user))
		})
	}

	assert.Equal(t, RoleViewer, ResolveRole(nil, "owner"))
}

func TestRoster_HasAccess(t *testing.T) {
	private := &Roster{
		OwnerID:       "owner",
		Collaborators: []RosterEntry{{UserID: "view", Role: RoleViewer}},
	}
	assert.True(t, private.HasAccess("owner"))
	assert.True(t, private.HasAccess("view"))
	assert.False(t, private.HasAccess("stranger"))
	assert.False(t, private.HasAccess(""))

	public := &Roster{OwnerID: "owner", IsPublic: true}
	assert.True(t, public.HasAccess("stranger"))
	assert.False(t, public.HasAccess(""))
}

func TestRole_CanEdit(t *testing.T) {
	assert.True(t, RoleOwner.CanEdit())
	assert.True(t, RoleEditor.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
	assert.False(t, NormalizeRole("").CanEdit())
}

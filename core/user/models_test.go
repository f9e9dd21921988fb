package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserImpliedRoles(t *testing.T) {
	tests := []struct {
		name        string
		usr         User
		wantTeacher bool
		wantStaff   bool
		wantAdmin   bool
		wantGranted []string
	}{
		{name: "no flags", usr: User{}, wantGranted: nil},
		{
			name:        "plain parent",
			usr:         User{Parent: true},
			wantGranted: []string{RoleParent},
		},
		{
			name:        "plain teacher",
			usr:         User{Teacher: true},
			wantTeacher: true,
			wantGranted: []string{RoleTeacher},
		},
		{
			// the directeur flag alone grants teacher and staff, nothing is
			// written back to the stored flags
			name:        "director only",
			usr:         User{Director: true},
			wantTeacher: true,
			wantStaff:   true,
			wantAdmin:   true,
			wantGranted: []string{RoleDirector, RoleTeacher},
		},
		{
			name:        "teacher and parent",
			usr:         User{Teacher: true, Parent: true},
			wantTeacher: true,
			wantGranted: []string{RoleTeacher, RoleParent},
		},
		{
			name:      "superuser",
			usr:       User{Superuser: true},
			wantAdmin: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTeacher, tt.usr.IsTeacher())
			assert.Equal(t, tt.wantStaff, tt.usr.IsStaff())
			assert.Equal(t, tt.wantAdmin, tt.usr.IsAdmin())
			assert.Equal(t, tt.wantGranted, tt.usr.GrantedRoles())
		})
	}
}

func TestUserRoleDisplay(t *testing.T) {
	assert.Equal(t, "Utilisateur", User{}.RoleDisplay())
	assert.Equal(t, "Parent", User{Parent: true}.RoleDisplay())
	assert.Equal(t, "Professeur", User{Teacher: true}.RoleDisplay())
	assert.Equal(t, "Directeur", User{Director: true}.RoleDisplay())
	assert.Equal(t, "Directeur / Parent", User{Director: true, Parent: true}.RoleDisplay())
	assert.Equal(t, "Professeur / Parent", User{Teacher: true, Parent: true}.RoleDisplay())
}

func TestUserName(t *testing.T) {
	assert.Equal(t, "marie", User{Username: "marie"}.Name())
	assert.Equal(t, "Marie Dupont", User{Username: "marie", FirstName: "Marie", LastName: "Dupont"}.Name())
	assert.Equal(t, "Marie", User{Username: "marie", FirstName: "Marie"}.Name())
}

// Package project persists saved sandbox projects in SQL.
//
// A project is a named file tree with an owner and optional collaborators.
// Opening a project creates a workspace from its files; syncing writes a
// linked workspace's files back. SQLite and PostgreSQL are supported and
// chosen from the DSN.
package project

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrForbidden   = errors.New("project access denied")
	ErrInvalid     = errors.New("invalid project")
	ErrInvalidRole = errors.New("invalid collaborator role")
	ErrNotLinked   = errors.New("workspace is not linked to a project")
)

// Role is a user's access level on a project
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = ""
)

// ParseRole accepts the roles that can be granted to collaborators
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEditor, RoleViewer:
		return Role(s), nil
	case "":
		return RoleEditor, nil
	}
	return RoleNone, ErrInvalidRole
}

// Member is a collaborator
type Member struct {
	UserID  string    `json:"user_id"`
	Role    Role      `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// Project is a saved file tree
type Project struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Template    string      `json:"template,omitempty"`
	Files       []*vfs.Node `json:"files"`
	Members     []Member    `json:"members"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Summary is the listing form of a project
type Summary struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Role        Role      `json:"role"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleOf returns the user's role on the project
func (p *Project) RoleOf(user string) Role {
	if user == p.Owner {
		return RoleOwner
	}
	for _, m := range p.Members {
		if m.UserID == user {
			return m.Role
		}
	}
	return RoleNone
}

// CanRead reports whether user may open the project
func (p *Project) CanRead(user string) bool {
	return p.RoleOf(user) != RoleNone
}

// CanWrite reports whether user may change the project's files or details
func (p *Project) CanWrite(user string) bool {
	r := p.RoleOf(user)
	return r == RoleOwner || r == RoleEditor
}

// CreateInput holds the fields of a new project
type CreateInput struct {
	Owner       string      `json:"-"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Template    string      `json:"template"`
	Files       []*vfs.Node `json:"files"`
}

// Patch holds optional project changes; nil fields are left alone
type Patch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Files       []*vfs.Node `json:"files,omitempty"`
}

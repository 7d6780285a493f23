package work

import (
	"context"
)

// ProjectFilter narrows project listings to what a user can see.
type ProjectFilter struct {
	// UserID limits results to projects owned by, shared with, or team-linked to the user.
	UserID  string
	TeamIDs []string
	Status  string
	// All disables the user filter (admins).
	All bool
}

// Store persists projects, teams and tasks. Missing records yield auth.ErrNotFound.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]*Project, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*Project, error)
	DeleteProject(ctx context.Context, id string) error
	AddProjectMember(ctx context.Context, projectID, userID string) (*Project, error)
	RemoveProjectMember(ctx context.Context, projectID, userID string) (*Project, error)

	CreateTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	UpdateTeam(ctx context.Context, id string, patch TeamPatch) (*Team, error)
	DeleteTeam(ctx context.Context, id string) error
	// TeamIDsForUser lists teams the user leads or belongs to.
	TeamIDsForUser(ctx context.Context, userID string) ([]string, error)

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, projectID string) ([]*Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
}

type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *string
	Priority    *string
	TeamIDs     *[]string
	Archived    *bool
}

type TeamPatch struct {
	Name        *string
	Description *string
	LeaderID    *string
	MemberIDs   *[]string
	Department  *string
}

type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssigneeIDs *[]string
}

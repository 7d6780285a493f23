// Package work holds the project, team and task records guarded by the permission evaluator.
package work

import (
	"time"

	"opsfloww.io/internal/auth"
)

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	OwnerID     string     `json:"owner"`
	MemberIDs   []string   `json:"members"`
	TeamIDs     []string   `json:"teams"`
	Tags        []string   `json:"tags,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Archived    bool       `json:"isArchived"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	LeaderID    string    `json:"leader"`
	MemberIDs   []string  `json:"members"`
	Department  string    `json:"department,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	ReporterID  string     `json:"reporter"`
	AssigneeIDs []string   `json:"assignees"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ProjectResource exposes a project's relations to the evaluator.
func ProjectResource(p *Project) *auth.Resource {
	return &auth.Resource{
		Kind:      auth.KindProject,
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		MemberIDs: p.MemberIDs,
		TeamIDs:   p.TeamIDs,
		Doc:       p,
	}
}

// TeamResource exposes a team's relations. The leader owns the team.
func TeamResource(t *Team) *auth.Resource {
	owner := t.LeaderID
	if owner == "" {
		owner = t.CreatedBy
	}
	return &auth.Resource{
		Kind:      auth.KindTeam,
		ID:        t.ID,
		OwnerID:   owner,
		MemberIDs: t.MemberIDs,
		TeamIDs:   []string{t.ID},
		Doc:       t,
	}
}

// TaskResource exposes a task's relations. Members of the parent project may read it.
func TaskResource(t *Task, parent *Project) *auth.Resource {
	res := &auth.Resource{
		Kind:      auth.KindTask,
		ID:        t.ID,
		OwnerID:   t.ReporterID,
		MemberIDs: t.AssigneeIDs,
		Doc:       t,
	}
	if parent != nil {
		res.TeamIDs = parent.TeamIDs
		viewers := make([]string, 0, len(parent.MemberIDs)+1)
		viewers = append(viewers, parent.OwnerID)
		viewers = append(viewers, parent.MemberIDs...)
		res.ViewerIDs = viewers
	}
	return res
}

// UserResource exposes a user record to the evaluator.
func UserResource(u *auth.User) *auth.Resource {
	return &auth.Resource{Kind: auth.KindUser, ID: u.ID, OwnerID: u.ID, Doc: u}
}

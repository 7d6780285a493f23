package work

import (
	"slices"
	"strings"

	"opsfloww.io/internal/auth"
)

var (
	projectStatuses = []string{"planning", "active", "on-hold", "completed", "cancelled"}
	taskStatuses    = []string{"backlog", "todo", "in-progress", "review", "done", "archived"}
	priorities      = []string{"low", "medium", "high", "urgent"}
)

func invalid(msg string) error {
	return &auth.Error{Kind: auth.ErrValidation, Message: msg}
}

// NormalizeProject validates p and fills defaults.
func NormalizeProject(p *Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("Project name is required")
	}
	if len([]rune(p.Name)) > 100 {
		return invalid("Project name cannot exceed 100 characters")
	}
	if p.Status == "" {
		p.Status = "planning"
	}
	if !slices.Contains(projectStatuses, p.Status) {
		return invalid("Invalid project status: " + p.Status)
	}
	if p.Priority == "" {
		p.Priority = "medium"
	}
	if !slices.Contains(priorities, p.Priority) {
		return invalid("Invalid priority: " + p.Priority)
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return invalid("End date must be after start date")
	}
	p.MemberIDs = dedupe(p.MemberIDs)
	p.TeamIDs = dedupe(p.TeamIDs)
	return nil
}

// ValidateProjectPatch checks enumerated fields of patch.
func ValidateProjectPatch(patch *ProjectPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" || len([]rune(name)) > 100 {
			return invalid("Project name must be between 1 and 100 characters")
		}
		patch.Name = &name
	}
	if patch.TeamIDs != nil {
		ids := dedupe(*patch.TeamIDs)
		patch.TeamIDs = &ids
	}
	if patch.Status != nil && !slices.Contains(projectStatuses, *patch.Status) {
		return invalid("Invalid project status: " + *patch.Status)
	}
	if patch.Priority != nil && !slices.Contains(priorities, *patch.Priority) {
		return invalid("Invalid priority: " + *patch.Priority)
	}
	return nil
}

// NormalizeTeam validates t.
func NormalizeTeam(t *Team) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("Team name is required")
	}
	if t.LeaderID == "" {
		return invalid("Team must have a leader")
	}
	t.MemberIDs = dedupe(t.MemberIDs)
	return nil
}

// ValidateTeamPatch checks patch.
func ValidateTeamPatch(patch *TeamPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return invalid("Team name is required")
		}
		patch.Name = &name
	}
	if patch.LeaderID != nil && strings.TrimSpace(*patch.LeaderID) == "" {
		return invalid("Team must have a leader")
	}
	if patch.MemberIDs != nil {
		ids := dedupe(*patch.MemberIDs)
		patch.MemberIDs = &ids
	}
	return nil
}

// NormalizeTask validates t and fills defaults.
func NormalizeTask(t *Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return invalid("Task title is required")
	}
	if len([]rune(t.Title)) > 200 {
		return invalid("Task title cannot exceed 200 characters")
	}
	if t.ProjectID == "" {
		return invalid("Task must belong to a project")
	}
	if t.Status == "" {
		t.Status = "todo"
	}
	if !slices.Contains(taskStatuses, t.Status) {
		return invalid("Invalid task status: " + t.Status)
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if !slices.Contains(priorities, t.Priority) {
		return invalid("Invalid priority: " + t.Priority)
	}
	t.AssigneeIDs = dedupe(t.AssigneeIDs)
	return nil
}

// ValidateTaskPatch checks enumerated fields of patch.
func ValidateTaskPatch(patch *TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return invalid("Task title is required")
		}
		patch.Title = &title
	}
	if patch.AssigneeIDs != nil {
		ids := dedupe(*patch.AssigneeIDs)
		patch.AssigneeIDs = &ids
	}
	if patch.Status != nil && !slices.Contains(taskStatuses, *patch.Status) {
		return invalid("Invalid task status: " + *patch.Status)
	}
	if patch.Priority != nil && !slices.Contains(priorities, *patch.Priority) {
		return invalid("Invalid priority: " + *patch.Priority)
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

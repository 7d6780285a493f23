package memory

import (
	"context"
	"slices"
	"sort"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

func cloneProject(p *work.Project) *work.Project {
	c := *p
	c.MemberIDs = slices.Clone(p.MemberIDs)
	c.TeamIDs = slices.Clone(p.TeamIDs)
	c.Tags = slices.Clone(p.Tags)
	return &c
}

func cloneTeam(t *work.Team) *work.Team {
	c := *t
	c.MemberIDs = slices.Clone(t.MemberIDs)
	return &c
}

func cloneTask(t *work.Task) *work.Task {
	c := *t
	c.AssigneeIDs = slices.Clone(t.AssigneeIDs)
	c.Tags = slices.Clone(t.Tags)
	return &c
}

func (s *Store) CreateProject(ctx context.Context, p *work.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*work.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneProject(p), nil
}

func (s *Store) ListProjects(ctx context.Context, f work.ProjectFilter) ([]*work.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*work.Project, 0)
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if !f.All && !visible(p, f) {
			continue
		}
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func visible(p *work.Project, f work.ProjectFilter) bool {
	if p.OwnerID == f.UserID || slices.Contains(p.MemberIDs, f.UserID) {
		return true
	}
	for _, t := range p.TeamIDs {
		if slices.Contains(f.TeamIDs, t) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateProject(ctx context.Context, id string, patch work.ProjectPatch) (*work.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.TeamIDs != nil {
		p.TeamIDs = slices.Clone(*patch.TeamIDs)
	}
	if patch.Archived != nil {
		p.Archived = *patch.Archived
	}
	p.UpdatedAt = s.now().UTC()
	return cloneProject(p), nil
}

// DeleteProject removes the project and its tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) (*work.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if !slices.Contains(p.MemberIDs, userID) {
		p.MemberIDs = append(p.MemberIDs, userID)
		p.UpdatedAt = s.now().UTC()
	}
	return cloneProject(p), nil
}

func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID string) (*work.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	p.MemberIDs = slices.DeleteFunc(p.MemberIDs, func(id string) bool { return id == userID })
	p.UpdatedAt = s.now().UTC()
	return cloneProject(p), nil
}

func (s *Store) CreateTeam(ctx context.Context, t *work.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	s.teams[t.ID] = cloneTeam(t)
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (*work.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneTeam(t), nil
}

func (s *Store) UpdateTeam(ctx context.Context, id string, patch work.TeamPatch) (*work.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.LeaderID != nil {
		t.LeaderID = *patch.LeaderID
	}
	if patch.MemberIDs != nil {
		t.MemberIDs = slices.Clone(*patch.MemberIDs)
	}
	if patch.Department != nil {
		t.Department = *patch.Department
	}
	t.UpdatedAt = s.now().UTC()
	return cloneTeam(t), nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.teams, id)
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *work.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return auth.ErrNotFound
	}
	now := s.now().UTC()
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*work.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]*work.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*work.Task, 0)
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch work.TaskPatch) (*work.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssigneeIDs != nil {
		t.AssigneeIDs = slices.Clone(*patch.AssigneeIDs)
	}
	t.UpdatedAt = s.now().UTC()
	return cloneTask(t), nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/work"
)

type projectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Members     []string   `json:"members"`
	Teams       []string   `json:"teams"`
	Tags        []string   `json:"tags"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type projectPatchRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Teams       *[]string `json:"teams"`
	Archived    *bool     `json:"isArchived"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

type teamRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Leader      string   `json:"leader"`
	Members     []string `json:"members"`
	Department  string   `json:"department"`
}

type teamPatchRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Leader      *string   `json:"leader"`
	Members     *[]string `json:"members"`
	Department  *string   `json:"department"`
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Assignees   []string   `json:"assignees"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"dueDate"`
}

type taskPatchRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Assignees   *[]string `json:"assignees"`
}

// loaded returns the document attached by loadResource.
func loaded[T any](r *http.Request) T {
	var zero T
	res := resourceFrom(r.Context())
	if res == nil {
		return zero
	}
	doc, _ := res.Doc.(T)
	return doc
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	filter := work.ProjectFilter{
		UserID: u.ID,
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		All:    u.Role == auth.RoleAdmin,
	}
	if !filter.All {
		teams, err := a.work.TeamIDsForUser(r.Context(), u.ID)
		if err != nil {
			writeServiceError(w, r, fmt.Errorf("load teams: %w", err))
			return
		}
		filter.TeamIDs = teams
	}
	projects, err := a.work.ListProjects(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"results": len(projects), "projects": projects})
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p := &work.Project{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		OwnerID:     currentUser(r).ID,
		MemberIDs:   req.Members,
		TeamIDs:     req.Teams,
		Tags:        req.Tags,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	if err := work.NormalizeProject(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.work.CreateProject(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "project.created", map[string]any{"project_id": p.ID})
	writeSuccess(w, http.StatusCreated, map[string]any{"project": p})
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"project": loaded[*work.Project](r)})
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request) {
	var req projectPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	patch := work.ProjectPatch{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		TeamIDs:     req.Teams,
		Archived:    req.Archived,
	}
	if err := work.ValidateProjectPatch(&patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := a.work.UpdateProject(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"project": p})
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.work.DeleteProject(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "project.deleted", map[string]any{"project_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addProjectMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "userId is required")
		return
	}
	p, err := a.work.AddProjectMember(r.Context(), mux.Vars(r)["id"], strings.TrimSpace(req.UserID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"project": p})
}

func (a *API) removeProjectMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := a.work.RemoveProjectMember(r.Context(), vars["id"], vars["userId"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"project": p})
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.work.ListTasks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"results": len(tasks), "tasks": tasks})
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t := &work.Task{
		ProjectID:   mux.Vars(r)["id"],
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		ReporterID:  currentUser(r).ID,
		AssigneeIDs: req.Assignees,
		Tags:        req.Tags,
		DueDate:     req.DueDate,
	}
	if err := work.NormalizeTask(t); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.work.CreateTask(r.Context(), t); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"task": t})
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"task": loaded[*work.Task](r)})
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request) {
	var req taskPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	patch := work.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeIDs: req.Assignees,
	}
	if err := work.ValidateTaskPatch(&patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := a.work.UpdateTask(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"task": t})
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.work.DeleteTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	creator := currentUser(r).ID
	t := &work.Team{
		Name:        req.Name,
		Description: req.Description,
		LeaderID:    req.Leader,
		MemberIDs:   req.Members,
		Department:  req.Department,
		CreatedBy:   creator,
	}
	if t.LeaderID == "" {
		t.LeaderID = creator
	}
	if err := work.NormalizeTeam(t); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.work.CreateTeam(r.Context(), t); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "team.created", map[string]any{"team_id": t.ID})
	writeSuccess(w, http.StatusCreated, map[string]any{"team": t})
}

func (a *API) getTeam(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"team": loaded[*work.Team](r)})
}

func (a *API) updateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	patch := work.TeamPatch{
		Name:        req.Name,
		Description: req.Description,
		LeaderID:    req.Leader,
		MemberIDs:   req.Members,
		Department:  req.Department,
	}
	if err := work.ValidateTeamPatch(&patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := a.work.UpdateTeam(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"team": t})
}

func (a *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.work.DeleteTeam(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "team.deleted", map[string]any{"team_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"user": loaded[*auth.User](r)})
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Password != "" || req.PasswordConfirm != "" {
		writeError(w, r, http.StatusBadRequest, "This route is not for password updates. Please use /update-password.")
		return
	}
	u, err := a.auth.UpdateProfile(r.Context(), loaded[*auth.User](r), auth.ProfileUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Position:   req.Position,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) deactivateUser(w http.ResponseWriter, r *http.Request) {
	target := loaded[*auth.User](r)
	if target.ID == currentUser(r).ID {
		writeError(w, r, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}
	if err := a.auth.DeactivateUser(r.Context(), target); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.audit.Record(r.Context(), "user.deactivated", map[string]any{"user_id": target.ID})
	w.WriteHeader(http.StatusNoContent)
}

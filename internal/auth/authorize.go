package auth

// ResourceKind names a resource type guarded by the evaluator.
type ResourceKind string

const (
	KindProject ResourceKind = "project"
	KindTeam    ResourceKind = "team"
	KindTask    ResourceKind = "task"
	KindUser    ResourceKind = "user"
)

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource is a loaded instance with the relations the evaluator inspects.
// For task creation the resource is the parent project.
type Resource struct {
	Kind      ResourceKind
	ID        string
	OwnerID   string
	MemberIDs []string
	TeamIDs   []string
	ViewerIDs []string
	// Doc is the underlying document, handed on to the handler.
	Doc any
}

// Authorizer decides whether the bound user may perform action on a resource.
type Authorizer interface {
	Can(kind ResourceKind, action Action, res *Resource) bool
}

// Evaluator implements Authorizer for one user and a snapshot of their teams.
type Evaluator struct {
	user  *User
	teams map[string]struct{}
}

// NewEvaluator binds an evaluator to user and the teams they belong to.
func NewEvaluator(user *User, teamIDs []string) *Evaluator {
	set := make(map[string]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		set[id] = struct{}{}
	}
	return &Evaluator{user: user, teams: set}
}

// InTeam reports whether the bound user belongs to team id.
func (e *Evaluator) InTeam(id string) bool {
	_, ok := e.teams[id]
	return ok
}

package work

import (
	"context"
	"errors"
	"fmt"

	"opsfloww.io/internal/auth"
)

// Loader resolves resources for the permission evaluator.
type Loader struct {
	Store Store
	Users auth.UserStore
}

// LoadResource implements auth.ResourceLoader.
func (l Loader) LoadResource(ctx context.Context, kind auth.ResourceKind, id string) (*auth.Resource, error) {
	switch kind {
	case auth.KindProject:
		p, err := l.Store.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		return ProjectResource(p), nil
	case auth.KindTeam:
		t, err := l.Store.GetTeam(ctx, id)
		if err != nil {
			return nil, err
		}
		return TeamResource(t), nil
	case auth.KindTask:
		t, err := l.Store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		parent, err := l.Store.GetProject(ctx, t.ProjectID)
		if err != nil && !errors.Is(err, auth.ErrNotFound) {
			return nil, err
		}
		return TaskResource(t, parent), nil
	case auth.KindUser:
		u, err := l.Users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return UserResource(u), nil
	default:
		return nil, fmt.Errorf("work: unknown resource kind %q", kind)
	}
}

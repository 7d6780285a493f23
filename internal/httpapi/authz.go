package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"opsfloww.io/internal/auth"
)

// lazyAuthorizer builds the caller's evaluator on first use so routes that never
// check permissions never pay for the team lookup.
type lazyAuthorizer struct {
	once sync.Once
	api  *API
	p    auth.Principal
	az   auth.Authorizer
	err  error
}

func (l *lazyAuthorizer) get(ctx context.Context) (auth.Authorizer, error) {
	l.once.Do(func() {
		if l.p.Synthetic {
			l.az = auth.NewEvaluator(l.p.User, nil)
			return
		}
		l.az, l.err = l.api.auth.PermissionsFor(ctx, l.p.User)
	})
	return l.az, l.err
}

type authorizerKey struct{}
type resourceKey struct{}

func withAuthorizer(ctx context.Context, a *API, p auth.Principal) context.Context {
	return context.WithValue(ctx, authorizerKey{}, &lazyAuthorizer{api: a, p: p})
}

func authorizerFrom(ctx context.Context) (auth.Authorizer, error) {
	l, ok := ctx.Value(authorizerKey{}).(*lazyAuthorizer)
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return l.get(ctx)
}

func resourceFrom(ctx context.Context) *auth.Resource {
	res, _ := ctx.Value(resourceKey{}).(*auth.Resource)
	return res
}

// loadResource resolves the {param} path variable into a resource, answering 404 when absent.
func (a *API) loadResource(kind auth.ResourceKind, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := mux.Vars(r)[param]
			res, err := a.resources.LoadResource(r.Context(), kind, id)
			if err != nil {
				if errors.Is(err, auth.ErrNotFound) {
					writeError(w, r, http.StatusNotFound, "No "+string(kind)+" found with that ID")
					return
				}
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resourceKey{}, res)))
		})
	}
}

// requirePermission answers 403 unless the caller may perform action on the loaded resource.
func (a *API) requirePermission(kind auth.ResourceKind, action auth.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			az, err := authorizerFrom(r.Context())
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			if !az.Can(kind, action, resourceFrom(r.Context())) {
				writeError(w, r, http.StatusForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

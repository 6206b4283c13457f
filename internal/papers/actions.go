// Package papers is the action set of the paper API: authentication plus CRUD
// on papers, with save composed from get, edit and add.
package papers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/request"
)

// Service names the actions fetch from.
const (
	AuthService  = "auth"
	PaperService = "papers"
)

// Domain names.
const (
	AuthDomain  = "auth"
	PaperDomain = "paper"
)

func Actions() map[string]map[string]api.Action {
	return map[string]map[string]api.Action{
		AuthDomain: {
			"login":  api.AsLogin(login),
			"status": status,
		},
		PaperDomain: {
			"get":    get,
			"add":    add,
			"edit":   edit,
			"delete": remove,
			"save":   save,
		},
	}
}

// login(email, password string)
func login(ctx context.Context, a *api.API, args ...any) (any, error) {
	email, err := stringArg(args, 0, "email")
	if err != nil {
		return nil, err
	}
	password, err := stringArg(args, 1, "password")
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, AuthService, "/auth/login", request.Options{
		Method:   http.MethodPost,
		Body:     map[string]string{"email": email, "password": password},
		SkipAuth: true,
	})
}

func status(ctx context.Context, a *api.API, _ ...any) (any, error) {
	return a.Fetch(ctx, AuthService, "/status", request.Options{SkipAuth: true})
}

// get(id string)
func get(ctx context.Context, a *api.API, args ...any) (any, error) {
	id, err := stringArg(args, 0, "id")
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, PaperService, "/paper/"+url.PathEscape(id), request.Options{})
}

// add(paper map[string]any)
func add(ctx context.Context, a *api.API, args ...any) (any, error) {
	paper, err := paperArg(args, 0)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, PaperService, "/paper", request.Options{Method: http.MethodPost, Body: paper})
}

// edit(id string, paper map[string]any)
func edit(ctx context.Context, a *api.API, args ...any) (any, error) {
	id, err := stringArg(args, 0, "id")
	if err != nil {
		return nil, err
	}
	paper, err := paperArg(args, 1)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, PaperService, "/paper/"+url.PathEscape(id), request.Options{Method: http.MethodPut, Body: paper})
}

// delete(id string)
func remove(ctx context.Context, a *api.API, args ...any) (any, error) {
	id, err := stringArg(args, 0, "id")
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, PaperService, "/paper/"+url.PathEscape(id), request.Options{Method: http.MethodDelete})
}

// save(paper map[string]any) looks the paper up first, then edits it when the
// lookup result is truthy and adds it otherwise. A paper without an id gets a
// fresh one so the lookup always runs.
func save(ctx context.Context, a *api.API, args ...any) (any, error) {
	paper, err := paperArg(args, 0)
	if err != nil {
		return nil, err
	}
	id, _ := paper["id"].(string)
	if id == "" {
		id = uuid.NewString()
		paper = maps.Clone(paper)
		paper["id"] = id
	}

	papers := a.Domain(PaperDomain)
	existing, err := papers.Call(ctx, "get", id)
	if err != nil && !errors.Is(err, apierrors.ErrNotFound) {
		return nil, err
	}
	if err == nil && truthy(existing) {
		return papers.Call(ctx, "edit", id, paper)
	}
	return papers.Call(ctx, "add", paper)
}

// truthy reports whether a decoded response counts as a positive answer:
// nil, false, zero numbers, empty strings and empty collections do not.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case []byte:
		return len(t) > 0
	}
	return true
}

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %s", name)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %s must be a non-empty string", name)
	}
	return s, nil
}

func paperArg(args []any, i int) (map[string]any, error) {
	if i >= len(args) {
		return nil, errors.New("missing argument paper")
	}
	paper, ok := args[i].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument paper must be map[string]any, got %T", args[i])
	}
	return paper, nil
}

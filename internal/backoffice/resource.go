package backoffice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Checker-Finance/backoffice/internal/apiclient"
	"github.com/Checker-Finance/backoffice/internal/pagination"
)

// Resource is a CRUD collection under one base path, e.g. "/tasks/".
// T is the record type and In the create/update payload.
type Resource[T, In any] struct {
	client   *apiclient.Client
	base     string
	pageSize int
}

func newResource[T, In any](client *apiclient.Client, base string, pageSize int) *Resource[T, In] {
	return &Resource[T, In]{
		client:   client,
		base:     "/" + strings.Trim(base, "/") + "/",
		pageSize: pagination.ClampPageSize(pageSize),
	}
}

// Path returns the collection path.
func (r *Resource[T, In]) Path() string { return r.base }

func (r *Resource[T, In]) itemPath(id string) string {
	return r.base + url.PathEscape(id)
}

// ListPage fetches one skip/limit window with filters.
func (r *Resource[T, In]) ListPage(ctx context.Context, filters url.Values, cursor pagination.Cursor) ([]T, error) {
	var out []T
	if err := r.client.Get(ctx, r.base, cursor.Apply(filters), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll pages through the whole collection.
func (r *Resource[T, In]) ListAll(ctx context.Context, filters url.Values) ([]T, error) {
	items, err := pagination.FetchAll(ctx, r.pageSize, func(ctx context.Context, c pagination.Cursor) ([]T, error) {
		return r.ListPage(ctx, filters, c)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.base, err)
	}
	return items, nil
}

func (r *Resource[T, In]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	if err := r.client.Get(ctx, r.itemPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Resource[T, In]) Create(ctx context.Context, in In) (*T, error) {
	var out T
	if err := r.client.Post(ctx, r.base, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the record with PUT.
func (r *Resource[T, In]) Update(ctx context.Context, id string, in In) (*T, error) {
	return r.send(ctx, http.MethodPut, r.itemPath(id), in)
}

// Patch applies a partial update.
func (r *Resource[T, In]) Patch(ctx context.Context, id string, in In) (*T, error) {
	return r.send(ctx, http.MethodPatch, r.itemPath(id), in)
}

func (r *Resource[T, In]) Delete(ctx context.Context, id string) error {
	return r.client.Delete(ctx, r.itemPath(id))
}

func (r *Resource[T, In]) send(ctx context.Context, method, path string, body any) (*T, error) {
	var out T
	if err := r.client.Send(ctx, apiclient.NewRequest(method, path, body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Package pagination pages through skip/limit list endpoints whose page size
// is capped server-side.
package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Checker-Finance/backoffice/internal/metrics"
)

// MaxPageSize is the largest limit the list endpoints accept.
const MaxPageSize = 200

// Cursor is the offset window of one page request.
type Cursor struct {
	Skip  int
	Limit int
}

// Apply returns a copy of filters with skip and limit set. filters is not modified.
func (c Cursor) Apply(filters url.Values) url.Values {
	q := make(url.Values, len(filters)+2)
	for k, v := range filters {
		q[k] = append([]string(nil), v...)
	}
	q.Set("skip", strconv.Itoa(c.Skip))
	q.Set("limit", strconv.Itoa(c.Limit))
	return q
}

func (c Cursor) String() string {
	return fmt.Sprintf("skip=%d limit=%d", c.Skip, c.Limit)
}

// PageFunc fetches the page at cursor.
type PageFunc[T any] func(ctx context.Context, cursor Cursor) ([]T, error)

// ClampPageSize maps n into (0, MaxPageSize]; non-positive means MaxPageSize.
func ClampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// FetchAll requests pages sequentially until one comes back empty or short
// and returns the concatenation. Any page error discards what was collected.
// A collection that is an exact multiple of the page size costs one extra
// request that returns an empty page.
func FetchAll[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) ([]T, error) {
	cursor := Cursor{Limit: ClampPageSize(pageSize)}
	all := make([]T, 0)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, cursor)
		metrics.IncPaginationPage()
		if err != nil {
			return nil, fmt.Errorf("fetch page %s: %w", cursor, err)
		}

		all = append(all, page...)
		if len(page) < cursor.Limit {
			return all, nil
		}
		cursor.Skip += cursor.Limit
	}
}

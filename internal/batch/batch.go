// Package batch runs one independent mutation per id and reports every
// outcome. A failure never cancels its siblings and nothing is rolled back.
package batch

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

const DefaultLimit = 8

type Result[ID comparable] struct {
	ID    ID     `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func Run[ID comparable](ctx context.Context, ids []ID, limit int, fn func(ctx context.Context, id ID) error) []Result[ID] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	results := make([]Result[ID], len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res := Result[ID]{ID: id, OK: true}
			if err := fn(ctx, id); err != nil {
				res.OK = false
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func Failed[ID comparable](results []Result[ID]) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}

// Status is 200 when every item succeeded and 207 otherwise.
func Status[ID comparable](results []Result[ID]) int {
	if Failed(results) > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

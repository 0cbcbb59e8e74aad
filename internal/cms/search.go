package cms

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Search runs a case-insensitive title match against every searchable kind in
// parallel and concatenates the hits in SearchKinds order. An empty query
// returns an empty result without touching the network.
//
// A kind whose request fails contributes nothing; the failure is logged and
// counted, and the other kinds are still returned.
func (c *Client) Search(ctx context.Context, query string) []Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Item{}
	}

	results := make([][]Item, len(SearchKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range SearchKinds {
		g.Go(func() error {
			items, err := c.fetchList(gctx, kind, Contains(kind.TitleField(), query))
			if err != nil {
				c.logFetchFailure(gctx, err, "cms search kind failed", "kind", string(kind), "query", query)
				if c.metrics != nil {
					c.metrics.IncSearchPartialFailure(string(kind))
				}
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := make([]Item, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

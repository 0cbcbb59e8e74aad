package cms

import (
	"context"
	"strings"
)

// FetchList returns every item of kind matching all filters, normalized.
// It never fails: on any error the result is an empty, non-nil slice.
func (c *Client) FetchList(ctx context.Context, kind Kind, filters ...Filter) []Item {
	if !kind.Valid() {
		c.logger.Warn(ctx, "fetch list for unknown kind", "kind", string(kind))
		return []Item{}
	}
	items, err := c.fetchList(ctx, kind, filters...)
	if err != nil {
		c.logFetchFailure(ctx, err, "cms list fetch failed", "kind", string(kind))
		return []Item{}
	}
	return items
}

// fetchList is FetchList with the error kept, for callers that account failures
// themselves (search).
func (c *Client) fetchList(ctx context.Context, kind Kind, filters ...Filter) ([]Item, error) {
	list, err := c.getList(ctx, "/"+kind.Collection(), listQuery("*", filters...), "")
	if err != nil {
		return nil, err
	}
	return normalizeItems(kind, list), nil
}

// FetchBySlug returns the first item of kind with the given slug. The bool is
// false when nothing matches or the CMS could not be reached.
func (c *Client) FetchBySlug(ctx context.Context, kind Kind, slug string) (Item, bool) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Item{}, false
	}
	items := c.FetchList(ctx, kind, Eq("slug", slug))
	if len(items) == 0 {
		return Item{}, false
	}
	return items[0], true
}

// ProductsByCategory returns the products related to the category with the given slug.
func (c *Client) ProductsByCategory(ctx context.Context, categorySlug string) []Item {
	categorySlug = strings.TrimSpace(categorySlug)
	if categorySlug == "" {
		return []Item{}
	}
	return c.FetchList(ctx, KindProduct, Eq("categories.slug", categorySlug))
}

// FetchCategories returns the flat category list with parent ids resolved.
func (c *Client) FetchCategories(ctx context.Context) []Category {
	cats, err := c.fetchCategories(ctx)
	if err != nil {
		c.logFetchFailure(ctx, err, "cms category fetch failed")
		return []Category{}
	}
	return cats
}

func (c *Client) fetchCategories(ctx context.Context) ([]Category, error) {
	list, err := c.getList(ctx, "/categories", listQuery("parent"), "")
	if err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(list))
	for _, raw := range list {
		if cat, ok := normalizeCategory(raw); ok {
			out = append(out, cat)
		}
	}
	return out, nil
}

// FetchCategoryTree fetches the flat category list and nests it. See BuildCategoryTree.
func (c *Client) FetchCategoryTree(ctx context.Context) []*Category {
	return BuildCategoryTree(c.FetchCategories(ctx))
}

// CategoryTree is FetchCategoryTree with the failure reported, for callers
// that keep a previous tree when the CMS is unavailable.
func (c *Client) CategoryTree(ctx context.Context) ([]*Category, error) {
	cats, err := c.fetchCategories(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCategoryTree(cats), nil
}

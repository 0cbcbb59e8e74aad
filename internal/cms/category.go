package cms

// MaxCategoryDepth bounds tree construction. The CMS hierarchy is a tree, but a
// category whose parent chain loops back on itself must not recurse forever.
const MaxCategoryDepth = 8

// BuildCategoryTree nests a flat category list by parent id. Roots are the
// categories with no parent; children keep their input order. Categories whose
// parent is missing from the list are dropped, and nesting stops at MaxCategoryDepth.
// The result is never nil.
func BuildCategoryTree(flat []Category) []*Category {
	byParent := make(map[int][]Category)
	var roots []Category
	for _, c := range flat {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}

	var build func(level []Category, depth int) []*Category
	build = func(level []Category, depth int) []*Category {
		out := make([]*Category, 0, len(level))
		for _, c := range level {
			node := &Category{ID: c.ID, Name: c.Name, Slug: c.Slug, ParentID: c.ParentID}
			if depth+1 < MaxCategoryDepth {
				if kids := byParent[c.ID]; len(kids) > 0 {
					node.Children = build(kids, depth+1)
				}
			}
			out = append(out, node)
		}
		return out
	}
	return build(roots, 0)
}

// Walk visits every node depth first, passing the slugs from the root down to it.
func Walk(tree []*Category, fn func(c *Category, path []string)) {
	var walk func(nodes []*Category, path []string, depth int)
	walk = func(nodes []*Category, path []string, depth int) {
		if depth >= MaxCategoryDepth {
			return
		}
		for _, n := range nodes {
			p := append(append([]string(nil), path...), n.Slug)
			fn(n, p)
			walk(n.Children, p, depth+1)
		}
	}
	walk(tree, nil, 0)
}

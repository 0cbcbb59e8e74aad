package cms

import (
	"net/url"
	"strings"
)

// Operator is a CMS filter operator.
type Operator string

const (
	OpEq        Operator = "$eq"
	OpContainsI Operator = "$containsi"
)

// Filter restricts a list query. Field may be a relation path ("categories.slug").
type Filter struct {
	Field string
	Op    Operator
	Value string
}

// Eq matches items whose field equals value.
func Eq(field, value string) Filter { return Filter{Field: field, Op: OpEq, Value: value} }

// Contains matches items whose field contains value, case-insensitively.
func Contains(field, value string) Filter {
	return Filter{Field: field, Op: OpContainsI, Value: value}
}

// key renders the bracketed query key, e.g. filters[categories][slug][$eq].
func (f Filter) key() string {
	var b strings.Builder
	b.WriteString("filters")
	for _, part := range strings.Split(f.Field, ".") {
		b.WriteString("[")
		b.WriteString(part)
		b.WriteString("]")
	}
	b.WriteString("[")
	b.WriteString(string(f.Op))
	b.WriteString("]")
	return b.String()
}

// listQuery builds the query for a populated list request.
func listQuery(populate string, filters ...Filter) url.Values {
	q := url.Values{}
	if populate != "" {
		q.Set("populate", populate)
	}
	for _, f := range filters {
		if f.Field == "" {
			continue
		}
		op := f.Op
		if op == "" {
			op = OpEq
		}
		f.Op = op
		q.Add(f.key(), f.Value)
	}
	return q
}

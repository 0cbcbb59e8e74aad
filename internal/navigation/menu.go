package navigation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

// Entry is one menu link. Submenu nests arbitrarily deep.
type Entry struct {
	Title   string  `yaml:"title" json:"title"`
	Link    string  `yaml:"link" json:"link"`
	Submenu []Entry `yaml:"submenu,omitempty" json:"submenu,omitempty"`

	// Categories replaces Submenu with the CMS category tree, linked below Link.
	Categories bool `yaml:"categories,omitempty" json:"-"`
}

// File is the on-disk menu document.
type File struct {
	Entries []Entry `yaml:"menu"`
}

// Menu is an assembled menu snapshot.
type Menu struct {
	Entries []Entry   `json:"menu"`
	BuiltAt time.Time `json:"built_at"`

	// CategoryLinks counts the links generated from the category tree.
	CategoryLinks int `json:"-"`
}

// maxMenuFileBytes bounds the YAML we are willing to parse.
const maxMenuFileBytes = 1 << 20

// LoadFile reads and validates a menu file.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open menu file %s", path)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxMenuFileBytes+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read menu file %s", path)
	}
	if len(data) > maxMenuFileBytes {
		return nil, xerrors.Newf("menu file %s exceeds %d bytes", path, maxMenuFileBytes)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, xerrors.Wrapf(err, "menu file %s", path)
	}
	return entries, nil
}

// Parse decodes and validates a menu document. Unknown keys are rejected.
func Parse(data []byte) ([]Entry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc File
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, xerrors.New("menu document is empty")
		}
		return nil, xerrors.Wrap(err, "decode menu yaml")
	}
	if len(doc.Entries) == 0 {
		return nil, xerrors.New("menu has no entries")
	}
	if err := validate(doc.Entries, "menu"); err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

func validate(entries []Entry, path string) error {
	var errs []error
	for i, e := range entries {
		at := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(e.Title) == "" {
			errs = append(errs, fmt.Errorf("%s: title is required", at))
		}
		if !validLink(e.Link) {
			errs = append(errs, fmt.Errorf("%s: link %q must be a site path or http(s) url", at, e.Link))
		}
		if e.Categories && len(e.Submenu) > 0 {
			errs = append(errs, fmt.Errorf("%s: categories and submenu are mutually exclusive", at))
		}
		if err := validate(e.Submenu, at+".submenu"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validLink(l string) bool {
	switch {
	case strings.HasPrefix(l, "//"):
		return false
	case strings.HasPrefix(l, "/"):
		return true
	case strings.HasPrefix(l, "https://"), strings.HasPrefix(l, "http://"):
		return true
	}
	return false
}

// CategorySource supplies the category tree. Implemented by *cms.Client.
type CategorySource interface {
	CategoryTree(ctx context.Context) ([]*cms.Category, error)
}

// Build assembles a menu from static entries and a category tree. Entries
// flagged Categories get one link per category, nested like the tree:
// {link}/{parent}/{child}. The static entries are not modified.
func Build(static []Entry, tree []*cms.Category, now time.Time) Menu {
	m := Menu{BuiltAt: now.UTC()}
	m.Entries = cloneEntries(static, tree, &m.CategoryLinks)
	return m
}

func cloneEntries(in []Entry, tree []*cms.Category, count *int) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Entry{Title: e.Title, Link: e.Link, Categories: e.Categories}
		if e.Categories {
			out[i].Submenu = categoryEntries(strings.TrimRight(e.Link, "/"), tree, 0, count)
			continue
		}
		out[i].Submenu = cloneEntries(e.Submenu, tree, count)
	}
	return out
}

func categoryEntries(base string, nodes []*cms.Category, depth int, count *int) []Entry {
	if len(nodes) == 0 || depth >= cms.MaxCategoryDepth {
		return nil
	}
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Slug == "" {
			continue
		}
		link := base + "/" + n.Slug
		*count++
		out = append(out, Entry{
			Title:   n.Name,
			Link:    link,
			Submenu: categoryEntries(link, n.Children, depth+1, count),
		})
	}
	return out
}

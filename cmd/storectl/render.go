package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/keithlinneman/storefront/internal/cms"
)

// itemMarkdown lays an item out as markdown: title, facts, then body text.
func itemMarkdown(it cms.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", it.Title)

	var facts []string
	if it.Price != nil {
		facts = append(facts, fmt.Sprintf("**Price:** %.2f", *it.Price))
	}
	if len(it.Categories) > 0 {
		names := make([]string, 0, len(it.Categories))
		for _, c := range it.Categories {
			names = append(names, c.Name)
		}
		facts = append(facts, "**Categories:** "+strings.Join(names, ", "))
	}
	if it.Technologies != "" {
		facts = append(facts, "**Technologies:** "+it.Technologies)
	}
	if it.LiveURL != "" {
		facts = append(facts, "**Live:** "+it.LiveURL)
	}
	if it.PaymentLink != "" {
		facts = append(facts, "**Buy:** "+it.PaymentLink)
	}
	if !it.CreatedAt.IsZero() {
		facts = append(facts, "**Created:** "+it.CreatedAt.Format("2006-01-02"))
	}
	for _, f := range facts {
		b.WriteString("- " + f + "\n")
	}
	if len(facts) > 0 {
		b.WriteString("\n")
	}

	if it.Body != "" {
		b.WriteString(strings.TrimSpace(it.Body))
		b.WriteString("\n\n")
	}
	for _, blk := range it.Description {
		var text strings.Builder
		for _, s := range blk.Children {
			text.WriteString(s.Text)
		}
		line := strings.TrimSpace(text.String())
		if line == "" {
			continue
		}
		if blk.Type == "heading" {
			line = "## " + line
		}
		b.WriteString(line + "\n\n")
	}

	if len(it.Details) > 0 {
		keys := make([]string, 0, len(it.Details))
		for k := range it.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("| Detail | Value |\n|---|---|\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %s |\n", k, it.Details[k])
		}
	}
	return b.String()
}

// renderItem renders itemMarkdown for a terminal.
func renderItem(it cms.Item, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(itemMarkdown(it))
}

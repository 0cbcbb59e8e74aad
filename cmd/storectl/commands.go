package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/storefront/internal/cms"
)

func newSearchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search posts, products and portfolio entries by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			items := c.Search(cmd.Context(), strings.Join(args, " "))
			return printItems(cmd.OutOrStdout(), g.asJSON, items)
		},
	}
}

func newListCmd(g *globals) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List every item of a kind (post, product, portfolio)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := cms.ParseKind(args[0])
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			var items []cms.Item
			if category != "" {
				if kind != cms.KindProduct {
					return fmt.Errorf("--category only applies to products")
				}
				items = c.ProductsByCategory(cmd.Context(), category)
			} else {
				items = c.FetchList(cmd.Context(), kind)
			}
			return printItems(cmd.OutOrStdout(), g.asJSON, items)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only products in the category with this slug")
	return cmd
}

func newGetCmd(g *globals) *cobra.Command {
	var render bool
	var width int
	cmd := &cobra.Command{
		Use:   "get <kind> <slug>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := cms.ParseKind(args[0])
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			item, ok := c.FetchBySlug(cmd.Context(), kind, args[1])
			if !ok {
				return fmt.Errorf("%s %q not found", kind, args[1])
			}
			out := cmd.OutOrStdout()
			switch {
			case g.asJSON:
				return writeJSON(out, item)
			case render:
				s, err := renderItem(item, width)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, s)
				return err
			default:
				_, err = io.WriteString(out, itemMarkdown(item))
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render rich text for the terminal")
	cmd.Flags().IntVar(&width, "width", 80, "word wrap width for --render")
	return cmd
}

func newCategoriesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Print the category tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			tree, err := c.CategoryTree(cmd.Context())
			if err != nil {
				return err
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), tree)
			}
			var b strings.Builder
			cms.Walk(tree, func(cat *cms.Category, path []string) {
				fmt.Fprintf(&b, "%s%s (%s)\n", strings.Repeat("  ", len(path)-1), cat.Name, strings.Join(path, "/"))
			})
			_, err = io.WriteString(cmd.OutOrStdout(), b.String())
			return err
		},
	}
}

func printItems(w io.Writer, asJSON bool, items []cms.Item) error {
	if asJSON {
		return writeJSON(w, items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSLUG\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", it.Kind, it.ID, it.Slug, it.Title)
	}
	return tw.Flush()
}

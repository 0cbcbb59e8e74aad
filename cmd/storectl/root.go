package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/storefront/internal/cfg"
	"github.com/keithlinneman/storefront/internal/cms"
	"github.com/keithlinneman/storefront/internal/log"
	v "github.com/keithlinneman/storefront/internal/version"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	cmsURL  string
	token   string
	timeout time.Duration
	asJSON  bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Query storefront content in the CMS",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       v.Get().UserAgent(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.LoadDotEnv(); err != nil {
				return err
			}
			// flags win over the environment
			if !cmd.Flags().Changed("cms-url") {
				if s := os.Getenv(cfg.EnvPrefix + "CMS_URL"); s != "" {
					g.cmsURL = s
				}
			}
			if !cmd.Flags().Changed("token") {
				g.token = os.Getenv(cfg.EnvPrefix + "CMS_API_TOKEN")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.cmsURL, "cms-url", "http://localhost:1337", "base url of the CMS REST API (env "+cfg.EnvPrefix+"CMS_URL)")
	pf.StringVar(&g.token, "token", "", "CMS API token (env "+cfg.EnvPrefix+"CMS_API_TOKEN)")
	pf.DurationVar(&g.timeout, "timeout", cms.DefaultTimeout, "timeout for a single CMS request")
	pf.BoolVar(&g.asJSON, "json", false, "print raw JSON instead of a table")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log CMS failures to stderr")

	root.AddCommand(
		newSearchCmd(g),
		newListCmd(g),
		newGetCmd(g),
		newCategoriesCmd(g),
	)
	return root
}

func (g *globals) client() (*cms.Client, error) {
	L := log.Nop()
	if g.verbose {
		lg, err := log.New(log.Options{App: "storectl", Level: slog.LevelDebug, Writer: os.Stderr})
		if err != nil {
			return nil, err
		}
		L = lg
	}
	return cms.New(cms.Options{
		BaseURL:   g.cmsURL,
		APIToken:  g.token,
		Timeout:   g.timeout,
		UserAgent: "storectl/" + v.Get().Version,
		Logger:    L,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

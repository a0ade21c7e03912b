// Package healthcmder provides the health command, which reports the state
// of a running folio server and the services behind it.
package healthcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/folio/api/client"
	"github.com/papercomputeco/folio/pkg/cliui"
	"github.com/papercomputeco/folio/pkg/config"
	"github.com/papercomputeco/folio/pkg/pipeline"
	"github.com/papercomputeco/folio/pkg/utils"
)

// ErrUnhealthy is returned when the server reports itself unhealthy.
var ErrUnhealthy = errors.New("folio server is unhealthy")

type healthCommander struct {
	apiTarget string
	apiKey    string
	stats     bool
}

const healthLongDesc string = `Check a running folio server.

Probes the embedding service, the chunk store and the page image store
through the server's /health endpoint. Exits non-zero when retrieval is
unavailable. With --stats, also prints the active pipeline settings and
cache sizes.

Examples:
  folio health
  folio health --stats
  folio health --api-target http://localhost:9000`

const healthShortDesc string = "Check a running folio server"

func NewHealthCmd() *cobra.Command {
	cmder := &healthCommander{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: healthShortDesc,
		Long:  healthLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") && cfg.Client.APITarget != "" {
				cmder.apiTarget = cfg.Client.APITarget
			}
			if !cmd.Flags().Changed("api-key") {
				cmder.apiKey = cfg.API.APIKey
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPIKey, &cmder.apiKey)
	cmd.Flags().BoolVar(&cmder.stats, "stats", false, "Also print pipeline settings and cache sizes")

	return cmd
}

func (c *healthCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cl, err := client.New(c.apiTarget, client.WithAPIKey(c.apiKey))
	if err != nil {
		return err
	}

	health, err := cl.Health(ctx)
	if err != nil {
		return err
	}
	printHealth(w, c.apiTarget, health)

	if c.stats {
		stats, err := cl.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(w, stats)
	}

	if health.Status == pipeline.StatusUnhealthy {
		return ErrUnhealthy
	}
	return nil
}

func printHealth(w io.Writer, target string, h *pipeline.Health) {
	fmt.Fprintf(w, "\n  %s %s  %s\n\n",
		cliui.KeyStyle.Render("Server:"),
		cliui.ValueStyle.Render(target),
		cliui.StatusStyle(h.Status).Render(h.Status),
	)

	names := make([]string, 0, len(h.Components))
	for name := range h.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		comp := h.Components[name]
		line := fmt.Sprintf("  %-14s %s %s",
			name,
			cliui.StatusStyle(comp.Status).Render(comp.Status),
			cliui.DimStyle.Render(strconv.FormatInt(comp.LatencyMs, 10)+"ms"),
		)
		if comp.Error != "" {
			line += " " + cliui.ErrorStyle.Render(utils.Truncate(comp.Error, 80))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func printStats(w io.Writer, s *pipeline.Stats) {
	rows := []struct{ key, value string }{
		{"max_candidates", strconv.Itoa(s.Config.MaxCandidates)},
		{"max_selected", strconv.Itoa(s.Config.MaxSelected)},
		{"enable_reranking", strconv.FormatBool(s.Config.EnableReranking)},
		{"enable_image_fetching", strconv.FormatBool(s.Config.EnableImageFetching)},
		{"cache_ttl", s.Config.CacheTTL.String()},
		{"cache_entries", strconv.Itoa(s.CacheEntries)},
		{"rewrite_memo", strconv.Itoa(s.RewriteMemo)},
		{"image_memo", strconv.Itoa(s.ImageMemo)},
	}

	fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("Pipeline"))
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-22s", r.key)),
			cliui.ValueStyle.Render(r.value),
		)
	}
	fmt.Fprintln(w)
}

// Package askcmder provides the ask command, which sends one question to a
// running folio server.
package askcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/api/client"
	"github.com/papercomputeco/folio/pkg/cliui"
	"github.com/papercomputeco/folio/pkg/config"
)

type askCommander struct {
	apiTarget string
	apiKey    string
	sessionID string
	jsonOut   bool
	raw       bool

	maxSelected int
	noRerank    bool
	noImages    bool

	out io.Writer
	err io.Writer
}

const askLongDesc string = `Ask the folio server a question.

The question is rewritten into a standalone query, matched against the
document chunks, reranked and answered from the selected pages. The answer
is rendered as markdown followed by the cited pages.

Use --session to continue a conversation: the server remembers the
previous turns of the session and uses them to resolve follow-up questions.

Examples:
  folio ask "What time does the kitchen open?"
  folio ask --session table-12 "and on sundays?"
  folio ask --json "How much is the feijoada?"
  folio ask --api-target http://localhost:9000 --max-selected 4 "Which wines pair with fish?"`

const askShortDesc string = "Ask the folio server a question"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.out = cmd.OutOrStdout()
			cmder.err = cmd.ErrOrStderr()

			var opts *api.Options
			if cmd.Flags().Changed("max-selected") || cmder.noRerank || cmder.noImages {
				opts = cmder.options(cmd.Flags().Changed("max-selected"))
			}
			return cmder.run(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPIKey, &cmder.apiKey)
	cmd.Flags().StringVarP(&cmder.sessionID, "session", "s", "", "Session ID for follow-up questions")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the raw JSON answer")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the answer without markdown rendering")
	cmd.Flags().IntVar(&cmder.maxSelected, "max-selected", 0, "Override the number of pages cited")
	cmd.Flags().BoolVar(&cmder.noRerank, "no-rerank", false, "Skip reranking and keep the top search hits")
	cmd.Flags().BoolVar(&cmder.noImages, "no-images", false, "Skip fetching page images")

	return cmd
}

func (c *askCommander) options(maxSelectedSet bool) *api.Options {
	opts := &api.Options{}
	if maxSelectedSet {
		opts.MaxSelected = &c.maxSelected
	}
	if c.noRerank {
		f := false
		opts.EnableReranking = &f
	}
	if c.noImages {
		f := false
		opts.EnableImageFetching = &f
	}
	return opts
}

func (c *askCommander) run(ctx context.Context, question string, opts *api.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cl, err := client.New(c.apiTarget, client.WithAPIKey(c.apiKey))
	if err != nil {
		return err
	}

	req := api.AnswerRequest{
		Query:     strings.TrimSpace(question),
		SessionID: c.sessionID,
		Options:   opts,
	}

	var resp *api.AnswerResponse
	ask := func() error {
		var err error
		resp, err = cl.Answer(ctx, req)
		return err
	}

	if c.jsonOut {
		if err := ask(); err != nil {
			return err
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if err := cliui.Step(c.err, "Answering", ask); err != nil {
		return err
	}

	PrintAnswer(c.out, resp, c.raw)
	return nil
}

// PrintAnswer writes the answer text followed by the cited pages.
func PrintAnswer(w io.Writer, resp *api.AnswerResponse, raw bool) {
	text := resp.AnswerText
	if !raw {
		if rendered, err := cliui.RenderMarkdown(text); err == nil {
			text = rendered
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimRight(text, "\n"))
	fmt.Fprintln(w)

	if len(resp.SelectedPages) > 0 {
		fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("Sources"))
		for _, p := range resp.SelectedPages {
			line := fmt.Sprintf("  %s %s",
				cliui.NameStyle.Render(p.DocumentName),
				cliui.KeyStyle.Render(fmt.Sprintf("p. %d", p.PageNumber)),
			)
			if p.ImageURL != "" {
				line += " " + cliui.DimStyle.Render(p.ImageURL)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	meta := fmt.Sprintf("%.1fs", resp.ElapsedSeconds)
	if resp.CacheHit {
		meta += ", cached"
	}
	if resp.StandaloneQuery.WasRewritten {
		meta += fmt.Sprintf(", searched for %q", resp.StandaloneQuery.Text)
	}
	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("("+meta+")"))
}

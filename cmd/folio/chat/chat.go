// Package chatcmder provides the chat command, an interactive conversation
// with a running folio server.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/api/client"
	askcmder "github.com/papercomputeco/folio/cmd/folio/ask"
	"github.com/papercomputeco/folio/pkg/cliui"
	"github.com/papercomputeco/folio/pkg/config"
)

// answerClient is the part of the API client chat needs.
type answerClient interface {
	Answer(ctx context.Context, req api.AnswerRequest) (*api.AnswerResponse, error)
}

type chatCommander struct {
	apiTarget string
	apiKey    string
	sessionID string
	plain     bool
}

const chatLongDesc string = `Start an interactive conversation with the folio server.

Every question is sent with the same session ID, so the server resolves
follow-up questions ("and on sundays?") against the earlier turns. Use
--session to resume a conversation, or /new to start a fresh one.

In a terminal chat opens a full screen view. With --plain, or when stdin is
not a terminal, it reads one question per line instead.

Commands:
  /new    start a new session
  /exit   quit (also Ctrl+C or Ctrl+D)

Examples:
  folio chat
  folio chat --session table-12
  echo "What time do you open?" | folio chat --plain`

const chatShortDesc string = "Interactive conversation with the folio server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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
			cl, err := client.New(cmder.apiTarget, client.WithAPIKey(cmder.apiKey))
			if err != nil {
				return err
			}
			if cmder.sessionID == "" {
				cmder.sessionID = newSessionID()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			in := cmd.InOrStdin()
			if cmder.plain || !isTerminal(in) {
				return runPlain(ctx, cl, cmder.sessionID, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			return runTUI(ctx, cl, cmder.sessionID)
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPIKey, &cmder.apiKey)
	cmd.Flags().StringVarP(&cmder.sessionID, "session", "s", "", "Resume the given session")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Read questions line by line instead of opening the full screen view")

	return cmd
}

func newSessionID() string {
	return "chat-" + uuid.NewString()
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runPlain reads one question per line from in until EOF or /exit.
func runPlain(ctx context.Context, cl answerClient, sessionID string, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintf(out, "\n  %s %s\n", cliui.KeyStyle.Render("Session:"), cliui.NameStyle.Render(sessionID))
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type a question and press Enter. /new for a new session, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(out)
			return nil
		case "/new":
			sessionID = newSessionID()
			fmt.Fprintf(out, "  %s %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render("new session "+sessionID))
			continue
		}

		resp, err := cl.Answer(ctx, api.AnswerRequest{Query: input, SessionID: sessionID})
		if err != nil {
			fmt.Fprintf(errOut, "  %s %v\n", cliui.FailMark, err)
			continue
		}
		askcmder.PrintAnswer(out, resp, true)
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

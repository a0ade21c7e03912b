// Package foliocmder
package foliocmder

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/folio/cmd/folio/ask"
	authcmder "github.com/papercomputeco/folio/cmd/folio/auth"
	chatcmder "github.com/papercomputeco/folio/cmd/folio/chat"
	configcmder "github.com/papercomputeco/folio/cmd/folio/config"
	healthcmder "github.com/papercomputeco/folio/cmd/folio/health"
	initcmder "github.com/papercomputeco/folio/cmd/folio/init"
	servecmder "github.com/papercomputeco/folio/cmd/folio/serve"
	versioncmder "github.com/papercomputeco/folio/cmd/folio/version"
	"github.com/papercomputeco/folio/pkg/cliui"
)

const folioLongDesc string = `Folio answers questions about your documents.

Questions are rewritten into standalone queries, matched against document
chunks, reranked and answered from the cited pages.

Run the service using:
  folio init           Create a .folio/ directory with config.toml
  folio auth openai    Store a provider API key
  folio serve          Run the API server and MCP endpoint

Talk to a running server using:
  folio ask "..."      Ask one question
  folio chat           Start a conversation
  folio health         Check the server and its services`

const folioShortDesc string = "Folio - Answers from your documents"

func NewFolioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "folio",
		Short:         folioShortDesc,
		Long:          folioLongDesc,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cliui.ConfigureColor(os.Stdout)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .folio/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(healthcmder.NewHealthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

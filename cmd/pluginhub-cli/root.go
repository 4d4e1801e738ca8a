package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kalendo/pluginhub/internal/core"
)

var rootCmd = &cobra.Command{
	Use:   "pluginhub-cli",
	Short: "Manage plugin repositories and updates",
	Long: `pluginhub-cli runs one-shot administration commands against the same
database and plugin directory as the server.

Available Commands:
  repo     Manage plugin repositories
  search   Search every enabled repository
  updates  Check for and apply plugin updates`,
	SilenceUsage: true,
}

// withApp builds the application for the duration of one command.
func withApp(fn func(app *core.App) error) error {
	app, err := core.New()
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

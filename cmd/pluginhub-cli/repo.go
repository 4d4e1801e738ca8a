package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalendo/pluginhub/internal/core"
	"github.com/kalendo/pluginhub/internal/models"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage plugin repositories",
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tURL\tENABLED\tPRIORITY\tLAST SYNC")
			for _, r := range app.Repositories().GetRepositories() {
				lastSync := "never"
				if r.LastSync != nil {
					lastSync = r.LastSync.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\n", r.ID, r.Name, r.URL, r.Enabled, r.Priority, lastSync)
			}
			return tw.Flush()
		})
	},
}

var (
	repoAddName        string
	repoAddURL         string
	repoAddAPIEndpoint string
	repoAddDescription string
	repoAddPriority    int
)

var repoAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a new repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def := models.RepositoryDefinition{
			ID:          args[0],
			Name:        repoAddName,
			URL:         repoAddURL,
			APIEndpoint: repoAddAPIEndpoint,
			Description: repoAddDescription,
		}
		if cmd.Flags().Changed("priority") {
			def.Priority = &repoAddPriority
		}
		return withApp(func(app *core.App) error {
			repo, err := app.Repositories().AddRepository(cmd.Context(), def)
			if err != nil {
				return err
			}
			// Let the initial catalog sync finish before the process exits.
			app.Repositories().Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "Added repository %s\n", repo.ID)
			return nil
		})
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a repository and its cached catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			if err := app.Repositories().RemoveRepository(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed repository %s\n", args[0])
			return nil
		})
	},
}

var repoToggleCmd = &cobra.Command{
	Use:   "toggle <id> <true|false>",
	Short: "Enable or disable a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid enabled value %q: %w", args[1], err)
		}
		return withApp(func(app *core.App) error {
			repo, err := app.Repositories().ToggleRepository(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repository %s enabled=%t\n", repo.ID, repo.Enabled)
			return nil
		})
	},
}

var repoSyncCmd = &cobra.Command{
	Use:   "sync [id]",
	Short: "Sync one repository, or every enabled repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			if len(args) == 1 {
				catalog, err := app.Repositories().SyncRepository(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %s: %d plugin(s)\n", args[0], len(catalog))
				return nil
			}

			result := app.Repositories().SyncAllRepositories(cmd.Context())
			for _, id := range result.Successful {
				fmt.Fprintf(cmd.OutOrStdout(), "ok      %s\n", id)
			}
			for _, f := range result.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "failed  %s: %s\n", f.RepositoryID, f.Error)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d repositories failed to sync", len(result.Failed))
			}
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search every enabled repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return withApp(func(app *core.App) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVERSION\tREPOSITORY\tDOWNLOADS")
			for _, r := range app.Repositories().SearchPlugins(cmd.Context(), query) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Name, r.Version, r.RepositoryID, r.Downloads)
			}
			return tw.Flush()
		})
	},
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddName, "name", "", "display name (required)")
	repoAddCmd.Flags().StringVar(&repoAddURL, "url", "", "repository base URL (required)")
	repoAddCmd.Flags().StringVar(&repoAddAPIEndpoint, "api", "", "API endpoint, defaults to <url>/api")
	repoAddCmd.Flags().StringVar(&repoAddDescription, "description", "", "description")
	repoAddCmd.Flags().IntVar(&repoAddPriority, "priority", 100, "search priority, lower ranks first")
	_ = repoAddCmd.MarkFlagRequired("name")
	_ = repoAddCmd.MarkFlagRequired("url")

	repoCmd.AddCommand(repoListCmd, repoAddCmd, repoRemoveCmd, repoToggleCmd, repoSyncCmd)
	rootCmd.AddCommand(repoCmd, searchCmd)
}

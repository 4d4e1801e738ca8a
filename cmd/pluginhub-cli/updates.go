package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalendo/pluginhub/internal/core"
	"github.com/kalendo/pluginhub/internal/models"
)

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Check for and apply plugin updates",
}

var checkFull bool

var updatesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Look for newer versions of installed plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			found, err := app.Updates().CheckForUpdates(cmd.Context(), models.CheckOptions{FullCheck: checkFull})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All plugins are up to date.")
				return nil
			}
			for _, u := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s (%s)\n", u.ID, u.CurrentVersion, u.NewVersion, u.RepositoryID)
			}
			return nil
		})
	},
}

var updatesApplyCmd = &cobra.Command{
	Use:   "apply [plugin-id]",
	Short: "Apply one pending update, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			if len(args) == 1 {
				if err := app.Updates().ApplyUpdate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
				return nil
			}

			result := app.Updates().ApplyAllUpdates(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d updates failed", len(result.Failed))
			}
			return nil
		})
	},
}

var updatesHistoryCmd = &cobra.Command{
	Use:   "history [plugin-id]",
	Short: "Show applied updates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *core.App) error {
			if len(args) == 1 {
				return printJSON(cmd.OutOrStdout(), app.Updates().GetPluginUpdateHistory(args[0]))
			}
			return printJSON(cmd.OutOrStdout(), app.Updates().GetUpdateHistory())
		})
	},
}

var (
	settingsInterval      int64
	settingsAutomatic     bool
	settingsAutoUpdate    bool
	settingsNotifications bool
)

var updatesSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change update settings",
	Long:  "Without flags, prints the current settings. Any flag given is merged into them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch models.UpdateSettingsPatch
		flags := cmd.Flags()
		if flags.Changed("interval") {
			patch.CheckInterval = &settingsInterval
		}
		if flags.Changed("automatic") {
			patch.CheckAutomatically = &settingsAutomatic
		}
		if flags.Changed("auto-update") {
			patch.AutoUpdate = &settingsAutoUpdate
		}
		if flags.Changed("notifications") {
			patch.UpdateNotificationsEnabled = &settingsNotifications
		}

		return withApp(func(app *core.App) error {
			if patch == (models.UpdateSettingsPatch{}) {
				return printJSON(cmd.OutOrStdout(), app.Updates().GetUpdateSettings())
			}
			settings, err := app.Updates().ConfigureUpdateSettings(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), settings)
		})
	},
}

func init() {
	updatesCheckCmd.Flags().BoolVar(&checkFull, "full", false, "discard previously detected updates first")

	updatesSettingsCmd.Flags().Int64Var(&settingsInterval, "interval", 0, "check interval in milliseconds")
	updatesSettingsCmd.Flags().BoolVar(&settingsAutomatic, "automatic", true, "check for updates automatically")
	updatesSettingsCmd.Flags().BoolVar(&settingsAutoUpdate, "auto-update", false, "apply updates as soon as they are found")
	updatesSettingsCmd.Flags().BoolVar(&settingsNotifications, "notifications", true, "emit updateAvailable events")

	updatesCmd.AddCommand(updatesCheckCmd, updatesApplyCmd, updatesHistoryCmd, updatesSettingsCmd)
	rootCmd.AddCommand(updatesCmd)
}

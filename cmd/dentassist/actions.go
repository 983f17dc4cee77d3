package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/af-corp/dentassist/internal/action"
)

func newActionsCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the configured actions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the actions the server would load",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeSource, err := loadRegistry(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer closeSource()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFORMAT\tCATEGORY")
			for _, a := range registry.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Format, action.CategoryOf(a))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			stats := registry.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d actions from %s", stats.TotalActions, stats.Source)
			if stats.Defaults {
				fmt.Fprint(cmd.OutOrStdout(), " (built-in defaults)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	categoriesCmd := &cobra.Command{
		Use:   "categories",
		Short: "Show actions grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeSource, err := loadRegistry(cmd.Context(), *configDir)
			if err != nil {
				return err
			}
			defer closeSource()

			cats := registry.Categories()
			names := make([]string, 0, len(cats))
			for c := range cats {
				names = append(names, c)
			}
			sort.Strings(names)
			for _, c := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c, strings.Join(cats[c], ", "))
			}
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check an actions file without falling back to defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			actions, err := validateActionsFile(args[0], cfg.Actions.DefaultAction)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid actions\n", args[0], len(actions))
			return nil
		},
	}

	cmd.AddCommand(listCmd, categoriesCmd, validateCmd)
	return cmd
}

func loadRegistry(ctx context.Context, configDir string) (*action.Registry, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig(configDir)
	if err != nil {
		return nil, nil, err
	}
	source, closeSource, err := openActionSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	// Listing must not write a defaults file as a side effect.
	registry := action.NewRegistry(ctx, source, action.Options{
		Logger:        logger,
		DefaultAction: cfg.Actions.DefaultAction,
	})
	return registry, closeSource, nil
}

func validateActionsFile(path, defaultID string) ([]action.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions file: %w", err)
	}
	doc, err := action.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	actions, err := doc.Actions()
	if err == nil {
		err = action.RequireAction(actions, defaultID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return actions, nil
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auditline/internal/app"
	"auditline/internal/render"
)

func themeName(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}

func printTheme(dark bool) error {
	if viper.GetBool("json") {
		return printJSON(map[string]bool{"darkMode": dark})
	}
	fmt.Printf("theme: %s\n", themeName(dark))
	return nil
}

func themeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "theme", Short: "Show or change the color theme"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current theme",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				return printTheme(a.Theme.Dark())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Switch between light and dark",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				dark, err := a.Theme.Toggle(ctx)
				if err != nil {
					return err
				}
				return printTheme(dark)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "set <light|dark>",
		Short:     "Set the theme",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"light", "dark"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var dark bool
			switch strings.ToLower(args[0]) {
			case "dark":
				dark = true
			case "light":
			default:
				return fmt.Errorf("invalid theme %q (want light or dark)", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				if err := a.Theme.Set(ctx, dark); err != nil {
					return err
				}
				return printTheme(dark)
			})
		},
	})
	return cmd
}

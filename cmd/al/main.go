package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"auditline/internal/app"
	"auditline/internal/config"
	"auditline/internal/db"
	"auditline/internal/logging"
	"auditline/internal/render"
	"auditline/internal/server"
	"auditline/internal/theme"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Auditline CLI",
	Long: `Auditline records audit observations in a local workspace.
- Observation: a finding with a title, description, severity (High/Medium/Low), status (Open/In Progress/Closed), an assignee and optional evidence.
- Assignees: the people observations can be assigned to; add them before assigning.
- Evidence: a file attached to an observation, stored inline as a data URI.
- Workspace: the .auditline directory holding the database; every change is saved immediately.
- Dashboard: 'al stats' shows counts per status and severity plus recent observations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AUDITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/auditline.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json (default from config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(observationCmd())
	rootCmd.AddCommand(assigneeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(themeCmd())
	rootCmd.AddCommand(evidenceCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in auditline.yml at the workspace root (or the file named by --config): storage keys, logging, server address and the default severity. Missing fields fall back to defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default auditline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(viper.GetString("workspace"), force)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"path": path})
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate auditline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ *render.Renderer) error {
				if !cmd.Flags().Changed("addr") {
					addr = a.Config.Serve.Addr
				}
				if !cmd.Flags().Changed("base-path") {
					basePath = a.Config.Serve.BasePath
				}
				handler, err := server.New(server.Config{
					Store:           a.Store,
					Theme:           a.Theme,
					BasePath:        basePath,
					DefaultSeverity: a.Config.Defaults.Severity,
					Logger:          a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving api", slog.String("addr", addr), slog.String("base_path", basePath))
				fmt.Printf("Serving Auditline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return loadConfigFrom(viper.GetString("config"), viper.GetString("workspace"))
}

// loadConfigFrom reads an explicit config file, which must exist, or falls
// back to the workspace config and its defaults.
func loadConfigFrom(path, workspace string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(workspace)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	format := viper.GetString("log-format")
	if format == "" {
		format = cfg.Log.Format
	}
	return logging.New(level, format)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App, *render.Renderer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	r := render.New(os.Stdout)
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Logger:    logger,
		Ambient:   theme.TerminalAmbient,
		Applier:   r.SetDark,
	})
	if err != nil {
		return err
	}
	runErr := fn(ctx, a, r)
	// Close flushes on a fresh context so an interrupted command still persists.
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(fs *pflag.FlagSet, name string) *string {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetString(name)
	return &v
}

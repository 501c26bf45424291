package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"auditline/internal/app"
	"auditline/internal/domain"
	"auditline/internal/evidence"
	"auditline/internal/render"
	"auditline/internal/store"
)

const recentLimit = 5

func observationCmd() *cobra.Command {
	obs := &cobra.Command{
		Use:     "observation",
		Aliases: []string{"obs"},
		Short:   "Manage observations",
	}
	obs.AddCommand(observationCreateCmd())
	obs.AddCommand(observationListCmd())
	obs.AddCommand(observationShowCmd())
	obs.AddCommand(observationEditCmd())
	obs.AddCommand(observationStatusCmd())
	obs.AddCommand(observationDeleteCmd())
	return obs
}

// readEvidence encodes the file at path through a form session. An empty
// path keeps previous.
func readEvidence(ctx context.Context, path string, previous *string) (*string, error) {
	s := evidence.NewSession()
	defer s.Close()
	if path != "" {
		f, err := evidence.FromPath(path)
		if err != nil {
			return nil, err
		}
		s.Select(ctx, f)
	}
	return s.Resolve(ctx, previous)
}

func requireKnownAssignee(a *app.App, name string) error {
	if name == "" {
		return errors.New("assigned-to is required")
	}
	if !a.Store.HasAssignee(name) {
		return fmt.Errorf("unknown assignee %q; add it with al assignee add %q", name, name)
	}
	return nil
}

func observationCreateCmd() *cobra.Command {
	var title, description, severity, assignedTo, evidencePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				title = strings.TrimSpace(title)
				if title == "" {
					return errors.New("title is required")
				}
				assignedTo = strings.TrimSpace(assignedTo)
				if err := requireKnownAssignee(a, assignedTo); err != nil {
					return err
				}
				sev := a.Config.Defaults.Severity
				if severity != "" {
					var err error
					if sev, err = domain.ParseSeverity(severity); err != nil {
						return err
					}
				}
				ev, err := readEvidence(ctx, evidencePath, nil)
				if err != nil {
					return err
				}
				o, err := a.Store.AddObservation(ctx, store.NewObservation{
					Title:       title,
					Description: description,
					Severity:    sev,
					AssignedTo:  assignedTo,
					Evidence:    ev,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				r.Observation(o)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "observation title")
	cmd.Flags().StringVar(&description, "description", "", "observation description")
	cmd.Flags().StringVar(&severity, "severity", "", "High, Medium or Low (default from config)")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee name")
	cmd.Flags().StringVar(&evidencePath, "evidence", "", "path of an evidence file")
	return cmd
}

type listFlags struct {
	status     string
	severity   string
	assignedTo string
	query      string
}

func (f *listFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.status, "status", "", "status filter")
	fs.StringVar(&f.severity, "severity", "", "severity filter")
	fs.StringVar(&f.assignedTo, "assigned-to", "", "assignee filter")
	fs.StringVarP(&f.query, "query", "q", "", "text search in title and description")
}

func (f listFlags) filter() (store.Filter, error) {
	out := store.Filter{AssignedTo: f.assignedTo, Query: f.query}
	if f.status != "" {
		st, err := domain.ParseStatus(f.status)
		if err != nil {
			return out, err
		}
		out.Status = &st
	}
	if f.severity != "" {
		sev, err := domain.ParseSeverity(f.severity)
		if err != nil {
			return out, err
		}
		out.Severity = &sev
	}
	return out, nil
}

func observationListCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				items := a.Store.List(filter)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				r.Observations(items, len(a.Store.Observations()))
				return nil
			})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func observationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				o, ok := a.Store.Observation(args[0])
				if !ok {
					return store.NotFound.Err(args[0])
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				r.Observation(o)
				return nil
			})
		},
	}
}

func observationEditCmd() *cobra.Command {
	var evidencePath string
	var clearEvidence bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit observation fields; only the flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			fs := cmd.Flags()
			if evidencePath != "" && clearEvidence {
				return errors.New("--evidence and --clear-evidence are mutually exclusive")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				current, ok := a.Store.Observation(id)
				if !ok {
					return store.NotFound.Err(id)
				}
				patch := store.Patch{
					Description:   optionalString(fs, "description"),
					ClearEvidence: clearEvidence,
				}
				if title := optionalString(fs, "title"); title != nil {
					trimmed := strings.TrimSpace(*title)
					if trimmed == "" {
						return errors.New("title must not be empty")
					}
					patch.Title = &trimmed
				}
				if assignee := optionalString(fs, "assigned-to"); assignee != nil {
					trimmed := strings.TrimSpace(*assignee)
					if err := requireKnownAssignee(a, trimmed); err != nil {
						return err
					}
					patch.AssignedTo = &trimmed
				}
				if raw := optionalString(fs, "severity"); raw != nil {
					sev, err := domain.ParseSeverity(*raw)
					if err != nil {
						return err
					}
					patch.Severity = &sev
				}
				if raw := optionalString(fs, "status"); raw != nil {
					st, err := domain.ParseStatus(*raw)
					if err != nil {
						return err
					}
					patch.Status = &st
				}
				if evidencePath != "" {
					ev, err := readEvidence(ctx, evidencePath, current.Evidence)
					if err != nil {
						return err
					}
					patch.Evidence = ev
				}
				res, err := a.Store.UpdateObservation(ctx, id, patch)
				if err != nil {
					return err
				}
				if err := res.Err(id); err != nil {
					return err
				}
				o, _ := a.Store.Observation(id)
				if viper.GetBool("json") {
					return printJSON(o)
				}
				r.Observation(o)
				return nil
			})
		},
	}
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("severity", "", "new severity")
	cmd.Flags().String("status", "", "new status")
	cmd.Flags().String("assigned-to", "", "new assignee")
	cmd.Flags().StringVar(&evidencePath, "evidence", "", "replace evidence with this file")
	cmd.Flags().BoolVar(&clearEvidence, "clear-evidence", false, "remove evidence")
	return cmd
}

func observationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set status: Open, In Progress or Closed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				res, err := a.Store.UpdateObservationStatus(ctx, args[0], st)
				if err != nil {
					return err
				}
				if err := res.Err(args[0]); err != nil {
					return err
				}
				o, _ := a.Store.Observation(args[0])
				if viper.GetBool("json") {
					return printJSON(o)
				}
				fmt.Printf("%s is now %s\n", o.ID, r.StatusBadge(o.Status))
				return nil
			})
		},
	}
}

func observationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				res, err := a.Store.DeleteObservation(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": args[0], "result": res.String()})
				}
				if err := res.Err(args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func assigneeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignee", Short: "Manage assignees"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add an assignee",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				name, err := a.Store.AddAssignee(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"name": name})
				}
				fmt.Printf("added %s\n", name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List assignees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				names := a.Store.Assignees()
				if viper.GetBool("json") {
					return printJSON(names)
				}
				r.Assignees(names)
				return nil
			})
		},
	})
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				st := a.Store.Stats()
				if viper.GetBool("json") {
					return printJSON(st)
				}
				recent := a.Store.List(store.Filter{})
				if len(recent) > recentLimit {
					recent = recent[:recentLimit]
				}
				r.Dashboard(st, recent)
				return nil
			})
		},
	}
}

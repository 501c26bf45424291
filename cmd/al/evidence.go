package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auditline/internal/app"
	"auditline/internal/evidence"
	"auditline/internal/render"
	"auditline/internal/store"
)

func evidenceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "evidence", Short: "Encode and inspect evidence files"}
	cmd.AddCommand(&cobra.Command{
		Use:   "encode <path>",
		Short: "Print the data URI a file would be stored as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := evidence.FromPath(args[0])
			if err != nil {
				return err
			}
			uri, err := evidence.Encode(cmd.Context(), f)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"name":      f.Name(),
					"mediaType": f.ContentType(),
					"kind":      evidence.KindOf(uri).String(),
					"dataUri":   *uri,
				})
			}
			fmt.Println(*uri)
			return nil
		},
	})
	var out string
	inspect := &cobra.Command{
		Use:   "inspect <observation-id>",
		Short: "Describe an observation's evidence, optionally writing it to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, r *render.Renderer) error {
				o, ok := a.Store.Observation(args[0])
				if !ok {
					return store.NotFound.Err(args[0])
				}
				if out != "" {
					if o.Evidence == nil {
						return fmt.Errorf("observation %s has no evidence", o.ID)
					}
					_, data, err := evidence.Decode(*o.Evidence)
					if err != nil {
						return err
					}
					if err := os.WriteFile(out, data, 0o644); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"id":        o.ID,
						"kind":      evidence.KindOf(o.Evidence).String(),
						"mediaType": evidence.MediaType(stringOrEmpty(o.Evidence)),
					})
				}
				r.Evidence(o.Evidence)
				return nil
			})
		},
	}
	inspect.Flags().StringVarP(&out, "out", "o", "", "write the decoded evidence to this file")
	cmd.AddCommand(inspect)
	return cmd
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

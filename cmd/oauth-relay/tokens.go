package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
)

const tokenPreviewLen = 12

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Inspect and remove stored refresh tokens",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored refresh tokens, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.Service.ListTokens(cmd.Context())
		if err != nil {
			return err
		}
		renderTokens(cmd.OutOrStdout(), records)
		return nil
	},
}

var tokensDeleteCmd = &cobra.Command{
	Use:   "delete <sub>",
	Short: "Delete the stored refresh token of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Service.DeleteToken(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	tokensCmd.AddCommand(tokensListCmd, tokensDeleteCmd)
}

func renderTokens(w io.Writer, records []models.RefreshTokenRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no stored tokens")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SUB", "REFRESH TOKEN", "CREATED", "UPDATED"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Subject,
			preview(r.RefreshToken),
			r.CreatedAt.Format(time.RFC3339),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	t.Render()
}

func preview(token string) string {
	if len(token) <= tokenPreviewLen {
		return token
	}
	return token[:tokenPreviewLen] + "…"
}

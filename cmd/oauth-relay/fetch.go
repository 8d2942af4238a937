package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/oauth-relay/pkg/client"
)

var (
	fetchRelayURL   string
	fetchCredential string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <sub>",
	Short: "Ask a running relay for a fresh access token",
	Long: `fetch calls POST /api/refresh on a running relay and prints the access
token. The refresh credential may also be given in OAUTH_RELAY_CREDENTIAL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		credential := fetchCredential
		if credential == "" {
			credential = os.Getenv("OAUTH_RELAY_CREDENTIAL")
		}
		relay := client.New(fetchRelayURL, client.Options{Credential: credential})
		return fetchToken(cmd.Context(), cmd.OutOrStdout(), relay, args[0])
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchRelayURL, "relay", "http://localhost:8080", "base URL of the relay")
	fetchCmd.Flags().StringVar(&fetchCredential, "credential", "", "refresh credential, when the relay requires one")
}

func fetchToken(
	ctx context.Context,
	w io.Writer,
	relay client.Refresher,
	sub string,
) error {
	token, err := relay.Refresh(ctx, sub)
	if err != nil {
		return fmt.Errorf("couldn't refresh %s: %w", sub, err)
	}
	fmt.Fprintln(w, token.Token)
	if !token.Expiry.IsZero() {
		fmt.Fprintf(w, "expires %s\n", token.Expiry.UTC().Format(time.RFC3339))
	}
	return nil
}

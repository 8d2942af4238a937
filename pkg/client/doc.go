// Package client calls a running oauth-relay from backend applications.
//
// A backend that needs a fresh access token for a user asks the relay to
// refresh on its behalf. The relay holds the user's refresh token; the
// backend only ever sees access tokens.
//
// # Quick Start
//
//	import "git.sr.ht/~jakintosh/oauth-relay/pkg/client"
//
//	relay := client.New("https://relay.example.com", client.Options{
//	    Credential: os.Getenv("RELAY_CREDENTIAL"), // only when the relay requires one
//	})
//
//	token, err := relay.Refresh(ctx, "auth0|user-42")
//	if err != nil {
//	    ...
//	}
//	req.Header.Set("Authorization", "Bearer "+token.Token)
//
// # Error Handling
//
// Refresh failures wrap one of the package's sentinel errors:
//
//	switch {
//	case errors.Is(err, client.ErrNoToken):
//	    // the user never logged in through the relay, or was removed
//	case errors.Is(err, client.ErrUnauthorized):
//	    // missing or wrong refresh credential
//	case errors.Is(err, client.ErrTokenRequest):
//	    // relay unreachable, or the provider refused the refresh
//	}
//
// # Administration
//
// ListTokens and DeleteToken use the relay's admin endpoints. Set
// Options.AdminPassword when the relay protects them with Basic auth.
//
// # Testing
//
// Depend on the Refresher interface rather than *Client so tests can supply
// a stub.
package client

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jrsteele09/go-api-client/auth"
	"github.com/jrsteele09/go-api-client/sessions"
	"github.com/spf13/cobra"
)

var loginFlags struct {
	accessToken  string
	refreshToken string
	idToken      string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session from an access and refresh token pair",
	Long: `Start a session from credentials obtained elsewhere, e.g. a browser sign in.

Tokens may also be given as API_CLIENT_ACCESS_TOKEN, API_CLIENT_REFRESH_TOKEN
and API_CLIENT_ID_TOKEN. The session is persisted only when a seal key is
configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := auth.Credentials{
			AccessToken:  flagOrEnv(loginFlags.accessToken, "API_CLIENT_ACCESS_TOKEN"),
			RefreshToken: flagOrEnv(loginFlags.refreshToken, "API_CLIENT_REFRESH_TOKEN"),
			IDToken:      flagOrEnv(loginFlags.idToken, "API_CLIENT_ID_TOKEN"),
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.manager.Login(ctx, creds, sessions.Subject{}); err != nil {
				return err
			}
			rec, _ := a.manager.Current()
			fmt.Printf("Signed in as %s%s%s (profile %s)\n", Cyan, displayName(rec.Subject), ResetColor, profile)
			if !a.store.Sealed() {
				fmt.Printf("%sSession is not persisted: configure session.seal_key%s\n", Yellow, ResetColor)
			}
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.accessToken, "access-token", "", "access token")
	loginCmd.Flags().StringVar(&loginFlags.refreshToken, "refresh-token", "", "refresh token")
	loginCmd.Flags().StringVar(&loginFlags.idToken, "id-token", "", "OpenID Connect ID token")
	rootCmd.AddCommand(loginCmd)
}

func flagOrEnv(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}

func displayName(s sessions.Subject) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Email != "":
		return s.Email
	case s.ID != "":
		return s.ID
	}
	return "anonymous"
}

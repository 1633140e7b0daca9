package cmd

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-api-client/auth"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.session(ctx) {
				fmt.Println("No active session")
				return nil
			}
			if err := a.manager.Logout(ctx, auth.ReasonUser); err != nil {
				return err
			}
			fmt.Printf("Signed out of profile %s\n", profile)
			return nil
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the profiles stored in Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.redis == nil {
				return fmt.Errorf("sessions are only listed from Redis: set session.redis_addr")
			}
			keys, err := a.redis.Keys(ctx)
			if err != nil {
				return err
			}
			for _, k := range keys {
				marker := " "
				if k == profile {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, k)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd, sessionsCmd)
}

// Package cmd provides the commands of the apiclient CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	profile string
	noColor bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "apiclient",
	Short: "Resilient API client",
	Long: `apiclient calls a JSON API through a session aware request pipeline.

Access credentials are attached to every request and refreshed once, with a
single call to the token endpoint, when the server answers 401. Network
failures and configured statuses are retried with exponential backoff and
successful reads are cached.

Configuration:
  Loaded from the file given by --config, with API_CLIENT_* environment
  overrides. Example: API_CLIENT_API_BASE_URL=https://api.example.com

Commands:
  login     Store a session from an access and refresh token pair
  get       GET a path and print the response
  send      Send a JSON body with POST, PUT, PATCH or DELETE
  logout    End the stored session
  sessions  List the profiles stored in Redis
  version   Print version information`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !quiet {
			displayAppname(cmd.Root().Name())
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "session profile to use")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the banner")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

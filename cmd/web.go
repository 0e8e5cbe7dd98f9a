package cmd

import (
	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/server"
	"github.com/sw33tLie/jobscope/internal/utils"
)

// webCmd represents the web command
var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve stored results over a JSON API",
	Long: `Start a web server exposing stored results, tier stats and settings.
Use "jobscope watch --listen" to also trigger passes over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		// Auth
		user, _ := cmd.Flags().GetString("username")
		pass, _ := cmd.Flags().GetString("password")
		addr, _ := cmd.Flags().GetString("bind")

		if user == "" || pass == "" {
			utils.Log.Warn("No basic auth credentials set; the API is open to anyone who can reach it")
		}
		srv := server.New(a.db, user, pass)
		return srv.Start(addr)
	},
}

func init() {
	rootCmd.AddCommand(webCmd)

	webCmd.Flags().StringP("bind", "b", ":9999", "Address to bind the server to")
	webCmd.Flags().StringP("username", "u", "", "Username for basic auth (optional)")
	webCmd.Flags().StringP("password", "p", "", "Password for basic auth (optional)")
}

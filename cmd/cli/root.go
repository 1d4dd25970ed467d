// Package cli implements keyctl, the administration tool of the realmkeys server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	adminToken string
	realm      string
)

// rootCmd represents the base command when the `keyctl` binary is called without any subcommands.
// rootCmd 代表在没有任何子命令的情况下调用 `keyctl` 二进制文件时的基本命令。
var rootCmd = &cobra.Command{
	Use:   "keyctl",
	Short: "A CLI tool for administering realm signing keys.",
	Long: `keyctl manages the signing keys of a realmkeys server: it lists, creates and
removes key records through the admin API, and prepares key material and user
password hashes for the server configuration.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("REALMKEYS_SERVER", "http://localhost:8080"), "Base URL of the realmkeys server")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("REALMKEYS_ADMIN_TOKEN"), "Admin bearer token")
}

// Execute is the main entry point for the CLI application.
// If an error occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。如果发生错误，它会打印错误并退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

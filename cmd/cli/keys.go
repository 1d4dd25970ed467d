package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/turtacn/realmkeys/internal/application/dto"
)

// keysCmd represents the root command for key record management.
// keysCmd 代表密钥记录管理的根命令。
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the signing keys of a realm",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if realm == "" {
			return fmt.Errorf("--realm is required")
		}
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List key records, highest priority first",
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := newAdminClient(serverURL, adminToken).ListKeys(cmd.Context(), realm)
		if err != nil {
			return err
		}
		printKeys(meta)
		return nil
	},
}

var keysActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active key per algorithm",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := newAdminClient(serverURL, adminToken).ActiveKeys(cmd.Context(), realm)
		if err != nil {
			return err
		}
		algs := make([]string, 0, len(active))
		for alg := range active {
			algs = append(algs, alg)
		}
		sort.Strings(algs)
		for _, alg := range algs {
			fmt.Printf("%s\t%s\n", alg, active[alg])
		}
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a key record from a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		name, _ := cmd.Flags().GetString("name")
		keySize, _ := cmd.Flags().GetInt("key-size")
		disabled, _ := cmd.Flags().GetBool("disabled")
		pemFile, _ := cmd.Flags().GetString("private-key")

		req := &dto.CreateKeyRequest{ProviderID: provider, Name: name, KeySize: keySize, Disabled: disabled}
		if cmd.Flags().Changed("priority") {
			priority, _ := cmd.Flags().GetInt64("priority")
			req.Priority = &priority
		}
		if pemFile != "" {
			raw, err := os.ReadFile(pemFile)
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			req.PrivateKeyPEM = string(raw)
		}

		kid, err := newAdminClient(serverURL, adminToken).CreateKey(cmd.Context(), realm, req)
		if err != nil {
			return err
		}
		fmt.Println(kid)
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <kid>",
	Short: "Remove a key record; tokens it signed stop verifying immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient(serverURL, adminToken).DeleteKey(cmd.Context(), realm, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed key %s\n", args[0])
		return nil
	},
}

func printKeys(meta *dto.KeysMetadata) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KID\tPROVIDER\tALG\tPRIORITY\tSTATUS\tACTIVE\tCREATED")
	for _, k := range meta.Keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\t%s\n",
			k.ID, k.ProviderID, k.Algorithm, k.Priority, k.Status, k.Active, k.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	_ = w.Flush()
}

func init() {
	keysCmd.PersistentFlags().StringVar(&realm, "realm", "", "Realm (tenant) identifier")

	keysCreateCmd.Flags().String("provider", "rsa-generated", "Provider: rsa-generated, rsa or ecdsa-generated")
	keysCreateCmd.Flags().String("name", "", "Display name")
	keysCreateCmd.Flags().Int64("priority", 0, "Priority; the highest enabled priority becomes active")
	keysCreateCmd.Flags().Int("key-size", 0, "RSA key size for rsa-generated")
	keysCreateCmd.Flags().Bool("disabled", false, "Create the record disabled")
	keysCreateCmd.Flags().String("private-key", "", "PEM file to import with the rsa provider")

	keysCmd.AddCommand(keysListCmd, keysActiveCmd, keysCreateCmd, keysDeleteCmd)
	rootCmd.AddCommand(keysCmd)
}

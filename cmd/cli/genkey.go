package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/infrastructure/auth"
	"github.com/turtacn/realmkeys/internal/infrastructure/keyprovider"
)

// genkeyCmd writes a fresh private key in PEM form, ready for `keys create --provider rsa`.
var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a PEM encoded signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		alg, _ := cmd.Flags().GetString("alg")
		bits, _ := cmd.Flags().GetInt("bits")
		out, _ := cmd.Flags().GetString("out")

		var material *models.KeyMaterial
		var err error
		switch alg {
		case "RS256":
			material, err = keyprovider.NewRSAGeneratedProvider().Generate(cmd.Context(), models.KeySpec{Bits: bits})
		case "ES256":
			material, err = keyprovider.NewECDSAGeneratedProvider().Generate(cmd.Context(), models.KeySpec{})
		default:
			return fmt.Errorf("unsupported algorithm %q", alg)
		}
		if err != nil {
			return err
		}

		if out == "" {
			fmt.Print(material.PrivateKeyPEM)
			return nil
		}
		return os.WriteFile(out, []byte(material.PrivateKeyPEM), 0o600)
	},
}

// hashPasswordCmd prints a bcrypt hash for the users section of the server config.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for a configured user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	genkeyCmd.Flags().String("alg", "RS256", "Algorithm: RS256 or ES256")
	genkeyCmd.Flags().Int("bits", 2048, "RSA key size")
	genkeyCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(genkeyCmd, hashPasswordCmd)
}

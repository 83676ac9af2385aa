package cli

import (
	"errors"
	"fmt"

	"anniv-certificate-service/internal/app"

	"github.com/spf13/cobra"
)

// NewHashPasswordCmd prints the bcrypt hash for admin.password_hash.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of an admin password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("password is empty")
			}
			hash, err := app.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

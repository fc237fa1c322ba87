package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address <passphrase>",
	Short: "Print the address a passphrase controls",
	Long:  "Derive the Jupiter address of a passphrase, locally or through --jupiter-host.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddress,
}

func init() {
	rootCmd.AddCommand(addressCmd)
}

func runAddress(cmd *cobra.Command, args []string) error {
	addr, err := newDeriver().Derive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/jgit"
)

var listCmd = &cobra.Command{
	Use:   "list <address>",
	Short: "List repository snapshots of an address",
	Long:  "List the snapshot blobs stored for an address in the configured blob store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	addr, ok := jgit.CanonicalAddress(args[0])
	if !ok {
		return fmt.Errorf("invalid address %q", args[0])
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}

	blobs, err := store.List(cmd.Context(), jgit.Tenant{Address: addr})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, b := range blobs {
		fmt.Fprintf(out, "%s\t%d\n", b.Name, b.Size)
	}
	if len(blobs) == 0 {
		fmt.Fprintln(out, "(no snapshots)")
	}
	return nil
}

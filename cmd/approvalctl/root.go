package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

// errRejected makes the process exit non-zero after the result was printed.
var errRejected = errors.New("rejected")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Inspect document filenames, versions and drift",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newParseCmd(),
		newResolveCmd(),
		newValidateCmd(),
		newAuditCmd(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

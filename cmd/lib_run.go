package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"
)

// Exit terminates the process. The debug log file is closed here because
// PersistentPostRunE never runs once os.Exit is on the stack.
func Exit(code int) {
	if logDebugFile != nil {
		logDebugFile.Close()
		logDebugFile = nil
	}
	os.Exit(code)
}

// GetRunFn adapts an error returning command body to cobra's Run
// signature: failures are logged and become a non-zero exit.
func GetRunFn(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd, args); err != nil {
			logger := log.MustLogger(cmd.Context())
			logger.Error("Failed", "err", err)
			Exit(1)
		}
	}
}

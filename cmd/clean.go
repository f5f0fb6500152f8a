package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/grblmini/gms/gcode"
)

var CleanCmd = &cobra.Command{
	Use:   "clean path",
	Short: "Strip comments and spaces from a g-code file.",
	Long:  "Reads g-code from path and writes it back out the way it goes over the wire: comments and whitespace removed, letters upper-cased, lines with nothing left dropped.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"path", path,
			"output", outputValue,
		)
		cmd.SetContext(ctx)

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, f.Close()) }()

		w, err := outputValue.WriteCloser()
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, w.Close()) }()

		retained, err := gcode.Sanitize(f, w)
		if err != nil {
			return err
		}
		logger.Info("Cleaned", "lines", retained)
		return nil
	}),
}

func init() {
	AddOutputFlags(CleanCmd)
	RootCmd.AddCommand(CleanCmd)
}

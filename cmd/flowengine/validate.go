package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/loader"
	"github.com/JineeshTS/GanakysPortal-sub004/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check process definition files without storing them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, err := validation.NewProcessValidator()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		def, err := loader.LoadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}
		res := v.Validate(def)
		for _, issue := range res.Errors {
			fmt.Fprintf(out, "%s: error %s\n", path, issue)
		}
		for _, issue := range res.Warnings {
			fmt.Fprintf(out, "%s: warning %s\n", path, issue)
		}
		if !res.Valid() {
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(args))
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/loader"
)

var defineActor string

var defineCmd = &cobra.Command{
	Use:   "define <file>...",
	Short: "Register process definitions from YAML or JSON files",
	Long: `Register each file as a new definition version. A file whose content matches
the latest stored version of the same name is skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDefine,
}

func init() {
	defineCmd.Flags().StringVar(&defineActor, "actor", "cli", "actor recorded as the definition author")
	rootCmd.AddCommand(defineCmd)
}

func runDefine(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, path := range args {
		def, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		if latest, err := a.engine.LatestDefinition(ctx, def.Name); err == nil && loader.SameContent(latest, def) {
			fmt.Fprintf(out, "%s: unchanged (%s v%d)\n", path, latest.Name, latest.Version)
			continue
		}
		res, err := a.engine.DefineProcess(ctx, def, defineActor)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: registered %s v%d (%s)\n", path, res.Definition.Name, res.Definition.Version, res.Definition.ID)
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	return nil
}

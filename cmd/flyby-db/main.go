// Command flyby-db inspects and edits the flyby transponder database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/flyby/internal/config"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close(ctx)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return exitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	var opts config.LoadOptions

	cmd := &cobra.Command{
		Use:   "flyby-db",
		Short: "Inspect and edit the flyby transponder database",
		Long: `flyby-db reads the transponder database from the user data directory
($XDG_DATA_HOME/flyby/flyby.db) and the system data directories
($XDG_DATA_DIRS/flyby/flyby.db), matched against the TLE database.

Edits are written back to the user file only; system files are never
modified. Entries equal to the system data are left out of the user file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := a.setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default $XDG_CONFIG_HOME/flyby/flyby-db.{toml,yaml})")

	cmd.AddCommand(
		newPathsCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newSetCmd(a),
		newRestoreCmd(a),
		newExportCmd(a),
		newSquintCmd(a),
		newSaveCmd(a),
	)
	return cmd
}

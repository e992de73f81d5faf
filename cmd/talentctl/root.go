package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	actorID int64
	admin   bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "talentctl",
		Short:         "Talent profile tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Int64Var(&g.actorID, "actor", 0, "Acting subject id")
	cmd.PersistentFlags().BoolVar(&g.admin, "admin", false, "Act with the admin override")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newTenureCmd(g))
	cmd.AddCommand(newCheckInCmd(g))
	cmd.AddCommand(newSnapshotCmd(g))
	cmd.AddCommand(newOutboxCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

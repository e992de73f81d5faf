package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/services"
)

func newCheckInCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkin",
		Aliases: []string{"check-in"},
		Short:   "Check-in completion workflow",
	}
	cmd.AddCommand(newCheckInOpenCmd())
	cmd.AddCommand(newCheckInSideCmd(g, "complete", "Mark one side complete"))
	cmd.AddCommand(newCheckInSideCmd(g, "uncheck", "Clear one side's completion"))
	cmd.AddCommand(newCheckInFinalizeCmd(g))
	return cmd
}

func newCheckInOpenCmd() *cobra.Command {
	var (
		kind               string
		subjectID, scopeID int64
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Find or create the open check-in for a scope, or list open check-ins",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if kind == "" {
				open, err := rt.checkIns().ListOpen(rt.ctx, subjectID)
				if err != nil {
					return err
				}
				return writeJSON(open)
			}
			k := checkin.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("invalid --kind %q (expected position|assignment|aspiration)", kind)
			}
			c, err := rt.checkIns().Open(rt.ctx, k, subjectID, scopeID)
			if err != nil {
				return err
			}
			return writeJSON(c)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "position|assignment|aspiration; empty lists open check-ins")
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&scopeID, "scope", 0, "Position tenure, assignment or aspiration id")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newCheckInSideCmd(g *globalFlags, use, short string) *cobra.Command {
	var (
		id   int64
		side string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			if side != "employee" && side != "manager" {
				return fmt.Errorf("invalid --side %q (expected employee|manager)", side)
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			svc := rt.checkIns()
			var out any
			switch {
			case use == "complete" && side == "employee":
				out, err = svc.CompleteEmployeeSide(rt.ctx, id, actor)
			case use == "complete":
				out, err = svc.CompleteManagerSide(rt.ctx, id, actor)
			case side == "employee":
				out, err = svc.UncheckEmployeeSide(rt.ctx, id, actor)
			default:
				out, err = svc.UncheckManagerSide(rt.ctx, id, actor)
			}
			if err != nil {
				return err
			}
			return writeJSON(out)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Check-in id (required)")
	cmd.Flags().StringVar(&side, "side", "employee", "employee|manager")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newCheckInFinalizeCmd(g *globalFlags) *cobra.Command {
	var (
		in             services.FinalizeCheckInInput
		rating, shared string
	)
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Record the official rating and finalize",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rating") {
				in.OfficialRating = &rating
			}
			if cmd.Flags().Changed("shared-notes") {
				in.SharedNotes = &shared
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			c, err := rt.checkIns().Finalize(rt.ctx, in, actor)
			if err != nil {
				return err
			}
			return writeJSON(c)
		},
	}
	cmd.Flags().Int64Var(&in.CheckInID, "id", 0, "Check-in id (required)")
	cmd.Flags().StringVar(&rating, "rating", "", "Official rating")
	cmd.Flags().StringVar(&shared, "shared-notes", "", "Notes shared with the subject")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

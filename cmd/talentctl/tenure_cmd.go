package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-talent/modules/talent/services"
	"github.com/iota-uz/iota-talent/pkg/optional"
)

func newTenureCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenure",
		Short: "Assignment and employment tenure transitions",
	}
	cmd.AddCommand(newTenureAssignmentCmd(g))
	cmd.AddCommand(newTenureEmploymentCmd(g))
	cmd.AddCommand(newTenureTerminateCmd(g))
	cmd.AddCommand(newTenureListCmd())
	return cmd
}

func newTenureAssignmentCmd(g *globalFlags) *cobra.Command {
	var in services.UpdateAssignmentTenureInput
	cmd := &cobra.Command{
		Use:   "assignment",
		Short: "Set the anticipated energy of an assignment tenure",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			if _, err := parseDateUTC(in.StartDate); err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.tenures().UpdateAssignmentTenure(rt.ctx, in, actor)
			if err != nil {
				return err
			}
			return writeJSON(res)
		},
	}
	cmd.Flags().Int64Var(&in.SubjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&in.AssignmentID, "assignment", 0, "Assignment id (required)")
	cmd.Flags().IntVar(&in.EnergyPercentage, "energy", 0, "Anticipated energy percentage, 0 ends the tenure")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "Start date (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("assignment")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newTenureEmploymentCmd(g *globalFlags) *cobra.Command {
	var (
		subjectID, companyID   int64
		positionID, managerID  int64
		seatID                 int64
		clearSeat              bool
		employmentType         string
		startDate, terminateOn string
	)
	cmd := &cobra.Command{
		Use:   "employment",
		Short: "Hire, move or update the seat of an employment tenure",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			in := services.UpdateEmploymentTenureInput{SubjectID: subjectID, CompanyID: companyID}
			if cmd.Flags().Changed("position") {
				in.PositionID = &positionID
			}
			if cmd.Flags().Changed("manager") {
				in.ManagerID = &managerID
			}
			if cmd.Flags().Changed("type") {
				in.EmploymentType = &employmentType
			}
			switch {
			case clearSeat:
				in.SeatID = optional.Null[int64]()
			case cmd.Flags().Changed("seat"):
				in.SeatID = optional.Of(seatID)
			}
			if in.StartDate, err = optionalDate(startDate); err != nil {
				return err
			}
			if in.TerminationDate, err = optionalDate(terminateOn); err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.tenures().UpdateEmploymentTenure(rt.ctx, in, actor)
			if err != nil {
				return err
			}
			return writeJSON(res)
		},
	}
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&companyID, "company", 0, "Company id (required)")
	cmd.Flags().Int64Var(&positionID, "position", 0, "Position id")
	cmd.Flags().Int64Var(&managerID, "manager", 0, "Manager subject id")
	cmd.Flags().Int64Var(&seatID, "seat", 0, "Seat id")
	cmd.Flags().BoolVar(&clearSeat, "clear-seat", false, "Remove the seat")
	cmd.Flags().StringVar(&employmentType, "type", "", "Employment type")
	cmd.Flags().StringVar(&startDate, "start", "", "Hire date when no tenure is active (YYYY-MM-DD)")
	cmd.Flags().StringVar(&terminateOn, "terminate", "", "Termination date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("company")
	cmd.MarkFlagsMutuallyExclusive("seat", "clear-seat")
	return cmd
}

func newTenureTerminateCmd(g *globalFlags) *cobra.Command {
	var in services.TerminateEmploymentInput
	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "End the active employment tenure and stamp the termination marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			if _, err := parseDateUTC(in.Date); err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.tenures().TerminateEmployment(rt.ctx, in, actor)
			if err != nil {
				return err
			}
			return writeJSON(res)
		},
	}
	cmd.Flags().Int64Var(&in.SubjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&in.CompanyID, "company", 0, "Company id (required)")
	cmd.Flags().Int64Var(&in.TenureID, "tenure", 0, "Expected active tenure id")
	cmd.Flags().StringVar(&in.Date, "date", "", "Termination date (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

type tenureHistory struct {
	Assignments      any `json:"assignments"`
	Employment       any `json:"employment,omitempty"`
	LastTerminatedAt any `json:"last_terminated_at,omitempty"`
}

func newTenureListCmd() *cobra.Command {
	var subjectID, companyID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a subject's tenure history",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			svc := rt.tenures()
			var out tenureHistory
			if out.Assignments, err = svc.ListAssignmentTenures(rt.ctx, subjectID); err != nil {
				return err
			}
			if companyID > 0 {
				if out.Employment, err = svc.ListEmploymentTenures(rt.ctx, subjectID, companyID); err != nil {
					return err
				}
			}
			last, err := svc.LastTerminatedAt(rt.ctx, subjectID)
			if err != nil {
				return err
			}
			if last != nil {
				out.LastTerminatedAt = last.Format("2006-01-02")
			}
			return writeJSON(out)
		},
	}
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&companyID, "company", 0, "Company id for employment history")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

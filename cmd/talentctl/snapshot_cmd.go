package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/services"
)

func newSnapshotCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Create, inspect, diff and execute profile snapshots",
	}
	cmd.AddCommand(newSnapshotCreateCmd(g))
	cmd.AddCommand(newSnapshotShowCmd())
	cmd.AddCommand(newSnapshotDiffCmd())
	cmd.AddCommand(newSnapshotExecuteCmd(g))
	cmd.AddCommand(newSnapshotAmendCmd(g))
	cmd.AddCommand(newSnapshotEffectiveDateCmd())
	cmd.AddCommand(newSnapshotAcknowledgeCmd(g))
	return cmd
}

func newSnapshotCreateCmd(g *globalFlags) *cobra.Command {
	var (
		in                 services.CreateSnapshotInput
		statePath, effDate string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Append a snapshot from a proposed-state JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			if err := readJSONFile(statePath, &in.ProposedState); err != nil {
				return err
			}
			if in.EffectiveDate, err = optionalDate(effDate); err != nil {
				return err
			}
			in.CreatorID = actor.ID

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, err := rt.snapshots().Create(rt.ctx, in)
			if err != nil {
				return err
			}
			return writeJSON(snap)
		},
	}
	cmd.Flags().Int64Var(&in.SubjectID, "subject", 0, "Subject id (required)")
	cmd.Flags().Int64Var(&in.CompanyID, "company", 0, "Company id (required)")
	cmd.Flags().StringVar(&in.ChangeType, "change-type", string(snapshot.ChangeTypeBulk), "Change type")
	cmd.Flags().StringVar(&in.Reason, "reason", "", "Reason; generated when empty")
	cmd.Flags().StringVar(&statePath, "state", "", "Proposed state JSON file (required)")
	cmd.Flags().StringVar(&effDate, "effective-date", "", "Effective date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newSnapshotShowCmd() *cobra.Command {
	var (
		id, subjectID, companyID int64
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one snapshot, or a subject's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 && (subjectID == 0 || companyID == 0) {
				return errors.New("either --id or --subject with --company is required")
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if id > 0 {
				snap, err := rt.snapshots().GetByID(rt.ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(snap)
			}
			list, err := rt.snapshots().ListBySubject(rt.ctx, subjectID, companyID)
			if err != nil {
				return err
			}
			return writeJSON(list)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id")
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "Subject id")
	cmd.Flags().Int64Var(&companyID, "company", 0, "Company id")
	return cmd
}

type diffOutput struct {
	SnapshotID int64                 `json:"snapshot_id,omitempty"`
	PreviousID int64                 `json:"previous_id,omitempty"`
	Counts     services.Counts       `json:"counts"`
	Report     services.ChangeReport `json:"report"`
	RawPatch   any                   `json:"raw_patch,omitempty"`
}

func newSnapshotDiffCmd() *cobra.Command {
	var (
		id                    int64
		currentPath, prevPath string
		raw                   bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff a stored snapshot against its predecessor, or two state files offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if currentPath != "" {
				return diffFiles(currentPath, prevPath, raw)
			}
			if id == 0 {
				return errors.New("either --id or --current is required")
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, report, err := rt.snapshots().DiffWithPrevious(rt.ctx, id)
			if err != nil {
				return err
			}
			out := diffOutput{SnapshotID: snap.ID, Counts: report.Counts(), Report: report}
			prev, err := rt.snapshots().FindPrevious(rt.ctx, snap)
			if err != nil {
				return err
			}
			if prev != nil {
				out.PreviousID = prev.ID
			}
			if raw {
				detector := rt.app.Service(services.ChangeDetector{}).(*services.ChangeDetector)
				if out.RawPatch, err = detector.RawPatch(snap, prev); err != nil {
					return err
				}
			}
			return writeJSON(out)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id")
	cmd.Flags().StringVar(&currentPath, "current", "", "Current proposed-state JSON file (offline mode)")
	cmd.Flags().StringVar(&prevPath, "previous", "", "Previous proposed-state JSON file; omitted means first snapshot")
	cmd.Flags().BoolVar(&raw, "raw", false, "Include the RFC 6902 patch between the states")
	cmd.MarkFlagsMutuallyExclusive("id", "current")
	return cmd
}

func diffFiles(currentPath, prevPath string, raw bool) error {
	current := &snapshot.Snapshot{}
	if err := readJSONFile(currentPath, &current.ProposedState); err != nil {
		return err
	}
	var previous *snapshot.Snapshot
	if prevPath != "" {
		previous = &snapshot.Snapshot{}
		if err := readJSONFile(prevPath, &previous.ProposedState); err != nil {
			return err
		}
	}
	report := services.Diff(current, previous)
	out := diffOutput{Counts: report.Counts(), Report: report}
	if raw {
		patch, err := services.NewChangeDetector(services.Options{}).RawPatch(current, previous)
		if err != nil {
			return err
		}
		out.RawPatch = patch
	}
	return writeJSON(out)
}

func newSnapshotExecuteCmd(g *globalFlags) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Apply a snapshot to the live profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, err := rt.snapshots().GetByID(rt.ctx, id)
			if err != nil {
				return err
			}
			res, err := rt.engine().ExecuteWithResult(rt.ctx, snap, actor, nil)
			if writeErr := writeJSON(res); writeErr != nil {
				return writeErr
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("snapshot %d was not fully applied: %d entry errors", id, len(res.EntryErrors))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSnapshotAmendCmd(g *globalFlags) *cobra.Command {
	var (
		id        int64
		patchPath string
	)
	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Apply an RFC 6902 patch to an unexecuted snapshot's proposed state",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			patch, err := os.ReadFile(patchPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, err := rt.snapshots().Amend(rt.ctx, id, patch, actor)
			if err != nil {
				return err
			}
			return writeJSON(snap)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id (required)")
	cmd.Flags().StringVar(&patchPath, "patch", "", "JSON patch file (required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

func newSnapshotEffectiveDateCmd() *cobra.Command {
	var (
		id   int64
		date string
	)
	cmd := &cobra.Command{
		Use:   "effective-date",
		Short: "Set the date an unexecuted snapshot takes effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseDateUTC(date); err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, err := rt.snapshots().SetEffectiveDate(rt.ctx, id, date)
			if err != nil {
				return err
			}
			return writeJSON(snap)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id (required)")
	cmd.Flags().StringVar(&date, "date", "", "Effective date (YYYY-MM-DD, required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSnapshotAcknowledgeCmd(g *globalFlags) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge a snapshot as its subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actor()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			snap, err := rt.snapshots().Acknowledge(rt.ctx, id, actor)
			if err != nil {
				return err
			}
			return writeJSON(snap)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

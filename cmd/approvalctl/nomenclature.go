package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"approval-tracker/internal/domain"
	"approval-tracker/internal/nomenclature"
)

func newParseCmd() *cobra.Command {
	var expected nomenclature.Context
	var project, docType, stage string

	cmd := &cobra.Command{
		Use:   "parse <filename>",
		Short: "Parse a structured filename and list every rule it breaks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected.Project = domain.Project(project)
			expected.DocType = domain.DocType(docType)
			expected.Stage = domain.WorkflowState(stage)
			if expected.Stage != "" && !expected.Stage.IsValid() {
				return fmt.Errorf("unknown stage %q", stage)
			}

			res := nomenclature.ParseWithContext(args[0], expected)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "expected project (HPC or HSR)")
	cmd.Flags().StringVar(&expected.Microprocess, "microprocess", "", "expected microprocess")
	cmd.Flags().StringVar(&docType, "doc-type", "", "expected document type (AS_IS, TO_BE, FCE, PM)")
	cmd.Flags().StringVar(&stage, "stage", "", "expected workflow state of the encoded version")
	return cmd
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <version>",
		Short: "Show the state and progress a version string implies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := nomenclature.Resolve(args[0])
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"version":   nomenclature.FormatForDisplay(args[0]),
				"state":     res.State,
				"progress":  res.Progress,
				"submitter": nomenclature.SubmitterFor(args[0]),
			})
		},
	}
}

func newValidateCmd() *cobra.Command {
	var currentVersion, currentState, action string

	cmd := &cobra.Command{
		Use:   "validate <filename>",
		Short: "Check a reviewed file against the rules for a reviewer decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok := domain.ParseWorkflowState(currentState)
			if !ok {
				return fmt.Errorf("unknown state %q", currentState)
			}
			res := nomenclature.ValidateTransitionVersion(args[0], currentVersion, state, domain.Action(action))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&currentVersion, "current-version", "", "version currently stored on the document")
	cmd.Flags().StringVar(&currentState, "current-state", "", "state currently stored on the document")
	cmd.Flags().StringVar(&action, "action", string(domain.ActionApprove), "APPROVE or REJECT")
	_ = cmd.MarkFlagRequired("current-state")
	return cmd
}

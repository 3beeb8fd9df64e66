package main

import (
	"fmt"
	"time"

	"formflow/internal/config"
	"formflow/internal/events"
	"formflow/internal/repository"
	"formflow/internal/service"

	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Delete duplicate submissions, keeping the oldest of each group",
	RunE: func(cmd *cobra.Command, args []string) error {
		formSlug, err := cmd.Flags().GetString("form")
		if err != nil {
			return err
		}

		cfg, db, zapLogger, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		chain, err := config.LoadWorkflowChain(cfg.WorkflowFile)
		if err != nil {
			return err
		}

		txManager := repository.NewTransactionManager(db)
		userRepo := repository.NewUserRepository(db)
		formRepo := repository.NewFormRepository(db)
		submissionRepo := repository.NewSubmissionRepository(db)
		workflowRepo := repository.NewWorkflowRepository(db)
		auditRepo := repository.NewAuditRepository(db)

		formService := service.NewFormService(formRepo)
		workflowService := service.NewWorkflowService(submissionRepo, workflowRepo, userRepo, formRepo, formService, auditRepo, txManager, chain, events.Nop(), zapLogger)
		submissionService := service.NewSubmissionService(db, submissionRepo, userRepo, formRepo, workflowRepo, formService, workflowService, auditRepo, txManager, events.Nop(), zapLogger)

		start := time.Now()
		report, err := submissionService.Dedupe(cmd.Context(), service.Caller{}, formSlug)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Duplicate groups: %d, deleted: %d (%s)\n", report.Groups, report.Deleted, time.Since(start).Round(time.Millisecond))
		for _, id := range report.DeletedIDs {
			fmt.Fprintln(cmd.OutOrStdout(), "  deleted", id)
		}
		return nil
	},
}

func init() {
	dedupeCmd.Flags().String("form", "", "restrict to one form slug")
	rootCmd.AddCommand(dedupeCmd)
}

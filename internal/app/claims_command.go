package app

import (
	"errors"
	"strings"

	"github.com/ggonzalez94/distr-cli/internal/claim"
	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/store"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newClaimsCommand() *cobra.Command {
	root := &cobra.Command{Use: "claims", Short: "Claim history commands"}

	var status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded claim attempts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status = strings.ToLower(strings.TrimSpace(status))
			if status != "" && !validClaimStatus(status) {
				return clierr.New(clierr.CodeUsage, "--status must be one of pending, confirmed, failed, rejected, unknown")
			}
			if limit < 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be >= 0")
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			records, err := s.store.ListClaims(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list claims", err)
			}
			if records == nil {
				records = []claim.Record{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil, viewBypass())
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")

	var claimID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show one recorded claim attempt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(claimID) == "" {
				return clierr.New(clierr.CodeUsage, "--claim-id is required")
			}
			if err := s.ensureStore(); err != nil {
				return err
			}
			record, err := s.store.GetClaim(strings.TrimSpace(claimID))
			if err != nil {
				if errors.Is(err, store.ErrClaimNotFound) {
					return clierr.Wrap(clierr.CodeUsage, "unknown claim", err)
				}
				return clierr.Wrap(clierr.CodeInternal, "read claim", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record, nil, viewBypass())
		},
	}
	statusCmd.Flags().StringVar(&claimID, "claim-id", "", "Claim identifier")

	root.AddCommand(listCmd, statusCmd)
	return root
}

func validClaimStatus(status string) bool {
	switch claim.Status(status) {
	case claim.StatusPending, claim.StatusConfirmed, claim.StatusFailed, claim.StatusRejected, claim.StatusUnknown:
		return true
	}
	return false
}

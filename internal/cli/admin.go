// File: internal/cli/admin.go
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ruther77/MassaCorp-sub001/internal/app"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

func newLockoutCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lockout",
		Short: "Manage account lockouts",
	}

	var tenant, email string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Lift the lockout of one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			return a.withApp(cmd.Context(), func(container *app.App) error {
				if err := container.Sessions.ResetLockout(cmd.Context(), email, tenantID, uuid.Nil); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "lockout reset for %s\n", models.NormalizeEmail(email))
				return nil
			})
		},
	}
	reset.Flags().StringVar(&tenant, "tenant", "", "tenant ID")
	reset.Flags().StringVar(&email, "email", "", "account email")
	_ = reset.MarkFlagRequired("tenant")
	_ = reset.MarkFlagRequired("email")

	cmd.AddCommand(reset)
	return cmd
}

func newSessionsCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage user sessions",
	}

	var tenant, user string
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every session and refresh token of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			userID, err := parseUUIDFlag("user", user)
			if err != nil {
				return err
			}
			return a.withApp(cmd.Context(), func(container *app.App) error {
				n, err := revokeAllSessions(cmd.Context(), container, tenantID, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "revoked %d sessions\n", n)
				return nil
			})
		},
	}
	revokeAll.Flags().StringVar(&tenant, "tenant", "", "tenant ID")
	revokeAll.Flags().StringVar(&user, "user", "", "user ID")
	_ = revokeAll.MarkFlagRequired("tenant")
	_ = revokeAll.MarkFlagRequired("user")

	cmd.AddCommand(revokeAll)
	return cmd
}

// revokeAllSessions terminates the sessions and records the administrative
// action in one transaction.
func revokeAllSessions(ctx context.Context, container *app.App, tenantID, userID uuid.UUID) (int, error) {
	var n int
	err := container.Repos.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = container.Sessions.TerminateAllSessions(ctx, tenantID, userID, nil, models.RevokeReasonAdmin)
		if err != nil {
			return err
		}
		return container.Audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventSessionTerminated,
			Severity:  models.AuditSeverityWarning,
			UserID:    &userID,
			TenantID:  tenantID,
			Success:   true,
			Metadata:  mustJSON(map[string]interface{}{"revoked": n, "reason": models.RevokeReasonAdmin}),
		})
	})
	return n, err
}

func parseUUIDFlag(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/internal/service"
	"github.com/noah-isme/cms-api/pkg/config"
)

var tokenOpts struct {
	id         string
	email      string
	name       string
	department string
	roles      []string
	ttl        time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Access token utilities",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign an access token with JWT_SECRET",
	Long: `Signs a token the API accepts, for local testing and smoke checks.
Production tokens come from the SSO server.`,
	Example: "  cmsctl token issue --id E100 --role ADMIN --role NOTICE_MANAGER --ttl 1h",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if len(cfg.JWT.Secret) < config.MinJWTSecretLength {
			return &config.ConfigurationError{Invalid: []string{
				fmt.Sprintf("JWT_SECRET must be at least %d characters", config.MinJWTSecretLength),
			}}
		}

		roles := make(models.RoleSet, 0, len(tokenOpts.roles))
		for _, raw := range tokenOpts.roles {
			role := models.Role(strings.ToUpper(strings.TrimSpace(raw)))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", raw)
			}
			roles = append(roles, role)
		}

		tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
		token, expiresAt, err := tokens.Issue(models.Identity{
			ID:           tokenOpts.id,
			Email:        tokenOpts.email,
			Name:         tokenOpts.name,
			DepartmentID: tokenOpts.department,
			Roles:        roles,
		}, tokenOpts.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	flags := tokenIssueCmd.Flags()
	flags.StringVar(&tokenOpts.id, "id", "", "employee id (token subject)")
	flags.StringVar(&tokenOpts.email, "email", "", "email claim")
	flags.StringVar(&tokenOpts.name, "name", "", "name claim")
	flags.StringVar(&tokenOpts.department, "department", "", "departmentId claim")
	flags.StringArrayVar(&tokenOpts.roles, "role", nil, "role claim, repeatable")
	flags.DurationVar(&tokenOpts.ttl, "ttl", 0, "token lifetime (default JWT_EXPIRES_IN)")
	_ = tokenIssueCmd.MarkFlagRequired("id")
	tokenCmd.AddCommand(tokenIssueCmd)
}

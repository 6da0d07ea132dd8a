package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrex/teleconsult/internal/auth"
	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/types"
)

var knownRoles = map[types.UserRole]bool{
	types.RolePatient:       true,
	types.RoleDoctor:        true,
	types.RoleHospital:      true,
	types.RoleAdministrator: true,
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a platform token for local testing",
		Long:  "Signs a bearer token with the configured JWT secret and issuer, for calling the API without the frontend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return err
			}
			return runToken(cmd, cfg.JWT, userID, name, types.UserRole(role), ttl)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried by the token (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(types.RolePatient), "patient, doctor, hospital or administrator")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(cmd *cobra.Command, jwtCfg config.JWTConfig, userID, name string, role types.UserRole, ttl time.Duration) error {
	if !knownRoles[role] {
		return fmt.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	token, err := auth.IssueToken(jwtCfg.SecretKey, jwtCfg.Issuer, &types.UserClaims{
		UserID:   userID,
		Username: userID,
		Name:     name,
		Role:     role,
	}, ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

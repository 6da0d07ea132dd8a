package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/internal/auth"
	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/types"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "consultation-service", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	subs := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subs[sub.Use] = true
	}
	assert.True(t, subs["token"])
}

func TestTokenRequiresUser(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"token"})

	assert.Error(t, root.Execute())
}

func TestRunToken(t *testing.T) {
	jwtCfg := config.JWTConfig{SecretKey: "cli-secret", Issuer: "teleconsult"}
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runToken(cmd, jwtCfg, "doc-7", "Dr Seven", types.RoleDoctor, time.Hour))

	claims, err := auth.NewTokenValidator(jwtCfg.SecretKey, jwtCfg.Issuer).ValidateJWT(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "doc-7", claims.UserID)
	assert.Equal(t, types.RoleDoctor, claims.Role)
	assert.Equal(t, "Dr Seven", claims.Name)
}

func TestRunTokenRejects(t *testing.T) {
	jwtCfg := config.JWTConfig{SecretKey: "cli-secret", Issuer: "teleconsult"}
	cmd := &cobra.Command{}

	assert.Error(t, runToken(cmd, jwtCfg, "u1", "", "janitor", time.Hour))
	assert.Error(t, runToken(cmd, jwtCfg, "u1", "", types.RolePatient, 0))
}

package service

import (
	"context"
	"testing"

	"arcana/internal/model"
	"arcana/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.userSvc.CreateUser(ctx, CreateUserRequest{Fullname: "Ana Reyes", Username: "ana", Password: "secret1", Role: model.RoleApprover})
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	tok, err := env.userSvc.Login(ctx, LoginUserRequest{Username: "ana", Password: "secret1"})
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, created.ID.String(), claims["sub"])
	assert.Equal(t, model.RoleApprover, claims["role"])
	assert.Equal(t, "Ana Reyes", claims["name"])
}

func TestUserService_LoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ben", model.RoleCdo)

	_, err := env.userSvc.Login(ctx, LoginUserRequest{Username: "ben", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.userSvc.Login(ctx, LoginUserRequest{Username: "nobody", Password: "password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	inactive := false
	_, err = env.userSvc.UpdateUser(ctx, u.ID, UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = env.userSvc.Login(ctx, LoginUserRequest{Username: "ben", Password: "password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_RejectsUnknownRoleAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "cara", model.RoleCdo)

	_, err := env.userSvc.CreateUser(ctx, CreateUserRequest{Fullname: "X", Username: "x", Password: "secret1", Role: "superuser"})
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))

	_, err = env.userSvc.CreateUser(ctx, CreateUserRequest{Fullname: "Cara", Username: "cara", Password: "secret1", Role: model.RoleCdo})
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))
}

func TestApproverService_ReplaceChainValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := env.user(t, "approver", model.RoleApprover)
	cdo := env.user(t, "cdo", model.RoleCdo)

	tests := []struct {
		name   string
		module model.Module
		req    ReplaceChainRequest
	}{
		{"unknown module", "Payroll", ReplaceChainRequest{Approvers: []ApproverEntry{{UserID: approver.ID, Level: 1}}}},
		{"empty chain", model.ModuleFreebie, ReplaceChainRequest{}},
		{"non-positive level", model.ModuleFreebie, ReplaceChainRequest{Approvers: []ApproverEntry{{UserID: approver.ID, Level: 0}}}},
		{"duplicate entry", model.ModuleFreebie, ReplaceChainRequest{Approvers: []ApproverEntry{{UserID: approver.ID, Level: 1}, {UserID: approver.ID, Level: 1}}}},
		{"cdo cannot approve", model.ModuleFreebie, ReplaceChainRequest{Approvers: []ApproverEntry{{UserID: cdo.ID, Level: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.approverSvc.ReplaceChain(ctx, approver.ID, tt.module, tt.req)
			assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))
		})
	}

	chain, err := env.approverSvc.ListChain(ctx, model.ModuleFreebie)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestUserService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.userSvc.EnsureAdmin(ctx, "Administrator", "admin", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.userSvc.EnsureAdmin(ctx, "Administrator", "admin", "changeme")
	require.NoError(t, err)
	assert.False(t, created)

	tok, err := env.userSvc.Login(ctx, LoginUserRequest{Username: "admin", Password: "changeme"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, tok.User.Role)
}

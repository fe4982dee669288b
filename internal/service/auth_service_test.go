package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagehub/ticket-tracker/internal/config"
	"github.com/triagehub/ticket-tracker/internal/domain"
)

func newAuthService(users *fakeUserRepo) *AuthService {
	return NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		BcryptCost:            4, // keep the test fast
	}, users)
}

func TestSignupAndLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := newAuthService(users)
	ctx := context.Background()

	user, token, _, err := svc.Signup(ctx, "new@example.com", "hunter2", []string{"network"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role, "signup always grants the user role")
	assert.NotEqual(t, "hunter2", user.PasswordHash)

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, domain.RoleUser, claims.Role)

	_, _, _, err = svc.Signup(ctx, "new@example.com", "other", nil)
	require.Error(t, err)
	assert.Equal(t, 400, httpStatus(t, err))

	logged, _, _, err := svc.Login(ctx, "new@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	_, _, _, err = svc.Login(ctx, "new@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, 401, httpStatus(t, err))

	_, _, _, err = svc.Login(ctx, "ghost@example.com", "hunter2")
	require.Error(t, err)
	assert.Equal(t, 401, httpStatus(t, err))
}

func TestUpdateUserRoleAndSkills(t *testing.T) {
	users := newFakeUserRepo(requester)
	svc := newAuthService(users)
	ctx := context.Background()

	role := domain.RoleModerator
	updated, err := svc.UpdateUser(ctx, requester.Email, &role, []string{"hardware"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, updated.Role)
	assert.Equal(t, []string{"hardware"}, updated.Skills)

	bogus := domain.Role("superuser")
	_, err = svc.UpdateUser(ctx, requester.Email, &bogus, nil)
	require.Error(t, err)
	assert.Equal(t, 400, httpStatus(t, err))

	_, err = svc.UpdateUser(ctx, "ghost@example.com", &role, nil)
	require.Error(t, err)
	assert.Equal(t, 404, httpStatus(t, err))
}

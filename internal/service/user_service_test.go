package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrotrack/plotmanager/internal/domain"
)

func TestUserListRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	root := f.admin(t, "root")

	_, err := f.users.List(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	users, err := f.users.List(ctx, root)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
		require.NotNil(t, u.Profile, u.Username)
		assert.Equal(t, u.ID, u.Profile.UserID)
	}
}

func TestUserGetEmbedsProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	got, err := f.users.Get(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.PasswordHash)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "Ana", got.Profile.FirstName)
	assert.Equal(t, "Diaz", got.Profile.LastName)
}

func TestUserUpdateSelfAndAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	root := f.admin(t, "root")

	_, err := f.users.Update(ctx, bob, alice.ID, domain.UserPatch{Username: domain.Some("hijack")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.users.Update(ctx, alice, alice.ID, domain.UserPatch{
		Username:         domain.Some(" alice2 "),
		EstablishmentLat: domain.Some(0.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)
	require.NotNil(t, got.EstablishmentLat)
	assert.Equal(t, 0.0, *got.EstablishmentLat)

	got, err = f.users.Update(ctx, root, alice.ID, domain.UserPatch{EstablishmentLat: domain.Null[float64]()})
	require.NoError(t, err)
	assert.Nil(t, got.EstablishmentLat)
}

func TestUserUpdateRoleChangeNeedsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	root := f.admin(t, "root")

	_, err := f.users.Update(ctx, alice, alice.ID, domain.UserPatch{Role: domain.Some(domain.RoleAdmin)})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.users.Update(ctx, alice, alice.ID, domain.UserPatch{Role: domain.Some(domain.RoleUser)})
	assert.NoError(t, err, "restating the current role is not a change")

	got, err := f.users.Update(ctx, root, alice.ID, domain.UserPatch{Role: domain.Some(domain.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	_, err = f.users.Update(ctx, root, alice.ID, domain.UserPatch{Role: domain.Some(domain.Role("owner"))})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUserUpdateUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")

	_, err := f.users.Update(ctx, alice, alice.ID, domain.UserPatch{Email: domain.Some("bob@example.com")})
	var dup *domain.DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "email", dup.Field)

	_, err = f.users.Update(ctx, alice, alice.ID, domain.UserPatch{Email: domain.Some("alice@example.com")})
	assert.NoError(t, err, "keeping your own email is not a conflict")
}

func TestUserSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	plot, err := f.plots.Create(ctx, alice, newPlotInput())
	require.NoError(t, err)

	assert.ErrorIs(t, f.users.SoftDelete(ctx, bob, alice.ID), domain.ErrForbidden)
	require.NoError(t, f.users.SoftDelete(ctx, alice, alice.ID))

	_, err = f.users.Get(ctx, bob, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.users.GetProfile(ctx, bob, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.store.Plots().GetByID(ctx, plot.ID)
	require.NoError(t, err, "plots outlive their owner")
	assert.Equal(t, alice.ID, stored.OwnerID)
}

func TestProfileUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	_, err := f.users.UpdateProfile(ctx, bob, alice.ID, domain.ProfilePatch{FirstName: domain.Some("Eve")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.users.UpdateProfile(ctx, alice, alice.ID, domain.ProfilePatch{LastName: domain.Null[string]()})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.users.UpdateProfile(ctx, alice, alice.ID, domain.ProfilePatch{FirstName: domain.Some("A")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.users.UpdateProfile(ctx, alice, alice.ID, domain.ProfilePatch{FirstName: domain.Some("Anabel")})
	require.NoError(t, err)
	assert.Equal(t, "Anabel", got.FirstName)
	assert.Equal(t, "Diaz", got.LastName)

	profile, err := f.users.GetProfile(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anabel", profile.FirstName)
}

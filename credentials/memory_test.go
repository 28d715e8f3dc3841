package credentials

import (
	"context"
	"testing"

	"github.com/MrEthical07/formauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FindByUsername(t *testing.T) {
	m := NewMemory(formauth.User{Username: "Bob", PasswordHash: "h", Authorities: []string{"ROLE_USER"}, Enabled: true})

	u, err := m.FindByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.Username)

	u.Authorities[0] = "ROLE_ADMIN"
	again, err := m.FindByUsername(context.Background(), "BOB")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_USER"}, again.Authorities, "returned users must not alias stored state")

	_, err = m.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, formauth.ErrUserNotFound)
}

func TestMemory_Updates(t *testing.T) {
	m := NewMemory(formauth.User{Username: "bob", PasswordHash: "old", Enabled: true})
	ctx := context.Background()

	require.NoError(t, m.UpdatePasswordHash(ctx, "bob", "new"))
	require.NoError(t, m.SetEnabled("bob", false))

	u, err := m.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "new", u.PasswordHash)
	assert.False(t, u.Enabled)

	assert.ErrorIs(t, m.UpdatePasswordHash(ctx, "ghost", "x"), formauth.ErrUserNotFound)
	assert.ErrorIs(t, m.SetEnabled("ghost", true), formauth.ErrUserNotFound)
}

func TestMemory_SatisfiesEngineInterfaces(t *testing.T) {
	var _ formauth.CredentialStore = (*Memory)(nil)
	var _ formauth.PasswordUpgrader = (*Memory)(nil)
	var _ formauth.CredentialStore = (*Postgres)(nil)
	var _ formauth.PasswordUpgrader = (*Postgres)(nil)
}

package circulation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/circulation-ledger-go/circulation"
	"github.com/openshelf/circulation-ledger-go/ledgerstore"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/memoryengine"
)

func givenRepositoryWithMember(t *testing.T) *circulation.Repository {
	t.Helper()

	ctx := context.Background()
	store, err := memoryengine.NewStore()
	require.NoError(t, err)

	_, err = store.Insert(ctx, "members", ledgerstore.Fields{
		"name": "Alice", "email": "alice@example.com", "memberId": "MEM-1001",
		"joinDate": "2026-03-01T12:00:00Z",
	})
	require.NoError(t, err)

	repo, err := circulation.NewRepository(circulation.Config{})
	require.NoError(t, err)
	require.NoError(t, repo.Attach(ctx, store))

	return repo
}

func Test_Login_Admin(t *testing.T) {
	// arrange
	repo := givenRepositoryWithMember(t)
	cfg := circulation.IdentityConfig{AdminPassword: "admin123"}

	// act
	session, err := circulation.Login(cfg, repo, "admin", "admin123")

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RoleAdmin, session.Role)
	assert.Nil(t, session.Member)
}

func Test_Login_AdminWrongPassword(t *testing.T) {
	// arrange
	repo := givenRepositoryWithMember(t)
	cfg := circulation.IdentityConfig{AdminPassword: "admin123"}

	// act
	_, err := circulation.Login(cfg, repo, "admin", "wrong")

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvalidCredentials)
}

func Test_Login_AdminDisabledWithoutPassword(t *testing.T) {
	// arrange
	repo := givenRepositoryWithMember(t)
	cfg := circulation.IdentityConfig{}

	// act
	_, err := circulation.Login(cfg, repo, "admin", "")

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvalidCredentials)
}

func Test_Login_MemberByMemberIDCaseInsensitive(t *testing.T) {
	// arrange
	repo := givenRepositoryWithMember(t)
	cfg := circulation.IdentityConfig{AdminPassword: "admin123"}

	// act
	session, err := circulation.Login(cfg, repo, "mem-1001", "")

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RoleMember, session.Role)
	require.NotNil(t, session.Member)
	assert.Equal(t, "Alice", session.Member.Name)
}

func Test_Login_UnknownIdentifier(t *testing.T) {
	// arrange
	repo := givenRepositoryWithMember(t)
	cfg := circulation.IdentityConfig{AdminPassword: "admin123"}

	// act
	_, err := circulation.Login(cfg, repo, "MEM-404", "")

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, err, circulation.ErrInvalidCredentials)
}

package auth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	superAdmin = common.HexToAddress("0x0000000000000000000000000000000000000001")
	admin      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	outsider   = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func TestNewRegistryRequiresSuperAdmin(t *testing.T) {
	_, err := NewRegistry(common.Address{}, nil)
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestNewRegistryRejectsZeroInitialAdmin(t *testing.T) {
	_, err := NewRegistry(superAdmin, []common.Address{common.Address{}})
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestRequireAdmin(t *testing.T) {
	r, err := NewRegistry(superAdmin, []common.Address{admin})
	require.NoError(t, err)

	assert.NoError(t, r.RequireAdmin(admin))
	assert.ErrorIs(t, r.RequireAdmin(outsider), ErrUnauthorized)

	// The super-admin manages membership but is not implicitly an admin.
	assert.ErrorIs(t, r.RequireAdmin(superAdmin), ErrUnauthorized)
}

func TestAdminManagement(t *testing.T) {
	r, err := NewRegistry(superAdmin, nil)
	require.NoError(t, err)

	require.ErrorIs(t, r.AddAdmin(outsider, admin), ErrUnauthorized)

	require.NoError(t, r.AddAdmin(superAdmin, admin))
	assert.True(t, r.IsAdmin(admin))
	assert.NoError(t, r.RequireAdmin(admin))

	require.ErrorIs(t, r.AddAdmin(superAdmin, common.Address{}), ErrZeroAddress)

	require.ErrorIs(t, r.RemoveAdmin(admin, admin), ErrUnauthorized)
	require.NoError(t, r.RemoveAdmin(superAdmin, admin))
	assert.False(t, r.IsAdmin(admin))
	assert.ErrorIs(t, r.RequireAdmin(admin), ErrUnauthorized)
}

func TestAdminsEnumeration(t *testing.T) {
	other := common.HexToAddress("0x0000000000000000000000000000000000000004")
	r, err := NewRegistry(superAdmin, []common.Address{admin, other})
	require.NoError(t, err)

	assert.ElementsMatch(t, []common.Address{admin, other}, r.Admins())
	assert.Equal(t, superAdmin, r.SuperAdmin())
}

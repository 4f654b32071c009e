package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "prismid/pkg/domain-errors"
)

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierSuperAdmin.Meets(TierAdmin))
	assert.True(t, TierSuperAdmin.Meets(TierViewer))
	assert.True(t, TierAdmin.Meets(TierViewer))
	assert.True(t, TierAdmin.Meets(TierAdmin))

	assert.False(t, TierViewer.Meets(TierAdmin))
	assert.False(t, TierAdmin.Meets(TierSuperAdmin))
}

func TestZeroTierAuthorizesNothing(t *testing.T) {
	var zero Tier
	assert.False(t, zero.Valid())
	assert.False(t, zero.Meets(TierViewer))
	assert.Error(t, Authorize(zero, TierViewer))
}

func TestParseTier(t *testing.T) {
	cases := []struct {
		in   string
		want Tier
	}{
		{"VIEWER", TierViewer},
		{"admin", TierAdmin},
		{" SuperAdmin ", TierSuperAdmin},
	}
	for _, tc := range cases {
		got, err := ParseTier(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseTier("ROOT")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestTierJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(TierAdmin)
	require.NoError(t, err)
	assert.Equal(t, `"ADMIN"`, string(b))

	var parsed Tier
	require.NoError(t, json.Unmarshal(b, &parsed))
	assert.Equal(t, TierAdmin, parsed)
}

func TestRequiredTier(t *testing.T) {
	cases := []struct {
		op   Operation
		want Tier
	}{
		{OpCreate, TierAdmin},
		{OpUpdate, TierAdmin},
		{OpSoftDelete, TierAdmin},
		{OpRestore, TierAdmin},
		{OpRoleAssign, TierAdmin},
		{OpRoleRemove, TierAdmin},
		{OpEndInternship, TierAdmin},
		{OpSync, TierAdmin},
		{OpPurge, TierSuperAdmin},
		{OpConvert, TierSuperAdmin},
		{OpRetire, TierSuperAdmin},
		{OpExtend, TierSuperAdmin},
		{OpManageTaxonomy, TierSuperAdmin},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RequiredTier(tc.op), string(tc.op))
	}

	// Unknown operations can never be under-gated.
	assert.Equal(t, TierSuperAdmin, RequiredTier(Operation("mystery")))
}

func TestAuthorizeOp(t *testing.T) {
	require.NoError(t, AuthorizeOp(TierAdmin, OpCreate))
	require.NoError(t, AuthorizeOp(TierSuperAdmin, OpPurge))

	err := AuthorizeOp(TierViewer, OpCreate)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	err = AuthorizeOp(TierAdmin, OpConvert)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
}

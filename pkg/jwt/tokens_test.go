package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := Generate("acct-1", "alice", "sess-1", []string{"grp-1", "grp-2"}, "test-secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Parse(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, []string{"grp-1", "grp-2"}, claims.GroupIDs)
	assert.Equal(t, "tessellate", claims.Issuer)
}

func TestParseWrongSecret(t *testing.T) {
	token, err := Generate("acct-1", "alice", "sess-1", nil, "test-secret")
	require.NoError(t, err)

	_, err = Parse(token, "different-secret")
	assert.Error(t, err)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("not.a.token", "test-secret")
	assert.Error(t, err)
}

package pagination_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/cunhao-core/internal/utils/pagination"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := pagination.Encode(pagination.Cursor{Kind: "long", Text: "Esto con Carmena no pasaba"})
	require.NoError(t, err)

	c, err := pagination.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "long", c.Kind)
	assert.Equal(t, "Esto con Carmena no pasaba", c.Text)
}

func TestDecode_EmptyIsFirstPage(t *testing.T) {
	c, err := pagination.Decode("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := pagination.Decode("%%%")
	assert.ErrorIs(t, err, pagination.ErrInvalidToken)

	// valid base64 of an empty object
	_, err = pagination.Decode("e30=")
	assert.ErrorIs(t, err, pagination.ErrInvalidToken)
}

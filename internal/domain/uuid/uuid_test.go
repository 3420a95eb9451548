package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/domain/uuid"
)

func TestNewUUID(t *testing.T) {
	id := uuid.NewUUID()

	assert.False(t, id.IsZero())
	assert.NotEqual(t, id, uuid.NewUUID())
}

func TestParseUUID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		original := uuid.NewUUID()

		parsed, err := uuid.ParseUUID(original.String())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := uuid.ParseUUID("not-a-uuid")
		require.Error(t, err)
	})
}

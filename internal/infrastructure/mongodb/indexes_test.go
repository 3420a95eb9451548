package mongodb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/sagaflow/internal/infrastructure/mongodb"
)

func TestGetEventIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetEventIndexes()
	assert.Len(t, indexes, 3)

	// Optimistic locking relies on the unique aggregate+version index.
	uniqueIdx := findIndexByKeys(indexes, bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}})
	require.NotNil(t, uniqueIdx, "unique aggregate+version index should exist")
	assert.Equal(t, mongodb.CollectionEvents, uniqueIdx.Collection)
}

func TestGetSnapshotIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetSnapshotIndexes()
	assert.Len(t, indexes, 2)

	uniqueIdx := findIndexByKeys(indexes, bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}})
	require.NotNil(t, uniqueIdx, "unique aggregate+version index should exist")
	assert.Equal(t, mongodb.CollectionSnapshots, uniqueIdx.Collection)
}

func TestGetSagaSnapshotIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetSagaSnapshotIndexes()
	assert.Len(t, indexes, 3)

	uniqueIdx := findIndexByKeys(indexes, bson.D{{Key: "saga_id", Value: 1}})
	require.NotNil(t, uniqueIdx, "unique saga_id index should exist")
	assert.Equal(t, mongodb.CollectionSagaSnapshots, uniqueIdx.Collection)

	statusIdx := findIndexByKeys(indexes, bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: 1}})
	require.NotNil(t, statusIdx, "status+timestamp index should exist")
}

func TestGetAllIndexDefinitions(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetAllIndexDefinitions()

	expectedTotal := len(mongodb.GetEventIndexes()) +
		len(mongodb.GetSnapshotIndexes()) +
		len(mongodb.GetSagaSnapshotIndexes())

	assert.Len(t, indexes, expectedTotal)

	for _, idx := range indexes {
		assert.NotEmpty(t, idx.Collection, "index should have collection name")
		assert.NotEmpty(t, idx.Keys, "index should have keys")
		assert.NotNil(t, idx.Options, "index should have options")
	}
}

func findIndexByKeys(indexes []mongodb.IndexDefinition, keys bson.D) *mongodb.IndexDefinition {
	for i := range indexes {
		if equalKeys(indexes[i].Keys, keys) {
			return &indexes[i]
		}
	}
	return nil
}

func equalKeys(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

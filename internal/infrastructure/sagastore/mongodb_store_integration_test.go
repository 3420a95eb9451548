//go:build integration

package sagastore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
	"github.com/lllypuk/sagaflow/internal/infrastructure/mongodb"
	"github.com/lllypuk/sagaflow/internal/infrastructure/sagastore"
	"github.com/lllypuk/sagaflow/internal/testutil"
)

func setupMongoSagaStore(t *testing.T) *sagastore.MongoSagaStateStore {
	t.Helper()

	_, db := testutil.SetupTestMongoDB(t)
	require.NoError(t, mongodb.CreateAllIndexes(context.Background(), db))

	return sagastore.NewMongoSagaStateStore(db)
}

func TestMongoSagaStateStore_SaveAndGet(t *testing.T) {
	store := setupMongoSagaStore(t)
	ctx := context.Background()

	snapshot := saga.Snapshot{
		SagaID: "saga-1",
		Name:   "order-fulfillment",
		Status: saga.StatusRunning,
		Context: map[string]any{
			"order_id": "order-1",
		},
		Steps: []saga.StepProgress{
			{StepIndex: 0, StepName: "reserve", Status: saga.StepStatusCompleted},
			{StepIndex: 1, StepName: "charge", Status: saga.StepStatusRunning},
		},
		Timestamp: time.Now().UTC(),
		Version:   2,
	}
	require.NoError(t, store.Save(ctx, snapshot))

	loaded, err := store.GetByID(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, "order-fulfillment", loaded.Name)
	assert.Equal(t, saga.StatusRunning, loaded.Status)
	assert.Equal(t, "order-1", loaded.Context["order_id"])
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "charge", loaded.Steps[1].StepName)
}

func TestMongoSagaStateStore_SaveUpsertsBySagaID(t *testing.T) {
	store := setupMongoSagaStore(t)
	ctx := context.Background()

	snapshot := saga.Snapshot{SagaID: "saga-1", Name: "payment", Status: saga.StatusRunning, Timestamp: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, snapshot))

	snapshot.Status = saga.StatusCompleted
	require.NoError(t, store.Save(ctx, snapshot))

	page, err := store.Query(ctx, appcore.SagaFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, saga.StatusCompleted, page.Items[0].Status)
}

func TestMongoSagaStateStore_GetByIDNotFound(t *testing.T) {
	store := setupMongoSagaStore(t)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, appcore.ErrSagaNotFound)
}

func TestMongoSagaStateStore_QueryByStatusWithPagination(t *testing.T) {
	store := setupMongoSagaStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	statuses := []saga.Status{
		saga.StatusFailed,
		saga.StatusCompleted,
		saga.StatusFailed,
		saga.StatusFailed,
	}
	for i, status := range statuses {
		snapshot := saga.Snapshot{
			SagaID:    "saga-" + string(rune('a'+i)),
			Name:      "payment",
			Status:    status,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Save(ctx, snapshot))
	}

	failed := saga.StatusFailed
	page, err := store.Query(ctx, appcore.SagaFilter{Status: &failed, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "saga-a", page.Items[0].SagaID)
	assert.Equal(t, "saga-c", page.Items[1].SagaID)

	next, err := store.Query(ctx, appcore.SagaFilter{Status: &failed, Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "saga-d", next.Items[0].SagaID)
}

func TestMongoSagaStateStore_Cleanup(t *testing.T) {
	store := setupMongoSagaStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	old := saga.Snapshot{SagaID: "saga-old", Name: "payment", Status: saga.StatusCompleted, Timestamp: base.Add(-48 * time.Hour)}
	fresh := saga.Snapshot{SagaID: "saga-new", Name: "payment", Status: saga.StatusRunning, Timestamp: base}
	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, fresh))

	deleted, err := store.Cleanup(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetByID(ctx, "saga-old")
	assert.ErrorIs(t, err, appcore.ErrSagaNotFound)

	_, err = store.GetByID(ctx, "saga-new")
	require.NoError(t, err)
}

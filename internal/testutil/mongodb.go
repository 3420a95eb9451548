// Package testutil предоставляет общие контейнеры и хелперы для интеграционных тестов.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoCtxTimeout              = 10 * time.Second
	mongoContainerStartupTimeout = 120 * time.Second
	mongoPingTimeout             = 2 * time.Second
	mongoPingRetryDelay          = 500 * time.Millisecond
	mongoPingMaxRetries          = 5
	maxTestDBNameLength          = 50
)

// sharedMongo holds the singleton MongoDB container.
// Event store transactions require a replica set, so the container
// is started with a single-node replica set enabled.
var (
	sharedMongo     *tcmongodb.MongoDBContainer
	sharedMongoURI  string
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// getSharedMongoURI starts the shared MongoDB container once and returns its URI.
func getSharedMongoURI(ctx context.Context) (string, error) {
	sharedMongoOnce.Do(func() {
		startupCtx, cancel := context.WithTimeout(ctx, mongoContainerStartupTimeout)
		defer cancel()

		cont, err := tcmongodb.Run(startupCtx, "mongo:8", tcmongodb.WithReplicaSet("rs0"))
		if err != nil {
			sharedMongoErr = err
			return
		}

		uri, err := cont.ConnectionString(startupCtx)
		if err != nil {
			sharedMongoErr = err
			return
		}

		sharedMongo = cont
		sharedMongoURI = uri
	})

	return sharedMongoURI, sharedMongoErr
}

// SetupTestMongoDB создает изолированную тестовую БД в общем контейнере.
// Возвращает клиент и БД, очистка регистрируется через t.Cleanup.
func SetupTestMongoDB(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), mongoContainerStartupTimeout)
	defer cancel()

	uri, err := getSharedMongoURI(ctx)
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// Ping with retries
	for i := 0; i < mongoPingMaxRetries; i++ {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), mongoPingTimeout)
		err = client.Ping(pingCtx, nil)
		pingCancel()
		if err == nil {
			break
		}
		if i < mongoPingMaxRetries-1 {
			time.Sleep(mongoPingRetryDelay)
		}
	}
	if err != nil {
		t.Fatalf("Failed to ping MongoDB after %d retries: %v", mongoPingMaxRetries, err)
	}

	db := client.Database(generateTestDBName(t.Name()))

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), mongoCtxTimeout)
		defer cleanupCancel()
		_ = db.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return client, db
}

// generateTestDBName создает уникальное имя БД из имени теста.
// MongoDB ограничивает имена БД 63 символами.
func generateTestDBName(testName string) string {
	if len(testName) > maxTestDBNameLength {
		hash := sha256.Sum256([]byte(testName))
		testName = testName[:20] + "_" + hex.EncodeToString(hash[:])[:12]
	}
	return "sagaflow_test_" + sanitizeDBName(testName)
}

func sanitizeDBName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

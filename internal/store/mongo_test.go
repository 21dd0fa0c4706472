package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// Set FLOWCANVAS_TEST_MONGO_URI to run against a live server.
func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("FLOWCANVAS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FLOWCANVAS_TEST_MONGO_URI not set")
	}
	runContract(t, func(t *testing.T) ElementStore {
		ctx := context.Background()
		s, err := NewMongoStore(ctx, uri, "flowcanvas_test_"+uuid.NewString()[:8])
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		t.Cleanup(func() {
			_ = s.db.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestMongoDocRoundTrip(t *testing.T) {
	s := &MongoStore{}
	r := prepareNew(&Record{ID: "A", Type: "rectangle", Fields: map[string]any{
		"x": 1.5, "points": []any{[]any{0.0, 0.0}},
	}}, nowUTC())

	doc, err := s.toDoc(r)
	require.NoError(t, err)
	data, err := bson.Marshal(doc)
	require.NoError(t, err)

	var back mongoDoc
	require.NoError(t, bson.Unmarshal(data, &back))
	got, err := fromDoc(&back)
	require.NoError(t, err)
	require.Equal(t, r.Fields, got.Fields)
	require.Equal(t, int64(1), back.Seq)
}

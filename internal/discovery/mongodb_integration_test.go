//go:build integration

package discovery_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/discovery"
	"github.com/reloquent/catalogmap/internal/location"
)

const mongoTestDB = "catalogmap_it"

func TestMongoCatalogIntegration(t *testing.T) {
	uri := os.Getenv("CATALOGMAP_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("skipping: CATALOGMAP_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("skipping: cannot ping MongoDB: %v", err)
	}

	db := client.Database(mongoTestDB)
	require.NoError(t, db.Drop(ctx))
	t.Cleanup(func() { db.Drop(context.Background()) })

	_, err = db.Collection("customers").InsertMany(ctx, []any{
		bson.D{{Key: "name", Value: "alice"}, {Key: "age", Value: int32(31)}},
		bson.D{{Key: "name", Value: "bob"}},
	})
	require.NoError(t, err)
	require.NoError(t, db.CreateView(ctx, "adults", "customers", mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}}}},
	}))

	c, err := discovery.New(&config.SourceConfig{Type: "mongodb", ConnectionString: uri}, nil)
	require.NoError(t, err)
	defer c.Close()

	b := catalog.NewBrowser(c)
	id := catalog.Identity{DataSourceName: "mongo-it"}

	dbs := b.DatabaseNames(ctx, id)
	require.True(t, dbs.IsSuccess, dbs.ErrorMessages)
	assert.Contains(t, dbs.Value, mongoTestDB)
	assert.NotContains(t, dbs.Value, "admin")

	tables := b.TableNames(ctx, id, mongoTestDB, "")
	require.True(t, tables.IsSuccess, tables.ErrorMessages)
	assert.Equal(t, []string{"[customers]"}, tables.Value)

	views := b.ViewNames(ctx, id, mongoTestDB, "")
	require.True(t, views.IsSuccess, views.ErrorMessages)
	assert.Equal(t, []string{"[adults]"}, views.Value)

	cols := b.ColumnDefinitions(ctx, id, location.New(mongoTestDB, "customers"))
	require.True(t, cols.IsSuccess, cols.ErrorMessages)
	require.Len(t, cols.Value, 3)
	assert.Equal(t, "_id", cols.Value[0].ColumnName)
	assert.Equal(t, "32-bit integer", cols.Value[2].DataType)
	assert.True(t, cols.Value[2].IsNullable)
}

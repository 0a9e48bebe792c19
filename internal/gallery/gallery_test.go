package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trip(location string, items ...string) Trip {
	return Trip{
		Location:   location,
		FinalImage: "aW1n",
		MimeType:   "image/png",
		Items:      items,
		Summary:    "A lovely trip.",
	}
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Save(ctx, trip("Nowhere"))
	require.ErrorIs(t, err, ErrEmptyTrip)

	first, err := store.Save(ctx, trip("Paris", "beret"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ID, "trip-"))
	assert.False(t, first.CreatedAt.IsZero())

	second, err := store.Save(ctx, trip("Rome", "scooter", "gelato"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	trips, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, second.ID, trips[0].ID, "newest trip comes first")
	assert.Equal(t, []string{"scooter", "gelato"}, trips[0].Items)

	require.NoError(t, store.Delete(ctx, first.ID))
	assert.ErrorIs(t, store.Delete(ctx, first.ID), ErrTripNotFound)

	trips, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, second.ID, trips[0].ID)

	for i := 0; i < MaxTrips+5; i++ {
		_, err := store.Save(ctx, trip(fmt.Sprintf("City %d", i), "map"))
		require.NoError(t, err)
	}
	trips, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, MaxTrips)
	assert.Equal(t, fmt.Sprintf("City %d", MaxTrips+4), trips[0].Location)
}

func TestFileStore(t *testing.T) {
	testStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "gallery.json")))
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "gallery.json"))
	trips, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestFileStoreListsNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := `[
  {"id": "trip-old", "location": "Oslo", "items": ["fjord"], "createdAt": "` + old.Format(time.RFC3339) + `"},
  {"id": "trip-new", "location": "Lima", "items": ["llama"], "createdAt": "` + old.AddDate(1, 0, 0).Format(time.RFC3339) + `"}
]`
	require.NoError(t, os.WriteFile(path, []byte(stored), 0644))
	store := NewFileStore(path)

	trips, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "trip-new", trips[0].ID)
	assert.Equal(t, "trip-old", trips[1].ID)

	backdated := trip("Cairo", "camel")
	backdated.CreatedAt = old.AddDate(-5, 0, 0)
	saved, err := store.Save(context.Background(), backdated)
	require.NoError(t, err)
	assert.True(t, saved.CreatedAt.After(old), "save time is assigned by the store")

	trips, err = store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, saved.ID, trips[0].ID)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).Save(context.Background(), trip("Paris", "beret"))
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	key := fmt.Sprintf("memorytrip:test:%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), key) })
	testStore(t, NewRedisStore(client, key))
}

func TestExportTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "trips.txt")
	store := WithExport(NewFileStore(filepath.Join(t.TempDir(), "gallery.json")), path)

	_, err := store.Save(context.Background(), trip("Lisbon", "tram ticket", "custard tart"))
	require.NoError(t, err)
	_, err = store.Save(context.Background(), trip("Oslo", "wool hat"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	journal := string(data)
	assert.Contains(t, journal, "Memory Trip to Lisbon")
	assert.Contains(t, journal, "1. tram ticket\n2. custard tart\n")
	assert.Contains(t, journal, "Memory Trip to Oslo")
	assert.Contains(t, journal, "Journal:\nA lovely trip.\n")
	assert.Less(t, strings.Index(journal, "Lisbon"), strings.Index(journal, "Oslo"))
}

func TestExportFailureDoesNotFailSave(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	store := WithExport(NewFileStore(filepath.Join(dir, "gallery.json")), filepath.Join(blocker, "trips.txt"))
	saved, err := store.Save(context.Background(), trip("Paris", "beret"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
}

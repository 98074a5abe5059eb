package items

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_PutAndItem(t *testing.T) {
	item := &models.Item{
		ID:      "song-1",
		OwnerID: "olivia",
		Stage:   models.StageInProgress,
		Steps:   map[models.Part]bool{models.PartDrums: false},
	}

	catalog := NewCatalog(item)

	got, err := catalog.Item(context.Background(), "song-1")
	require.NoError(t, err)
	assert.Equal(t, "olivia", got.OwnerID)

	got.Steps[models.PartDrums] = true

	again, err := catalog.Item(context.Background(), "song-1")
	require.NoError(t, err)
	assert.False(t, again.Steps[models.PartDrums], "catalog hands out copies")

	_, err = catalog.Item(context.Background(), "missing")
	assert.True(t, IsItemNotFound(err))
}

func TestLoadCatalog_JSON(t *testing.T) {
	catalog, err := LoadCatalog("testdata/catalog.json")
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	song, err := catalog.Item(context.Background(), "song-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageInProgress, song.Stage)
	assert.Equal(t, models.MustPartSet(models.PartDrums), song.CompletedSteps())
	assert.Equal(t, "pack-1", song.PackID)

	planned, err := catalog.Item(context.Background(), "song-2")
	require.NoError(t, err)
	assert.Equal(t, models.StagePlanned, planned.Stage)
	assert.Empty(t, planned.Steps)
}

func TestLoadCatalog_YAML(t *testing.T) {
	catalog, err := LoadCatalog("testdata/catalog.yaml")
	require.NoError(t, err)

	song, err := catalog.Item(context.Background(), "song-3")
	require.NoError(t, err)
	assert.Equal(t, models.MustPartSet(models.PartKeys, models.PartProKeys), song.AllSteps())
}

func TestLoadCatalog_Invalid(t *testing.T) {
	_, err := LoadCatalog("testdata/invalid.json")
	require.ErrorIs(t, err, ErrInvalidCatalog)
	assert.Contains(t, err.Error(), "owner_id")

	_, err = ParseCatalog(map[string]any{
		"items": []any{map[string]any{
			"id": "song-1", "owner_id": "olivia", "stage": "Abandoned",
		}},
	})
	require.ErrorIs(t, err, ErrInvalidCatalog)
	assert.ErrorIs(t, err, models.ErrUnknownStage)

	_, err = LoadCatalog("testdata/missing.json")
	assert.Error(t, err)
}

func TestParseCatalog_UnknownStepsAreSkipped(t *testing.T) {
	catalog, err := ParseCatalog(map[string]any{
		"items": []any{map[string]any{
			"id": "song-1", "owner_id": "olivia", "stage": "In Progress",
			"steps": map[string]any{"kazoo": true, "bass": false, "drums": true},
		}},
	})
	require.NoError(t, err)

	song, err := catalog.Item(context.Background(), "song-1")
	require.NoError(t, err)
	assert.Equal(t, models.MustPartSet(models.PartBass, models.PartDrums), song.AllSteps())
	assert.Equal(t, models.MustPartSet(models.PartDrums), song.CompletedSteps())
}

func TestHTTPLookup_Item(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/songs/song-1" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"owner_id": "olivia",
			"stage":    "In Progress",
			"pack_id":  "pack-1",
			"steps":    map[string]bool{"vocals": false, "harmonies": true, "theremin": false},
		})
	}))
	defer server.Close()

	lookup := NewHTTPLookup(server.URL+"/", nil, slog.Default())

	item, err := lookup.Item(context.Background(), "song-1")
	require.NoError(t, err)
	assert.Equal(t, "song-1", item.ID)
	assert.Equal(t, models.StageInProgress, item.Stage)
	assert.Equal(t, models.MustPartSet(models.PartHarmonies), item.CompletedSteps())
	assert.Equal(t, models.MustPartSet(models.PartVocals, models.PartHarmonies), item.AllSteps())

	_, err = lookup.Item(context.Background(), "song-2")
	assert.True(t, IsItemNotFound(err))
}

func TestHTTPLookup_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewHTTPLookup(server.URL, server.Client(), slog.Default()).Item(context.Background(), "song-1")
	require.Error(t, err)
	assert.False(t, IsItemNotFound(err))
	assert.Contains(t, err.Error(), "database down")
}

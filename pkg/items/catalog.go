package items

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const catalogSchema = `{
	"type": "object",
	"required": ["items"],
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "owner_id", "stage"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"owner_id": {"type": "string", "minLength": 1},
					"stage": {"type": "string"},
					"pack_id": {"type": "string"},
					"steps": {
						"type": "object",
						"additionalProperties": {"type": "boolean"}
					}
				}
			}
		}
	}
}`

// Catalog is an in-memory item source. It backs local deployments and tests.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]*models.Item
}

func NewCatalog(items ...*models.Item) *Catalog {
	c := &Catalog{items: make(map[string]*models.Item, len(items))}
	for _, item := range items {
		c.Put(item)
	}

	return c
}

// Put adds or replaces an item.
func (c *Catalog) Put(item *models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[item.ID] = cloneItem(item)
}

// Item returns a copy so callers cannot mutate the catalog.
func (c *Catalog) Item(_ context.Context, id string) (*models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, &ItemError{ItemID: id, Err: ErrItemNotFound}
	}

	return cloneItem(item), nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// LoadCatalog reads a JSON or YAML (by extension) catalog file and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var doc map[string]any

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(body, &doc)
	default:
		err = json.Unmarshal(body, &doc)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	return ParseCatalog(doc)
}

// ParseCatalog validates a decoded catalog document against the catalog schema.
func ParseCatalog(doc map[string]any) (*Catalog, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}

	// The document is valid, so a JSON round trip into the typed records cannot lose data.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var parsed struct {
		Items []record `json:"items"`
	}

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	catalog := NewCatalog()

	for _, r := range parsed.Items {
		item, err := r.toItem(slog.Default())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}

		catalog.Put(item)
	}

	return catalog, nil
}

func cloneItem(item *models.Item) *models.Item {
	c := *item
	c.Steps = maps.Clone(item.Steps)

	return &c
}

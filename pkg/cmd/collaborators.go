package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/trackcollab/pkg/authz"
	"github.com/dukex/trackcollab/pkg/eventbus"
	"github.com/dukex/trackcollab/pkg/items"
)

// NewItemLookup returns a remote lookup for http(s) URLs and a catalog loaded from disk otherwise.
func NewItemLookup(itemsURL string, logger *slog.Logger) (items.Lookup, error) {
	if strings.HasPrefix(itemsURL, "http://") || strings.HasPrefix(itemsURL, "https://") {
		return items.NewHTTPLookup(itemsURL, nil, logger), nil
	}

	catalog, err := items.LoadCatalog(itemsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load item catalog: %w", err)
	}

	logger.Info("Loaded item catalog", "path", itemsURL, "items", catalog.Len())

	return catalog, nil
}

// NewAuthzSink selects where grants go: "events" publishes grant.issued on the bus,
// "memory" keeps them in process.
func NewAuthzSink(kind string, publisher eventbus.EventPublisher) (authz.Sink, error) {
	switch kind {
	case "events", "":
		return authz.NewEventSink(publisher), nil
	case "memory":
		return authz.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unsupported authz sink %q", kind)
	}
}

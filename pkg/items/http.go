package items

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/trackcollab/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const defaultTimeout = 5 * time.Second

// HTTPLookup reads items from the tracker REST API at GET {baseURL}/songs/{id}.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPLookup(baseURL string, client *http.Client, logger *slog.Logger) *HTTPLookup {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &HTTPLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With("module", "items"),
	}
}

func (h *HTTPLookup) Item(ctx context.Context, id string) (*models.Item, error) {
	endpoint := h.baseURL + "/songs/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build item request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.logger.WarnContext(ctx, "failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ItemError{ItemID: id, Err: ErrItemNotFound}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("item service returned %d for %s: %s", resp.StatusCode, id, strings.TrimSpace(string(body)))
	}

	var r record
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}

	if r.ID == "" {
		r.ID = id
	}

	h.logger.DebugContext(ctx, "Fetched item", "item_id", id, "stage", r.Stage)

	return r.toItem(h.logger)
}

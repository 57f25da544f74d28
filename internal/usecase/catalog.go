package usecase

import (
	"context"
	"log/slog"
	"sync"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
)

// Catalog caches the list of saved websites. The list may be stale until the
// next Refresh.
type Catalog struct {
	store  ports.WebsiteStore
	events ports.EventSink
	logger *slog.Logger

	refreshMu sync.Mutex

	mu    sync.Mutex
	sites []domain.SavedWebsite
}

func NewCatalog(store ports.WebsiteStore, events ports.EventSink, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		events: events,
		logger: logging.OrDiscard(logger),
		sites:  []domain.SavedWebsite{},
	}
}

// Refresh replaces the cached list with the service's current list, in the
// order returned. Failures are logged and leave the cache unchanged.
func (c *Catalog) Refresh(ctx context.Context) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	sites, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn("failed to refresh saved websites", "error", err)
		return
	}

	snapshot := make([]domain.SavedWebsite, len(sites))
	copy(snapshot, sites)

	c.mu.Lock()
	c.sites = snapshot
	c.mu.Unlock()

	c.logger.Debug("saved websites refreshed", "count", len(snapshot))
	c.events.CatalogRefreshed(c.List())
}

// List returns the last successfully fetched sequence.
func (c *Catalog) List() []domain.SavedWebsite {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.SavedWebsite, len(c.sites))
	copy(out, c.sites)
	return out
}

// Save stores a new website with the catalog service.
func (c *Catalog) Save(ctx context.Context, draft domain.WebsiteDraft) (domain.SavedWebsite, error) {
	return c.store.Create(ctx, draft)
}

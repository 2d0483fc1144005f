package workers

import (
	"context"
	"fmt"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/common"
)

// IndexRebuilder rebuilds the Redis state index from the history
// store. Use it after losing Redis, or when the index is suspected to
// have missed updates.
type IndexRebuilder struct {
	Context *common.Context

	// Catalog, if not nil, is synced after the reset so that objects
	// never checked are due again.
	Catalog fixity.Catalog
}

func NewIndexRebuilder(_context *common.Context) *IndexRebuilder {
	rebuilder := &IndexRebuilder{Context: _context}
	if _context.S3Registry != nil {
		rebuilder.Catalog = _context.S3Registry
	}
	return rebuilder
}

// Run clears the index, registers the catalog, and replays every
// record. It returns the number of records replayed.
func (r *IndexRebuilder) Run(ctx context.Context) (int, error) {
	log := r.Context.Logger
	log.Warning("Clearing the fixity state index")
	if err := r.Context.RedisClient.Reset(ctx); err != nil {
		return 0, fmt.Errorf("cannot reset state index: %w", err)
	}
	if r.Catalog != nil {
		count, err := fixity.SyncCatalog(ctx, r.Catalog, r.Context.RedisClient)
		if err != nil {
			return 0, fmt.Errorf("catalog sync stopped after %d objects: %w", count, err)
		}
		log.Infof("Registered %d objects from the catalog", count)
	}
	applied, err := r.Context.RedisClient.RebuildFrom(ctx, r.Context.History)
	if err != nil {
		return applied, fmt.Errorf("rebuild stopped after %d records: %w", applied, err)
	}
	log.Infof("Replayed %d check records into the state index", applied)
	return applied, nil
}

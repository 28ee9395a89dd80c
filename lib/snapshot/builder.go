package snapshot

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/phantom/lib/record"
	"github.com/ValentinKolb/phantom/lib/recordstore"
)

// Document is the aggregate view served to readers.
type Document struct {
	Objects  []record.Object  `json:"objects"`
	Messages []record.Message `json:"messages"`
	Phantoms []record.Phantom `json:"phantoms"`
}

// BuilderConfig bounds the size of a snapshot.
type BuilderConfig struct {
	RecentLimit  int // most recent objects and messages
	PhantomLimit int // randomly sampled phantoms
}

// DefaultBuilderConfig returns the limits of the public snapshot.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		RecentLimit:  recordstore.DefaultRecentLimit,
		PhantomLimit: recordstore.DefaultPhantomLimit,
	}
}

// Builder queries the record store for the bounded views of a snapshot.
type Builder struct {
	store  recordstore.IRecordStore
	config BuilderConfig
}

// NewBuilder creates a builder. Non-positive limits fall back to the
// defaults.
func NewBuilder(store recordstore.IRecordStore, config BuilderConfig) *Builder {
	defaults := DefaultBuilderConfig()
	if config.RecentLimit <= 0 {
		config.RecentLimit = defaults.RecentLimit
	}
	if config.PhantomLimit <= 0 {
		config.PhantomLimit = defaults.PhantomLimit
	}
	return &Builder{store: store, config: config}
}

// Build runs the three snapshot queries. It only reads from the store. Any
// store error fails the whole build.
func (b *Builder) Build(ctx context.Context) (*Document, error) {
	objects, err := b.store.SelectRecentObjects(ctx, b.config.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	messages, err := b.store.SelectRecentMessages(ctx, b.config.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	phantoms, err := b.store.SelectRandomPhantoms(ctx, b.config.PhantomLimit)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	// empty collections must encode as [] rather than null
	if objects == nil {
		objects = []record.Object{}
	}
	if messages == nil {
		messages = []record.Message{}
	}
	if phantoms == nil {
		phantoms = []record.Phantom{}
	}
	for i := range phantoms {
		if phantoms[i].Data == nil {
			phantoms[i].Data = []record.Pair{}
		}
	}

	return &Document{Objects: objects, Messages: messages, Phantoms: phantoms}, nil
}

package app

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/bridgestore"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/inmemorystore"
	"github.com/vk/flowsync/internal/snapshotstore"
	"github.com/vk/flowsync/internal/units"
)

// CaptureRoot is the subtree a capture copies by default.
var CaptureRoot = attrpath.Build("Data")

// openStore opens the store kind named by cfg. The closer is nil for stores
// that hold no resources.
func openStore(ctx context.Context, cfg *Config, table *units.Table) (attrstore.Store, io.Closer, error) {
	logger := ctxlog.FromContext(ctx)
	switch cfg.Store {
	case StoreMemory:
		s := inmemorystore.New(table)
		if cfg.FixturePath != "" {
			if err := s.LoadFile(cfg.FixturePath); err != nil {
				return nil, nil, fmt.Errorf("failed to load fixture: %w", err)
			}
			logger.Debug("Fixture loaded into memory store.", "path", cfg.FixturePath)
		}
		return s, nil, nil

	case StoreSnapshot:
		sc := snapshotstore.DefaultConfig(cfg.SnapshotPath)
		sc.Logger = logger.With("component", "badger")
		sc.Table = table
		s, err := snapshotstore.Open(sc)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case StoreBridge:
		t, err := bridgestore.Dial(ctx, bridgestore.Config{
			URL:                cfg.BridgeURL,
			Namespace:          cfg.BridgeNamespace,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Timeout:            cfg.BridgeTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		s := bridgestore.New(t)
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store)
}

// Capture copies the subtree at root of the open store into a snapshot
// database at dir. An empty root copies CaptureRoot.
func (a *App) Capture(ctx context.Context, dir, root string) (int, error) {
	if err := a.requireStore(); err != nil {
		return 0, err
	}
	if root == "" {
		root = CaptureRoot
	}
	ctx = a.Context(ctx)
	sc := snapshotstore.DefaultConfig(dir)
	sc.Logger = a.logger.With("component", "badger")
	sc.Table = a.table
	snap, err := snapshotstore.Open(sc)
	if err != nil {
		return 0, err
	}
	defer snap.Close()
	return snap.Capture(ctx, a.store, root)
}

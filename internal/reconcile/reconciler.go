// Package reconcile derives what is currently on the device and how far each article has been read.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

// Lookup resolves ledger entries by id.
type Lookup interface {
	Lookup(id domain.ArticleID) (domain.LedgerEntry, bool)
}

// Snapshot is the device view for one run.
type Snapshot struct {
	Folder string
	// Existing holds every id present by filename, including files whose progress is unknown.
	Existing map[domain.ArticleID]struct{}
	// States holds files whose progress could be read.
	States []domain.DeviceFileState
	// Ignored counts files without a parseable id.
	Ignored int
	// StatFailures counts files excluded from classification.
	StatFailures int
	// Created is true when the folder did not exist and was created.
	Created bool
}

// Reconciler lists the target folder and queries per-file progress.
type Reconciler struct {
	device ports.DeviceStore
	logger *slog.Logger
}

// New wires a device store.
func New(device ports.DeviceStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{device: device, logger: logger}
}

// ListExisting builds the snapshot of folder. A missing folder is created and treated as empty.
func (r *Reconciler) ListExisting(ctx context.Context, folder string, ledger Lookup) (Snapshot, error) {
	snap := Snapshot{Folder: folder, Existing: map[domain.ArticleID]struct{}{}}

	names, err := r.device.List(ctx, folder)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Info("device folder missing, creating it", "folder", folder)
		if err := r.device.Mkdir(ctx, folder); err != nil {
			return Snapshot{}, fmt.Errorf("create folder %s: %w", folder, err)
		}
		snap.Created = true
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("list folder %s: %w", folder, err)
	}

	for _, name := range names {
		id, ok := domain.ParseDisplayID(name)
		if !ok {
			snap.Ignored++
			r.logger.Debug("ignoring file without id", "name", name)
			continue
		}
		snap.Existing[id] = struct{}{}

		remote := path.Join(folder, name)
		stat, err := r.device.Stat(ctx, remote)
		if err != nil {
			snap.StatFailures++
			r.logger.Warn("progress query failed, keeping id as existing", "id", id, "path", remote, "error", err)
			continue
		}

		state := domain.DeviceFileState{
			ID:          id,
			Name:        name,
			Path:        remote,
			CurrentPage: stat.CurrentPage,
			NumPages:    r.resolvePages(id, stat, ledger),
		}
		r.logger.Debug("device file",
			"id", id,
			"page", state.CurrentPage+1,
			"pages", state.NumPages,
			"state", state.Classify(),
		)
		snap.States = append(snap.States, state)
	}

	return snap, nil
}

func (r *Reconciler) resolvePages(id domain.ArticleID, stat domain.FileStat, ledger Lookup) int {
	var entry domain.LedgerEntry
	var known bool
	if ledger != nil {
		entry, known = ledger.Lookup(id)
	}
	switch {
	case known && entry.NumPages > 0:
		if stat.PageCount > 0 && stat.PageCount != entry.NumPages {
			r.logger.Warn("page count mismatch, trusting ledger", "id", id, "ledger", entry.NumPages, "device", stat.PageCount)
		}
		return entry.NumPages
	case stat.PageCount > 0:
		return stat.PageCount
	default:
		return 0
	}
}

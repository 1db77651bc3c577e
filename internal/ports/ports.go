package ports

import (
	"context"
	"time"

	"ReaderSync/internal/domain"
)

// FeedSource pages through the reader inbox of the content provider.
type FeedSource interface {
	Subscriptions(ctx context.Context) ([]domain.Publication, error)
	// Posts returns up to limit items published before after; a zero after starts at the newest item.
	Posts(ctx context.Context, limit int, after time.Time) (domain.PostPage, error)
}

// DeviceStore lists, reads progress of, uploads and removes files on the reading device.
type DeviceStore interface {
	// List returns file names in folder, or an error wrapping domain.ErrNotFound when the folder is absent.
	List(ctx context.Context, folder string) ([]string, error)
	Mkdir(ctx context.Context, folder string) error
	Put(ctx context.Context, localPath, folder string) error
	Stat(ctx context.Context, remotePath string) (domain.FileStat, error)
	Remove(ctx context.Context, remotePath string) error
}

// PageRenderer turns a remote article into a paginated document at outputPath.
// It returns the page count and leaves no file behind on failure.
type PageRenderer interface {
	Render(ctx context.Context, sourceURL, outputPath string, budget *RetryBudget) (int, error)
}

// LedgerStore persists the full delivery ledger as one document.
type LedgerStore interface {
	Load(ctx context.Context) (map[domain.ArticleID]domain.LedgerEntry, error)
	Save(ctx context.Context, entries map[domain.ArticleID]domain.LedgerEntry) error
}

// Reauthenticator refreshes credentials after a collaborator reported domain.ErrAuthRequired.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Notifier streams run summaries to an operator channel.
type Notifier interface {
	PublishReport(ctx context.Context, report domain.RunReport) error
}

// Scheduler controls when sync runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

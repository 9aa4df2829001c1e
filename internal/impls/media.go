package impls

import (
	"context"

	"github.com/magicaleks/onionfetch/internal/domain"
)

// CookieStore keeps a pool of session-cookie files.
type CookieStore interface {
	Generate(ctx context.Context) error
	Random() (string, error)
}

// MediaFetcher downloads a single link into the output directory.
type MediaFetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) error
}

// ResultPackager archives produced files and removes them from disk.
type ResultPackager interface {
	Pack(dir string) ([]byte, error)
}

// BatchRunner runs whole batches and reports their progress.
type BatchRunner interface {
	Download(ctx context.Context, links []string) domain.BatchResult
	Progress() domain.Progress
}

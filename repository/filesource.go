package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/fsnotify/fsnotify"
)

// FileSource reads the payload from a local JSON file: pre-fetched
// injection for air-gapped hosts, tests, and the CLI. Watch turns file
// writes into push updates.
type FileSource struct {
	Path string
}

func (f *FileSource) Fetch(_ context.Context, _ string) (*Fetched, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("repository: read payload file: %w", err)
	}
	p, err := payload.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Fetched{Payload: p}, nil
}

// Watch ingests the file into repo whenever it changes, until ctx is done.
// The watch is on the parent directory so atomic rename-into-place saves
// (editors, config management tools) are picked up.
func (f *FileSource) Watch(ctx context.Context, repo *Repository) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("repository: watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("repository: watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fetched, err := f.Fetch(ctx, "")
			if err != nil {
				// Partial writes show up as decode errors; the next event
				// for the completed write will succeed.
				continue
			}
			repo.Ingest(fetched.Payload, fetched.ETag)
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

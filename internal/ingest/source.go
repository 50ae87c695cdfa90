package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NamedFile is one export file's name and contents.
type NamedFile struct {
	Name string
	Data []byte
}

// Source supplies export files for one or more properties. The orchestrator
// treats every source as best-effort: a failing source is recorded and the
// batch proceeds. Implementations must honor ctx cancellation; the
// orchestrator applies a bounded timeout per source.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]NamedFile, error)
}

// DirSource reads every .csv file from a directory, the manual/sample-data
// ingestion path.
type DirSource struct {
	Dir string
}

func (d DirSource) Name() string { return "dir:" + d.Dir }

func (d DirSource) Fetch(ctx context.Context) ([]NamedFile, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", d.Dir, err)
	}
	var files []NamedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(d.Dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		files = append(files, NamedFile{Name: e.Name(), Data: data})
	}
	return files, nil
}

// fetchWithTimeout wraps a source fetch in the per-source deadline. A
// timeout surfaces as an ordinary per-source failure.
func fetchWithTimeout(ctx context.Context, src Source, timeout time.Duration) ([]NamedFile, error) {
	if timeout <= 0 {
		return src.Fetch(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return src.Fetch(ctx)
}

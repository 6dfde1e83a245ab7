// Package persist stores finished runs: a JSON result bundle plus the
// rendered Markdown report, on disk and optionally in Postgres.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/mohammad-safakhou/ideascope/internal/report"
)

// ErrExists is returned when an artifact for the run is already on disk.
var ErrExists = errors.New("artifact already exists")

// FileStore writes artifacts under Dir.
type FileStore struct {
	Dir    string
	logger *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &FileStore{Dir: dir, logger: logger}
}

// BaseName is the artifact name shared by the bundle and the report.
func BaseName(b report.Bundle) string {
	return fmt.Sprintf("%s-%s", b.RunID, b.FinishedAt.UTC().Format("20060102T150405Z"))
}

// Save implements pipeline.Sink.
func (f *FileStore) Save(ctx context.Context, res pipeline.Result) error {
	_, _, err := f.Write(ctx, report.NewBundle(res))
	return err
}

// Write renders b and writes both files. Nothing is written if either
// target already exists or the report cannot be rendered.
func (f *FileStore) Write(ctx context.Context, b report.Bundle) (string, string, error) {
	if b.RunID == "" {
		return "", "", fmt.Errorf("run_id required")
	}
	md, err := report.Render(b)
	if err != nil {
		return "", "", err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", f.Dir, err)
	}
	base := filepath.Join(f.Dir, BaseName(b))
	jsonPath, mdPath := base+".json", base+".md"
	for _, p := range []string{jsonPath, mdPath} {
		if _, err := os.Stat(p); err == nil {
			return "", "", fmt.Errorf("%s: %w", p, ErrExists)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if err := writeOnce(jsonPath, data); err != nil {
		return "", "", err
	}
	if err := writeOnce(mdPath, []byte(md)); err != nil {
		_ = os.Remove(jsonPath)
		return "", "", err
	}
	f.logger.Printf("run %s saved to %s", b.RunID, strings.TrimSuffix(jsonPath, ".json"))
	return jsonPath, mdPath, nil
}

// writeOnce writes through a temp file in the same directory and links it
// into place, so readers never see a partial file and an existing file is
// never replaced.
func writeOnce(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", path, err)
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Link(name, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("place %s: %w", path, err)
	}
	return nil
}

// Read loads a bundle previously written by Write.
func Read(path string) (report.Bundle, error) {
	var b report.Bundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decode %s: %w", path, err)
	}
	return b, nil
}

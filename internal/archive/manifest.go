package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "manifest.json"

// ManifestEntry describes one finalized batch file.
type ManifestEntry struct {
	Filename   string  `json:"filename"`
	ArticleIDs []int64 `json:"article_ids"`
	Count      int     `json:"count"`
	CreatedAt  string  `json:"created_at"`
}

// Manifest is the per-month inventory sitting next to the batch files.
type Manifest struct {
	Source  string          `json:"source"`
	Month   string          `json:"month"`
	Batches []ManifestEntry `json:"batches"`
}

// loadManifest reads the month directory's manifest, returning an empty one
// when none exists yet.
func loadManifest(dir, source, month string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{Source: source, Month: month}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// appendManifest records one finalized batch in the month's manifest.
func appendManifest(dir, source, month, filename string, articleIDs []int64) error {
	m, err := loadManifest(dir, source, month)
	if err != nil {
		return err
	}

	m.Batches = append(m.Batches, ManifestEntry{
		Filename:   filename,
		ArticleIDs: articleIDs,
		Count:      len(articleIDs),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

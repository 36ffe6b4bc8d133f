package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/helios-suite/helios/internal/shared"
)

// Source yields raw descriptor records for the catalog to parse. A Source
// must return every record it holds; per-record validity is the catalog's
// concern.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// FSSource reads descriptor JSON files from a tree with one subdirectory per
// client-interface tag (admin/, client/, api/). Used for the embedded
// defaults and in tests.
type FSSource struct {
	root fs.FS
}

// NewFSSource wraps a descriptor tree.
func NewFSSource(root fs.FS) *FSSource {
	return &FSSource{root: root}
}

// Load scans each interface subtree. A missing root or interface directory
// listing failure is fatal: without the built-in descriptors no system role
// could ever resolve.
func (s *FSSource) Load(ctx context.Context) ([]Record, error) {
	if _, err := fs.Stat(s.root, "."); err != nil {
		return nil, fmt.Errorf("catalog: descriptor root missing: %w", err)
	}

	var records []Record
	for _, tag := range shared.Interfaces() {
		entries, err := fs.ReadDir(s.root, tag)
		if err != nil {
			// A tag with no descriptors is fine; only the root is mandatory.
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			body, err := fs.ReadFile(s.root, path.Join(tag, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("catalog: read %s/%s: %w", tag, entry.Name(), err)
			}
			records = append(records, Record{
				Interface: tag,
				Slug:      strings.TrimSuffix(entry.Name(), ".json"),
				Body:      body,
			})
		}
	}
	return records, nil
}

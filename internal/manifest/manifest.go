// Package manifest lists the files a session produced with their digests.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/sdrmodel/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	Session   string    `json:"session,omitempty"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// Build hashes every path. Missing files are an error.
func Build(session string, paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), Session: session, ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, fmt.Errorf("hash %s: %w", p, err)
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: fileType(p)})
	}
	return m, nil
}

func fileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cap":
		return "capture"
	case ".jsonl":
		return "events"
	case ".parquet":
		return "meters"
	case ".json":
		return "snapshot"
	case ".pdf":
		return "report"
	case ".log":
		return "log"
	default:
		return "other"
	}
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// Verify rehashes every item and returns the paths whose size or digest no
// longer match.
func Verify(m Manifest) ([]string, error) {
	var changed []string
	for _, it := range m.Items {
		hex, sz, err := common.Sha256OfFile(it.Path)
		if err != nil {
			if os.IsNotExist(err) {
				changed = append(changed, it.Path)
				continue
			}
			return changed, err
		}
		if hex != it.Sha256 || sz != it.Size {
			changed = append(changed, it.Path)
		}
	}
	return changed, nil
}

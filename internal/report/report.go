// Package report renders model snapshots as JSON and PDF session reports.
package report

import (
	"encoding/json"
	"os"

	"example.com/sdrmodel/internal/radio"
)

func SaveSnapshotJSON(snap radio.Snapshot, out string) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSnapshotJSON(path string) (radio.Snapshot, error) {
	var snap radio.Snapshot
	b, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(b, &snap)
	return snap, err
}

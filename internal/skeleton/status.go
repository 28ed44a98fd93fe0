package skeleton

import (
	"encoding/json"
	"os"

	"github.com/starford/skeletab/internal/models"
)

// ReadStatus returns the status field of the sidecar at path. It reports
// false when the file cannot be read or decoded or carries no string status.
func ReadStatus(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var probe struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", false
	}
	var status string
	if err := json.Unmarshal(probe.Status, &status); err != nil {
		return "", false
	}
	return status, true
}

// EntryStatus computes the inventory status for a table whose sidecar is at
// skeletonPath ("" when there is none).
func EntryStatus(skeletonPath string) string {
	if skeletonPath == "" {
		return models.StatusNotStarted
	}
	if status, ok := ReadStatus(skeletonPath); ok && status != "" {
		return status
	}
	return models.StatusInProgress
}

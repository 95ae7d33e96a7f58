package mail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BodyStore keeps raw analysis bodies on disk, one file per message. The
// returned reference is the file name, not the full path, so the storage
// root can move without invalidating stored records.
type BodyStore struct {
	dir string
}

// NewBodyStore creates the storage directory if needed
func NewBodyStore(dir string) (*BodyStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create body store dir: %w", err)
	}
	return &BodyStore{dir: dir}, nil
}

// Save writes the body and returns its reference
func (s *BodyStore) Save(messageID, body string) (string, error) {
	name := sanitizeRef(messageID) + ".txt"
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("failed to write body: %w", err)
	}
	return name, nil
}

// Load reads a body by reference
func (s *BodyStore) Load(ref string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(ref)))
	if err != nil {
		return "", fmt.Errorf("failed to read body %s: %w", ref, err)
	}
	return string(data), nil
}

func sanitizeRef(messageID string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "<", "", ">", "", ":", "_", " ", "_")
	return replacer.Replace(messageID)
}

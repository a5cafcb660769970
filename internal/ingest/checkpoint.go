package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Checkpoint persists the highest entry id already ingested.
type Checkpoint struct {
	mu   sync.Mutex
	path string
}

func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// Last returns the stored id, or 0 when the file is missing or unreadable.
func (c *Checkpoint) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// Advance stores id if it is greater than the current value.
func (c *Checkpoint) Advance(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id <= c.read() {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func (c *Checkpoint) read() int64 {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

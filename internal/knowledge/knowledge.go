// Package knowledge reads the optional local context snippet injected into
// model calls as supplementary reference material.
package knowledge

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"
)

// Cache reads one fixed-path text resource at call time. The file is not
// held in memory between calls, so it can be swapped out while the bot runs.
type Cache struct {
	path string
}

// New creates a Cache for the given path.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Snippet returns the file's full text, or "" when the file is missing or
// effectively empty. A missing file is the expected no-context case; any
// other read error is logged and likewise treated as no context.
func (c *Cache) Snippet() string {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("knowledge: read %s: %v (continuing without context)", c.path, err)
		}
		return ""
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}

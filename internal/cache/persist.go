package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"relayd/internal/common/fsutil"
	"relayd/internal/content"
)

// snapshotRecord is one value of the snapshot object, keyed by ref.
type snapshotRecord struct {
	FilePath  string `json:"file_path"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	SizeBytes uint64 `json:"size_bytes"`
}

// Snapshot writes the index to path as a JSON object whose keys appear from
// least to most recently used.
func (c *Cache) Snapshot(path string) error {
	entries := c.Entries()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.Ref))
		if err != nil {
			return err
		}
		val, err := json.Marshal(snapshotRecord{
			FilePath:  e.Path,
			Title:     e.Title,
			Thumbnail: e.Thumbnail,
			SizeBytes: e.SizeBytes,
		})
		if err != nil {
			return err
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	if len(entries) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	c.log.Info().Str("event", "snapshot").Str("path", path).Int("entries", len(entries)).Msg("cache index written")
	return nil
}

// Restore loads a snapshot written by Snapshot, keeping its recency order.
// Entries whose file is gone are skipped. A missing snapshot restores
// nothing. The restored total is trimmed to the budget.
func (c *Cache) Restore(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Info().Str("event", "restore").Str("path", path).Msg("no cache snapshot")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open cache snapshot: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("read cache snapshot: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return 0, fmt.Errorf("read cache snapshot: expected object, got %v", tok)
	}
	var loaded []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, fmt.Errorf("read cache snapshot: %w", err)
		}
		key, _ := tok.(string)
		var rec snapshotRecord
		if err := dec.Decode(&rec); err != nil {
			return 0, fmt.Errorf("read cache snapshot entry %q: %w", key, err)
		}
		if key == "" || rec.FilePath == "" || !fsutil.PathExists(rec.FilePath) {
			c.log.Warn().Str("event", "restore_skip").Str("ref", key).Str("path", rec.FilePath).Msg("cached file missing, skipping")
			continue
		}
		loaded = append(loaded, Entry{
			Ref:      content.Ref(key),
			Metadata: content.Metadata{Title: rec.Title, Thumbnail: rec.Thumbnail, SizeBytes: rec.SizeBytes},
			Path:     rec.FilePath,
		})
	}

	c.mu.Lock()
	for _, e := range loaded {
		c.insertLocked(e)
	}
	c.downsizeLocked(c.budget)
	n := c.order.Len()
	c.mu.Unlock()

	c.log.Info().Str("event", "restore").Str("path", path).Int("entries", n).Msg("cache index restored")
	return n, nil
}

// Package apk handles the APK container: the entry table over the ZIP
// archive, plus metadata extraction from the manifest, the archive's entry
// list and the signing certificate.
package apk

import (
	"fmt"
	"os"
	"strings"

	"github.com/aetherlink/dexedit/internal/archive"
)

// FileEntry is one file carried by the container.
type FileEntry struct {
	Name  string
	Data  []byte
	IsDir bool
}

// Container is an editable APK: all entries are held decompressed in
// memory and re-encoded on save, so add/replace/delete are plain slice
// operations.
type Container struct {
	entries []FileEntry
}

// Open reads an APK from disk and decompresses every entry.
func Open(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apk: %w", err)
	}
	return OpenBytes(data)
}

// OpenBytes reads an APK from a byte buffer.
func OpenBytes(data []byte) (*Container, error) {
	r, err := archive.NewReader(data)
	if err != nil {
		return nil, fmt.Errorf("apk: %w", err)
	}
	c := &Container{}
	for _, e := range r.Entries() {
		content, err := r.Extract(e.Name)
		if err != nil {
			// Damaged entries are dropped rather than failing the whole
			// archive; repacked APKs in the wild carry them.
			continue
		}
		c.entries = append(c.entries, FileEntry{
			Name:  e.Name,
			Data:  content,
			IsDir: strings.HasSuffix(e.Name, "/"),
		})
	}
	return c, nil
}

// New returns an empty container.
func New() *Container { return &Container{} }

// List returns entry names in archive order.
func (c *Container) List() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Extract returns a copy of the named entry's content.
func (c *Container) Extract(name string) ([]byte, error) {
	for _, e := range c.entries {
		if e.Name == name {
			return append([]byte(nil), e.Data...), nil
		}
	}
	return nil, fmt.Errorf("apk: entry %q not found", name)
}

// Replace swaps the content of an existing entry.
func (c *Container) Replace(name string, data []byte) error {
	for i := range c.entries {
		if c.entries[i].Name == name {
			c.entries[i].Data = data
			return nil
		}
	}
	return fmt.Errorf("apk: entry %q not found", name)
}

// Add appends a new entry; adding over an existing name is an error.
func (c *Container) Add(name string, data []byte) error {
	for _, e := range c.entries {
		if e.Name == name {
			return fmt.Errorf("apk: entry %q already exists", name)
		}
	}
	c.entries = append(c.entries, FileEntry{Name: name, Data: data})
	return nil
}

// Delete removes the named entry.
func (c *Container) Delete(name string) error {
	for i := range c.entries {
		if c.entries[i].Name == name {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("apk: entry %q not found", name)
}

// DeleteMatching removes every entry whose name contains pattern and
// returns how many were removed.
func (c *Container) DeleteMatching(pattern string) int {
	kept := c.entries[:0]
	removed := 0
	for _, e := range c.entries {
		if strings.Contains(e.Name, pattern) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	return removed
}

// Bytes re-encodes the container as an aligned APK archive.
func (c *Container) Bytes() ([]byte, error) {
	var w archive.Writer
	for _, e := range c.entries {
		if e.IsDir {
			continue
		}
		if err := w.Add(e.Name, e.Data); err != nil {
			return nil, err
		}
	}
	return w.Finalize(), nil
}

// Save writes the re-encoded archive to disk.
func (c *Container) Save(path string) error {
	data, err := c.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("apk: %w", err)
	}
	return nil
}

package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/workq/internal/types"
)

// ItemFileExt is the extension of item files under the items directory.
const ItemFileExt = ".md"

const frontMatterDelim = "---\n"

// Filename returns the canonical filename for an item: {id}.md
func Filename(id string) string {
	return id + ItemFileExt
}

// ValidateID rejects identifiers that cannot be used as a filename.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// EncodeItem renders an item as YAML front matter followed by the
// description as the document body.
func EncodeItem(item *types.WorkItem) ([]byte, error) {
	normalized := item.Clone()
	meta, err := yaml.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item %s: %w", item.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim)
	buf.Write(meta)
	buf.WriteString(frontMatterDelim)
	buf.WriteString(normalized.Description)
	return buf.Bytes(), nil
}

// DecodeItem parses the output of EncodeItem. The body after the closing
// delimiter is taken verbatim as the description.
func DecodeItem(data []byte) (*types.WorkItem, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontMatterDelim) {
		return nil, fmt.Errorf("missing front matter")
	}
	rest := content[len(frontMatterDelim):]

	var meta, body string
	if strings.HasPrefix(rest, frontMatterDelim) {
		// Empty front matter.
		body = rest[len(frontMatterDelim):]
	} else {
		end := strings.Index(rest, "\n"+frontMatterDelim)
		if end < 0 {
			return nil, fmt.Errorf("unterminated front matter")
		}
		meta = rest[:end+1]
		body = rest[end+1+len(frontMatterDelim):]
	}

	var item types.WorkItem
	if err := yaml.Unmarshal([]byte(meta), &item); err != nil {
		return nil, fmt.Errorf("failed to parse front matter: %w", err)
	}
	item.Description = body
	item.Normalize()

	if err := ValidateID(item.ID); err != nil {
		return nil, err
	}
	return &item, nil
}

// ReadItemFile reads and parses one item file.
func ReadItemFile(path string) (*types.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read item file %s: %w", path, err)
	}
	item, err := DecodeItem(data)
	if err != nil {
		return nil, fmt.Errorf("invalid item file %s: %w", path, err)
	}
	return item, nil
}

// WriteItemFile writes item to dir/{id}.md atomically via a temp file.
func WriteItemFile(dir string, item *types.WorkItem) error {
	if err := ValidateID(item.ID); err != nil {
		return fmt.Errorf("cannot write item: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create items directory: %w", err)
	}

	data, err := EncodeItem(item)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, Filename(item.ID))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write item file %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename item file %s: %w", path, err)
	}
	return nil
}

// RemoveItemFile deletes dir/{id}.md. A missing file is not an error.
func RemoveItemFile(dir, id string) error {
	path := filepath.Join(dir, Filename(id))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove item file %s: %w", path, err)
	}
	return nil
}

// ReadAllItemFiles reads every item file in dir.
// Invalid files are skipped with a warning to stderr.
func ReadAllItemFiles(dir string) ([]*types.WorkItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.WorkItem{}, nil
		}
		return nil, fmt.Errorf("failed to read items directory: %w", err)
	}

	items := make([]*types.WorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ItemFileExt) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		item, err := ReadItemFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid item file %s: %v\n", entry.Name(), err)
			continue
		}
		if Filename(item.ID) != entry.Name() {
			fmt.Fprintf(os.Stderr, "Warning: skipping item file %s: id %q does not match filename\n", entry.Name(), item.ID)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

package fsclient

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"pacsgo/dataset"
)

// indexFilename sits inside the source directory next to the datasets.
const indexFilename = ".pacsgo_index"

// instanceEntry caches the parsed attributes of one file. The content
// hash invalidates the cache when the file changes underneath us.
type instanceEntry struct {
	Path  string
	Hash  string
	Attrs map[string]string
}

type index struct {
	Instances map[string]instanceEntry
}

func newIndex() *index {
	return &index{Instances: make(map[string]instanceEntry)}
}

// loadIndex reads a previously saved index, or returns an empty one.
func loadIndex(dir string) *index {
	f, err := os.Open(filepath.Join(dir, indexFilename))
	if err != nil {
		return newIndex()
	}
	defer f.Close()

	idx := newIndex()
	if err := gob.NewDecoder(f).Decode(idx); err != nil {
		return newIndex()
	}
	return idx
}

func (idx *index) save(dir string) error {
	f, err := os.Create(filepath.Join(dir, indexFilename))
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(idx)
}

// refresh walks dir, parsing files that are new or changed and dropping
// entries whose files disappeared. Only .dcm files are considered.
func (idx *index) refresh(dir string) error {
	byPath := make(map[string]instanceEntry, len(idx.Instances))
	for _, e := range idx.Instances {
		byPath[e.Path] = e
	}

	fresh := newIndex()
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(info.Name(), ".dcm") {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(raw)
		hash := hex.EncodeToString(sum[:])

		if prev, ok := byPath[path]; ok && prev.Hash == hash {
			if uid := prev.Attrs["SOPInstanceUID"]; uid != "" {
				fresh.Instances[uid] = prev
			}
			return nil
		}

		attrs, err := dataset.ReadAttributes(path)
		if err != nil {
			// Unreadable files are skipped, not fatal.
			return nil
		}
		uid, ok := attrs.Get("SOPInstanceUID")
		if !ok || uid == "" {
			return nil
		}
		flat := make(map[string]string, attrs.Len())
		for _, k := range attrs.Keys() {
			v, _ := attrs.Get(k)
			flat[k] = v
		}
		fresh.Instances[uid] = instanceEntry{Path: path, Hash: hash, Attrs: flat}
		return nil
	})
	if err != nil {
		return err
	}
	idx.Instances = fresh.Instances
	return nil
}

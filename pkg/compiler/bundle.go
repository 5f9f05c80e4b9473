// Package compiler turns a gated ontology version into a deployable
// artifact bundle: the semantic-model YAML plus verify, deploy, rollback
// and export scripts. Compilation is pure - identical inputs always
// produce bundles with identical content hashes.
package compiler

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// File is a single artifact in a bundle.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// MetadataPath is the one bundle file excluded from content addressing:
// it records the hash itself plus the creation timestamp.
const MetadataPath = "metadata.json"

// Bundle is an ordered set of compiled artifacts. Files stay sorted by
// path so serialization and hashing are reproducible.
type Bundle struct {
	Files []File `json:"files"`
}

// File returns the file at path, or nil.
func (b *Bundle) File(path string) *File {
	for i := range b.Files {
		if b.Files[i].Path == path {
			return &b.Files[i]
		}
	}
	return nil
}

// SetFile inserts or replaces a file, keeping the path ordering.
func (b *Bundle) SetFile(path, content string) {
	if f := b.File(path); f != nil {
		f.Content = content
		return
	}
	b.Files = append(b.Files, File{Path: path, Content: content})
	sort.Slice(b.Files, func(i, j int) bool { return b.Files[i].Path < b.Files[j].Path })
}

// RemoveFile drops a file if present.
func (b *Bundle) RemoveFile(path string) {
	for i := range b.Files {
		if b.Files[i].Path == path {
			b.Files = append(b.Files[:i], b.Files[i+1:]...)
			return
		}
	}
}

// Hash content-addresses the bundle: SHA-256 over "path:content" lines of
// every canonical file, sorted by path. metadata.json is excluded since
// it records this hash and the creation time.
func (b *Bundle) Hash() string {
	files := append([]File(nil), b.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var sb strings.Builder
	for _, f := range files {
		if f.Path == MetadataPath {
			continue
		}
		fmt.Fprintf(&sb, "%s:%s\n", f.Path, f.Content)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// WriteZip streams the bundle as a zip archive, files in path order.
func (b *Bundle) WriteZip(w io.Writer) error {
	files := append([]File(nil), b.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	zw := zip.NewWriter(w)
	for _, f := range files {
		entry, err := zw.Create(f.Path)
		if err != nil {
			return fmt.Errorf("failed to create zip entry %s: %w", f.Path, err)
		}
		if _, err := entry.Write([]byte(f.Content)); err != nil {
			return fmt.Errorf("failed to write zip entry %s: %w", f.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip: %w", err)
	}
	return nil
}

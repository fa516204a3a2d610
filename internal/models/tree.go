// Package models defines the archive-tree model: a JSON-serializable
// mirror of what the traversal saw: which files, inside which archives,
// inside which directories. It exists purely for diagnostics (--tree
// output); the verification code never depends on it.
package models

import (
	"encoding/json"
	"fmt"
)

// File is one regular file discovered during traversal. SHA256 is the hex
// digest of its content, filled in once the file has been hashed.
type File struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Archive is an archive that was extracted and descended into. The digest
// fields describe the archive file itself; Files and Archives describe its
// extracted contents, keyed by entry path.
type Archive struct {
	Name     string              `json:"name"`
	Size     int64               `json:"size"`
	SHA256   string              `json:"sha256,omitempty"`
	Files    map[string]*File    `json:"files"`
	Archives map[string]*Archive `json:"archives"`
}

// NewArchive returns an empty Archive node for the archive file at name.
func NewArchive(name string, size int64) *Archive {
	return &Archive{
		Name:     name,
		Size:     size,
		Files:    make(map[string]*File),
		Archives: make(map[string]*Archive),
	}
}

// AddFile records a file found inside the archive.
func (a *Archive) AddFile(path string, f *File) {
	a.Files[path] = f
}

// AddArchive records a nested archive found inside the archive.
func (a *Archive) AddArchive(path string, nested *Archive) {
	a.Archives[path] = nested
}

// Directory is a directory root. Files and Archives are keyed by path
// relative to it.
type Directory struct {
	Path     string              `json:"directory"`
	Files    map[string]*File    `json:"files"`
	Archives map[string]*Archive `json:"archives"`
}

// NewDirectory returns an empty Directory node rooted at path.
func NewDirectory(path string) *Directory {
	return &Directory{
		Path:     path,
		Files:    make(map[string]*File),
		Archives: make(map[string]*Archive),
	}
}

// AddFile records a file found under the directory.
func (d *Directory) AddFile(path string, f *File) {
	d.Files[path] = f
}

// AddArchive records an archive found under the directory.
func (d *Directory) AddArchive(path string, a *Archive) {
	d.Archives[path] = a
}

// Collection is one traversal root: a single file, an archive, or a
// directory. Exactly one member is set.
type Collection struct {
	File      *File
	Archive   *Archive
	Directory *Directory
}

// MarshalJSON serializes the set member directly, without a wrapper object,
// so the output reads as the thing itself. An empty Collection marshals as
// null.
func (c Collection) MarshalJSON() ([]byte, error) {
	switch {
	case c.File != nil:
		return json.Marshal(c.File)
	case c.Archive != nil:
		return json.Marshal(c.Archive)
	case c.Directory != nil:
		return json.Marshal(c.Directory)
	default:
		return []byte("null"), nil
	}
}

// Kind names the set member, for log lines.
func (c Collection) Kind() string {
	switch {
	case c.File != nil:
		return "file"
	case c.Archive != nil:
		return "archive"
	case c.Directory != nil:
		return "directory"
	default:
		return "empty"
	}
}

// String renders the collection as indented JSON for debug output.
func (c Collection) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unserializable collection: %v>", err)
	}
	return string(data)
}

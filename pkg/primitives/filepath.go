package primitives

import (
	"os"
	"path/filepath"
)

// Filepath is a type-safe wrapper around file paths used throughout the
// engine for index and storage files.
type Filepath string

// Join appends path elements to this path.
func (f Filepath) Join(elems ...string) Filepath {
	parts := append([]string{string(f)}, elems...)
	return Filepath(filepath.Join(parts...))
}

// Exists reports whether a file exists at this path.
func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// Remove deletes the file at this path.
func (f Filepath) Remove() error {
	return os.Remove(string(f))
}

func (f Filepath) String() string {
	return string(f)
}

package util

import (
	"os"
	"path/filepath"
	"sort"
)

// ListFiles lists the regular files directly inside a directory.
//
// Sub-directories are ignored and no extension filter is applied: callers decide
// whether a file is usable by trying to decode it.
//
// Arguments:
// - dir: Directory path to list.
//
// Returns:
// - []string: Full paths of the files, sorted by name.
// - error: Error if the directory cannot be read.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Package migrations embeds the SQL schema for the database backends.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// SQLite embeds the migration files for the SQLite backend.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres embeds the migration files for the Postgres backend.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// File is one versioned migration.
type File struct {
	Version int
	Name    string
	SQL     string
}

// Load reads the migrations under dir in fsys ordered by version. Files that
// do not follow the NNN_name.sql pattern are skipped.
func Load(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := ParseVersion(e.Name())
		if err != nil {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		files = append(files, File{Version: version, Name: e.Name(), SQL: string(data)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// ParseVersion extracts the version number from a migration filename like "001_initial.sql".
func ParseVersion(name string) (int, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	var version int
	_, err := fmt.Sscanf(parts[0], "%d", &version)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return version, nil
}

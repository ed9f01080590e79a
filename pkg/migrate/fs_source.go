package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
)

var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FSSource reads migrations named NNN_name.up.sql / NNN_name.down.sql from a file system,
// typically an embed.FS, and records versions in a SQLite table
type FSSource struct {
	fsys  fs.FS
	dir   string
	table string
}

// NewFSSource returns a source reading dir of fsys. table defaults to schema_migrations.
func NewFSSource(fsys fs.FS, dir, table string) *FSSource {
	if table == "" {
		table = "schema_migrations"
	}
	if dir == "" {
		dir = "."
	}
	return &FSSource{fsys: fsys, dir: dir, table: table}
}

// Migrations parses every migration file under the directory
func (s *FSSource) Migrations() ([]Migration, error) {
	byVersion := make(map[int]*Migration)

	err := fs.WalkDir(s.fsys, s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		m := migrationFile.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("invalid version number in file %s: %w", d.Name(), err)
		}
		content, err := fs.ReadFile(s.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", path, err)
		}

		mg, ok := byVersion[version]
		if !ok {
			mg = &Migration{Version: version, Name: strings.ReplaceAll(m[2], "_", " ")}
			byVersion[version] = mg
		}
		if m[3] == "up" {
			mg.Up = string(content)
		} else {
			mg.Down = string(content)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", s.dir, err)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mg := range byVersion {
		out = append(out, *mg)
	}
	return out, nil
}

// EnsureVersionTable creates the version table if needed
func (s *FSSource) EnsureVersionTable(db DB) error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, s.table))
	return err
}

// CurrentVersion returns the highest recorded version
func (s *FSSource) CurrentVersion(db DB) (int, error) {
	var version int
	if err := db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", s.table)).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion records version as applied; 0 clears the table. Versions above the new one are
// removed so a rollback lowers MAX(version).
func (s *FSSource) SetVersion(db DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE version > ?", s.table), version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	if version == 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)", s.table), version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}

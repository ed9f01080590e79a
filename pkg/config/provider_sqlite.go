package config

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chrissnell/fragsize/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteProvider implements ConfigProvider for a SQLite database holding a key/value settings
// table and a ladders table
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the database at dbPath, creating and migrating it if needed
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	m := migrate.NewMigrator(db, migrate.NewFSSource(migrations, "migrations", "config_migrations"), nil)
	if err := m.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// setting binds a settings key to a ConfigData field
type setting struct {
	key string
	get func(c *ConfigData) string
	set func(c *ConfigData, v string) error
}

func stringSetting(key string, field func(c *ConfigData) *string) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) string { return *field(c) },
		set: func(c *ConfigData, v string) error { *field(c) = v; return nil },
	}
}

func intSetting(key string, field func(c *ConfigData) *int) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) string { return strconv.Itoa(*field(c)) },
		set: func(c *ConfigData, v string) error {
			n, err := strconv.Atoi(v)
			*field(c) = n
			return err
		},
	}
}

func floatSetting(key string, field func(c *ConfigData) *float64) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *ConfigData, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			*field(c) = f
			return err
		},
	}
}

func boolSetting(key string, field func(c *ConfigData) *bool) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) string { return strconv.FormatBool(*field(c)) },
		set: func(c *ConfigData, v string) error {
			b, err := strconv.ParseBool(v)
			*field(c) = b
			return err
		},
	}
}

var settings = []setting{
	stringSetting("marker_channel", func(c *ConfigData) *string { return &c.MarkerChannel }),
	{
		key: "sample_channels",
		get: func(c *ConfigData) string { return strings.Join(c.SampleChannels, ",") },
		set: func(c *ConfigData, v string) error {
			c.SampleChannels = []string{}
			for _, ch := range strings.Split(v, ",") {
				if ch = strings.TrimSpace(ch); ch != "" {
					c.SampleChannels = append(c.SampleChannels, ch)
				}
			}
			return nil
		},
	},
	stringSetting("ladder", func(c *ConfigData) *string { return &c.Ladder }),

	intSetting("detection.ignore_before", func(c *ConfigData) *int { return &c.Detection.IgnoreBefore }),
	floatSetting("detection.min_height", func(c *ConfigData) *float64 { return &c.Detection.MinHeight }),
	floatSetting("detection.min_prominence", func(c *ConfigData) *float64 { return &c.Detection.MinProminence }),
	intSetting("detection.min_distance", func(c *ConfigData) *int { return &c.Detection.MinDistance }),
	floatSetting("detection.max_width", func(c *ConfigData) *float64 { return &c.Detection.MaxWidth }),
	boolSetting("detection.correct_baseline", func(c *ConfigData) *bool { return &c.Detection.CorrectBaseline }),
	intSetting("detection.baseline_chunks", func(c *ConfigData) *int { return &c.Detection.BaselineChunks }),
	floatSetting("detection.template_tolerance", func(c *ConfigData) *float64 { return &c.Detection.TemplateTolerance }),
	floatSetting("detection.snap_distance", func(c *ConfigData) *float64 { return &c.Detection.SnapDistance }),

	floatSetting("extraction.min_height", func(c *ConfigData) *float64 { return &c.Extraction.MinHeight }),
	floatSetting("extraction.prominence_ratio", func(c *ConfigData) *float64 { return &c.Extraction.ProminenceRatio }),
	{
		key: "extraction.parallel",
		get: func(c *ConfigData) string {
			return strconv.FormatBool(c.Extraction.Parallel == nil || *c.Extraction.Parallel)
		},
		set: func(c *ConfigData, v string) error {
			b, err := strconv.ParseBool(v)
			c.Extraction.Parallel = &b
			return err
		},
	},

	stringSetting("storage.session_db", func(c *ConfigData) *string { return &c.Storage.SessionDB }),
	{
		key: "storage.archive.connection_string",
		get: func(c *ConfigData) string {
			if c.Storage.Archive == nil {
				return ""
			}
			return c.Storage.Archive.ConnectionString
		},
		set: func(c *ConfigData, v string) error {
			if v != "" {
				c.Storage.Archive = &ArchiveData{ConnectionString: v}
			}
			return nil
		},
	},

	stringSetting("server.listen_addr", func(c *ConfigData) *string { return &c.Server.ListenAddr }),
	intSetting("server.port", func(c *ConfigData) *int { return &c.Server.Port }),
	stringSetting("server.cert", func(c *ConfigData) *string { return &c.Server.Cert }),
	stringSetting("server.key", func(c *ConfigData) *string { return &c.Server.Key }),

	boolSetting("log.debug", func(c *ConfigData) *bool { return &c.Log.Debug }),
	stringSetting("log.file", func(c *ConfigData) *string { return &c.Log.File }),
	intSetting("log.max_size_mb", func(c *ConfigData) *int { return &c.Log.MaxSizeMB }),
	intSetting("log.max_backups", func(c *ConfigData) *int { return &c.Log.MaxBackups }),
}

// LoadConfig loads the complete configuration from the database. Keys that are not stored keep
// their defaults.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	values, err := s.getSettings()
	if err != nil {
		return nil, err
	}

	config := Defaults()
	for _, st := range settings {
		v, ok := values[st.key]
		if !ok {
			continue
		}
		if err := st.set(config, v); err != nil {
			return nil, fmt.Errorf("invalid value %q for setting %s: %w", v, st.key, err)
		}
	}

	ladders, err := s.GetLadders()
	if err != nil {
		return nil, fmt.Errorf("failed to load ladders: %w", err)
	}
	config.Ladders = ladders

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *SQLiteProvider) getSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// GetLadders returns the configured ladders ordered by name
func (s *SQLiteProvider) GetLadders() ([]LadderData, error) {
	rows, err := s.db.Query("SELECT name, sizes FROM ladders ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query ladders: %w", err)
	}
	defer rows.Close()

	var ladders []LadderData
	for rows.Next() {
		var l LadderData
		var sizes string
		if err := rows.Scan(&l.Name, &sizes); err != nil {
			return nil, fmt.Errorf("failed to scan ladder row: %w", err)
		}
		if err := json.Unmarshal([]byte(sizes), &l.Sizes); err != nil {
			return nil, fmt.Errorf("invalid sizes for ladder %s: %w", l.Name, err)
		}
		ladders = append(ladders, l)
	}
	return ladders, rows.Err()
}

// SaveConfig replaces the stored configuration with config
func (s *SQLiteProvider) SaveConfig(config *ConfigData) error {
	if err := config.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range settings {
		if _, err := tx.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", st.key, st.get(config)); err != nil {
			return fmt.Errorf("failed to store setting %s: %w", st.key, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM ladders"); err != nil {
		return fmt.Errorf("failed to clear ladders: %w", err)
	}
	for _, l := range config.Ladders {
		sizes, err := json.Marshal(l.Sizes)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO ladders (name, sizes) VALUES (?, ?)", l.Name, string(sizes)); err != nil {
			return fmt.Errorf("failed to store ladder %s: %w", l.Name, err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false; the database can be written with SaveConfig
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteProvider) Path() string {
	return s.dbPath
}

// Package config loads fragsize settings from a YAML file or a SQLite database.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData is the complete configuration
type ConfigData struct {
	MarkerChannel  string         `json:"marker_channel,omitempty"`
	SampleChannels []string       `json:"sample_channels,omitempty"`
	Ladder         string         `json:"ladder,omitempty"`
	Detection      DetectionData  `json:"detection"`
	Extraction     ExtractionData `json:"extraction"`
	Ladders        []LadderData   `json:"ladders,omitempty"`
	Storage        StorageData    `json:"storage"`
	Server         ServerData     `json:"server"`
	Log            LogData        `json:"log"`
}

// DetectionData holds the marker-channel peak detection and assignment settings
type DetectionData struct {
	IgnoreBefore      int     `json:"ignore_before"`
	MinHeight         float64 `json:"min_height"`
	MinProminence     float64 `json:"min_prominence"`
	MinDistance       int     `json:"min_distance"`
	MaxWidth          float64 `json:"max_width"`
	CorrectBaseline   bool    `json:"correct_baseline"`
	BaselineChunks    int     `json:"baseline_chunks"`
	TemplateTolerance float64 `json:"template_tolerance"`
	SnapDistance      float64 `json:"snap_distance"`
}

// ExtractionData holds the sample-channel peak extraction settings
type ExtractionData struct {
	MinHeight       float64 `json:"min_height"`
	ProminenceRatio float64 `json:"prominence_ratio"`
	// Parallel is a pointer so an explicit false survives defaulting
	Parallel *bool `json:"parallel,omitempty"`
}

// LadderData is a size standard defined in configuration
type LadderData struct {
	Name  string    `json:"name"`
	Sizes []float64 `json:"sizes"`
}

// StorageData holds the session store and run archive settings
type StorageData struct {
	SessionDB string       `json:"session_db,omitempty"`
	Archive   *ArchiveData `json:"archive,omitempty"`
}

// ArchiveData configures the PostgreSQL run archive
type ArchiveData struct {
	ConnectionString string `json:"connection_string"`
}

// ServerData configures the REST and gRPC listener
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
}

// LogData configures logging
type LogData struct {
	Debug      bool   `json:"debug,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Default values
const (
	DefaultIgnoreBefore      = 1500
	DefaultMinHeight         = 50
	DefaultMinProminence     = 25
	DefaultMinDistance       = 10
	DefaultBaselineChunks    = 30
	DefaultTemplateTolerance = 40
	DefaultSnapDistance      = 20
	DefaultExtractHeight     = 100
	DefaultProminenceRatio   = 0.25
	DefaultListenAddr        = "0.0.0.0"
	DefaultPort              = 8080
	DefaultSessionDB         = "fragsize-sessions.db"
)

// Defaults returns a configuration with every default applied
func Defaults() *ConfigData {
	cfg := &ConfigData{
		Detection: DetectionData{
			IgnoreBefore:  DefaultIgnoreBefore,
			MinHeight:     DefaultMinHeight,
			MinProminence: DefaultMinProminence,
			MinDistance:   DefaultMinDistance,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values. Detection thresholds are left alone because zero is a valid
// setting for them; Defaults sets their starting values.
func (c *ConfigData) ApplyDefaults() {
	if c.SampleChannels == nil {
		c.SampleChannels = []string{}
	}
	if c.Detection.BaselineChunks == 0 {
		c.Detection.BaselineChunks = DefaultBaselineChunks
	}
	if c.Detection.TemplateTolerance == 0 {
		c.Detection.TemplateTolerance = DefaultTemplateTolerance
	}
	if c.Detection.SnapDistance == 0 {
		c.Detection.SnapDistance = DefaultSnapDistance
	}
	if c.Extraction.MinHeight == 0 {
		c.Extraction.MinHeight = DefaultExtractHeight
	}
	if c.Extraction.ProminenceRatio == 0 {
		c.Extraction.ProminenceRatio = DefaultProminenceRatio
	}
	if c.Extraction.Parallel == nil {
		parallel := true
		c.Extraction.Parallel = &parallel
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.SessionDB == "" {
		c.Storage.SessionDB = DefaultSessionDB
	}
}

// Validate reports every invalid setting at once
func (c *ConfigData) Validate() error {
	var errs []error

	d := c.Detection
	if d.IgnoreBefore < 0 {
		errs = append(errs, fmt.Errorf("detection.ignore_before must not be negative"))
	}
	if d.MinHeight < 0 || d.MinProminence < 0 || d.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("detection thresholds must not be negative"))
	}
	if d.MinDistance < 0 {
		errs = append(errs, fmt.Errorf("detection.min_distance must not be negative"))
	}
	if d.BaselineChunks < 1 {
		errs = append(errs, fmt.Errorf("detection.baseline_chunks must be positive"))
	}
	if d.TemplateTolerance <= 0 || d.SnapDistance < 0 {
		errs = append(errs, fmt.Errorf("detection.template_tolerance must be positive and snap_distance not negative"))
	}
	if c.Extraction.MinHeight < 0 || c.Extraction.ProminenceRatio < 0 {
		errs = append(errs, fmt.Errorf("extraction thresholds must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		errs = append(errs, fmt.Errorf("server.cert and server.key must be set together"))
	}
	for _, l := range c.Ladders {
		if strings.TrimSpace(l.Name) == "" || len(l.Sizes) == 0 {
			errs = append(errs, fmt.Errorf("ladder %q needs a name and sizes", l.Name))
		}
	}

	return errors.Join(errs...)
}

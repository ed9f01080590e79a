package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// ConfigYAML mirrors ConfigData with YAML tags
type ConfigYAML struct {
	MarkerChannel  string         `yaml:"marker_channel,omitempty"`
	SampleChannels []string       `yaml:"sample_channels,omitempty"`
	Ladder         string         `yaml:"ladder,omitempty"`
	Detection      *DetectionYAML `yaml:"detection,omitempty"`
	Extraction     ExtractionYAML `yaml:"extraction,omitempty"`
	Ladders        []LadderYAML   `yaml:"ladders,omitempty"`
	Storage        StorageYAML    `yaml:"storage,omitempty"`
	Server         ServerYAML     `yaml:"server,omitempty"`
	Log            LogYAML        `yaml:"log,omitempty"`
}

// DetectionYAML uses pointers so unset thresholds keep their defaults while an explicit 0 is kept
type DetectionYAML struct {
	IgnoreBefore      *int     `yaml:"ignore_before,omitempty"`
	MinHeight         *float64 `yaml:"min_height,omitempty"`
	MinProminence     *float64 `yaml:"min_prominence,omitempty"`
	MinDistance       *int     `yaml:"min_distance,omitempty"`
	MaxWidth          float64  `yaml:"max_width,omitempty"`
	CorrectBaseline   bool     `yaml:"correct_baseline,omitempty"`
	BaselineChunks    int      `yaml:"baseline_chunks,omitempty"`
	TemplateTolerance float64  `yaml:"template_tolerance,omitempty"`
	SnapDistance      float64  `yaml:"snap_distance,omitempty"`
}

type ExtractionYAML struct {
	MinHeight       float64 `yaml:"min_height,omitempty"`
	ProminenceRatio float64 `yaml:"prominence_ratio,omitempty"`
	Parallel        *bool   `yaml:"parallel,omitempty"`
}

type LadderYAML struct {
	Name  string    `yaml:"name"`
	Sizes []float64 `yaml:"sizes"`
}

type StorageYAML struct {
	SessionDB string       `yaml:"session_db,omitempty"`
	Archive   *ArchiveYAML `yaml:"archive,omitempty"`
}

type ArchiveYAML struct {
	ConnectionString string `yaml:"connection_string"`
}

type ServerYAML struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
}

type LogYAML struct {
	Debug      bool   `yaml:"debug,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// LoadConfig loads the complete configuration from the YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML converts YAML configuration to ConfigData with defaults applied
func ParseYAML(data []byte) (*ConfigData, error) {
	var yc ConfigYAML
	if err := yaml.UnmarshalStrict(data, &yc); err != nil {
		return nil, err
	}

	config := Defaults()
	config.MarkerChannel = yc.MarkerChannel
	config.SampleChannels = append([]string{}, yc.SampleChannels...)
	config.Ladder = yc.Ladder

	if d := yc.Detection; d != nil {
		if d.IgnoreBefore != nil {
			config.Detection.IgnoreBefore = *d.IgnoreBefore
		}
		if d.MinHeight != nil {
			config.Detection.MinHeight = *d.MinHeight
		}
		if d.MinProminence != nil {
			config.Detection.MinProminence = *d.MinProminence
		}
		if d.MinDistance != nil {
			config.Detection.MinDistance = *d.MinDistance
		}
		config.Detection.MaxWidth = d.MaxWidth
		config.Detection.CorrectBaseline = d.CorrectBaseline
		config.Detection.BaselineChunks = d.BaselineChunks
		config.Detection.TemplateTolerance = d.TemplateTolerance
		config.Detection.SnapDistance = d.SnapDistance
	}

	config.Extraction = ExtractionData{
		MinHeight:       yc.Extraction.MinHeight,
		ProminenceRatio: yc.Extraction.ProminenceRatio,
		Parallel:        yc.Extraction.Parallel,
	}

	for _, l := range yc.Ladders {
		config.Ladders = append(config.Ladders, LadderData{Name: l.Name, Sizes: l.Sizes})
	}

	config.Storage = StorageData{SessionDB: yc.Storage.SessionDB}
	if yc.Storage.Archive != nil {
		config.Storage.Archive = &ArchiveData{ConnectionString: yc.Storage.Archive.ConnectionString}
	}

	config.Server = ServerData{
		ListenAddr: yc.Server.ListenAddr,
		Port:       yc.Server.Port,
		Cert:       yc.Server.Cert,
		Key:        yc.Server.Key,
	}
	config.Log = LogData{
		Debug:      yc.Log.Debug,
		File:       yc.Log.File,
		MaxSizeMB:  yc.Log.MaxSizeMB,
		MaxBackups: yc.Log.MaxBackups,
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// IsReadOnly returns true since YAML files are treated as read-only
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

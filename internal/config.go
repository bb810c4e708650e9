package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	PictureExt   []string `mapstructure:"picture_extensions"`
	RawExt       []string `mapstructure:"raw_extensions"`
	VideoExt     []string `mapstructure:"video_extensions"`
	SidecarExt   []string `mapstructure:"sidecar_extensions"`
	CompanionExt []string `mapstructure:"companion_extensions"`

	HashChunkSize  int    `mapstructure:"hash_chunk_size"`
	HashChunkCount int    `mapstructure:"hash_chunk_count"`
	HashAlgorithm  string `mapstructure:"hash_algorithm"`

	Workers     int    `mapstructure:"workers"`
	UseExifTool bool   `mapstructure:"use_exiftool"`
	Snapshot    string `mapstructure:"snapshot"`
	StateDir    string `mapstructure:"state_dir"`
	LogFile     string `mapstructure:"log_file"`
	Verbose     bool   `mapstructure:"verbose"`
}

func stateDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	return filepath.Join(configDir, "photocleanup")
}

func setDefaults(v *viper.Viper) {
	dir := stateDir()
	v.SetDefault("picture_extensions", defaultPictureExt)
	v.SetDefault("raw_extensions", defaultRawExt)
	v.SetDefault("video_extensions", defaultVideoExt)
	v.SetDefault("sidecar_extensions", defaultSidecarExt)
	v.SetDefault("companion_extensions", defaultCompanionExt)
	v.SetDefault("hash_chunk_size", defaultChunkSize)
	v.SetDefault("hash_chunk_count", defaultChunkCount)
	v.SetDefault("hash_algorithm", string(HashSHA256))
	v.SetDefault("workers", 4)
	v.SetDefault("use_exiftool", false)
	v.SetDefault("state_dir", dir)
	v.SetDefault("snapshot", filepath.Join(dir, "snapshot.json"))
	v.SetDefault("log_file", "")
	v.SetDefault("verbose", false)
}

// DefaultConfig returns the built-in configuration without reading any file.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// LoadConfig reads photocleanup.toml from the user config dir, or the file at
// path when it is not empty. A missing file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PHOTOCLEANUP")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("photocleanup")
		v.SetConfigType("toml")
		v.AddConfigPath(stateDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch HashAlgorithm(cfg.HashAlgorithm) {
	case HashSHA256, HashBLAKE3:
	default:
		return nil, fmt.Errorf("unsupported hash_algorithm %q", cfg.HashAlgorithm)
	}

	return &cfg, nil
}

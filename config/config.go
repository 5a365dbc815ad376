// Package config loads volume settings from a YAML file and the environment.
// The environment wins.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-flatfs/common"
	"github.com/mit-pdos/go-flatfs/fs"
)

const EnvVarPrefix = "FLATFS"

type Config struct {
	Image       string `envconfig:"IMAGE"        yaml:"image"`
	TotalBlocks int64  `envconfig:"TOTAL_BLOCKS" yaml:"totalBlocks"`
	Files       uint64 `envconfig:"FILES"        yaml:"files"`
	Debug       uint64 `envconfig:"DEBUG"        yaml:"debug"`
}

func Default() Config {
	return Config{
		Image:       "flatfs.img",
		TotalBlocks: 1000,
		Files:       64,
	}
}

// Load reads the file named by FLATFS_CONFIG_FILE, if set, and then the
// FLATFS_* variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvVarPrefix + "_CONFIG_FILE"))
}

// LoadFile is Load with an explicit file. A missing file, or an empty path,
// leaves the defaults in place.
func LoadFile(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("missing required configuration: image / %s_IMAGE",
			EnvVarPrefix)
	}
	if c.TotalBlocks < 2 || c.TotalBlocks > int64(common.MAXBLOCKS) {
		return fmt.Errorf("totalBlocks %d: must be between 2 and %d",
			c.TotalBlocks, common.MAXBLOCKS)
	}
	if limit := fs.MaxFiles(uint64(c.TotalBlocks)); c.Files == 0 || c.Files > limit {
		return fmt.Errorf("files %d: must be between 1 and %d", c.Files, limit)
	}
	return nil
}

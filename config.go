package pubfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

type ServerConfig struct {
	Net            string `yaml:"net" toml:"net"`
	Address        string `yaml:"address" toml:"address"`
	RootDir        string `yaml:"root_dir" toml:"root_dir"`
	ReadTimeoutSec int    `yaml:"read_timeout_sec" toml:"read_timeout_sec"`
	Chroot         bool   `yaml:"chroot" toml:"chroot"`
	Uid            int    `yaml:"uid" toml:"uid"`
	Gid            int    `yaml:"gid" toml:"gid"`
}

type Config struct {
	Global Global       `yaml:"global" toml:"global"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

// LoadConfig reads a TOML or YAML configuration file, dispatching on the
// file suffix, and fills in defaults for anything left unset. An empty
// address selects inetd mode: the connection is expected on stdin/stdout.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	switch {
	case strings.HasSuffix(filePath, ".toml"):
		err = toml.Unmarshal(file, config)
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		err = yaml.Unmarshal(file, config)
	default:
		err = fmt.Errorf("unsupported config format: %s", filePath)
	}
	if err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, validateConfig(config)
}

func applyDefaults(config *Config) {
	if config.Global.LogLevel == "" {
		config.Global.LogLevel = "info"
	}
	if config.Server.Net == "" {
		config.Server.Net = "tcp"
	}
	if config.Server.RootDir == "" {
		config.Server.RootDir = "."
	}
	if config.Server.ReadTimeoutSec == 0 {
		config.Server.ReadTimeoutSec = 60
	}
}

func validateConfig(config *Config) error {
	if config.Server.ReadTimeoutSec < 0 {
		return fmt.Errorf("read_timeout_sec must be non-negative, got %d", config.Server.ReadTimeoutSec)
	}
	if config.Server.Chroot && config.Server.RootDir == "." {
		return fmt.Errorf("chroot requires an explicit root_dir")
	}
	return nil
}

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".kmon"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Prompt printed before every command line.
	Prompt string `yaml:"prompt"`
	// HistoryFile keeps the command line history between sessions.
	HistoryFile string `yaml:"history-file"`

	// MaxFrames bounds the number of frames a backtrace will walk. Values
	// above 256 are treated as 256.
	MaxFrames int `yaml:"max-frames"`
	// StackLow and StackHigh delimit the addresses a frame pointer may
	// take. Both zero disables the range check.
	StackLow  uint64 `yaml:"stack-low"`
	StackHigh uint64 `yaml:"stack-high"`

	// KernBase is subtracted from virtual addresses to get physical ones.
	KernBase uint64 `yaml:"kernbase"`

	// DebugInfoCacheSize is the number of address lookups kept in memory.
	DebugInfoCacheSize int `yaml:"debuginfo-cache-size"`

	// Color enables ANSI colors when the output is a terminal.
	Color bool `yaml:"color"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Prompt:             "K> ",
		HistoryFile:        "/tmp/kmon_history.txt",
		MaxFrames:          64,
		KernBase:           0x8004000000,
		DebugInfoCacheSize: 1024,
		Color:              true,
	}
}

// Load reads the configuration at path over the defaults. An empty path
// selects ~/.kmon/config.yml, which is created with commented defaults
// the first time.
func Load(path string) (*Config, error) {
	if path == "" {
		if err := createConfigPath(); err != nil {
			return nil, fmt.Errorf("could not create config directory: %w", err)
		}
		fullConfigFile, err := GetConfigFilePath(configFile)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
			if err := createDefaultConfig(fullConfigFile); err != nil {
				return nil, err
			}
		}
		path = fullConfigFile
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %w", err)
	}
	return Parse(data)
}

// Parse decodes a yaml document over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %w", err)
	}
	if c.StackHigh < c.StackLow {
		return nil, fmt.Errorf("stack-high 0x%x below stack-low 0x%x", c.StackHigh, c.StackLow)
	}
	if c.MaxFrames < 0 {
		return nil, fmt.Errorf("max-frames must not be negative")
	}
	return c, nil
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %w", err)
	}
	defer f.Close()
	if err := writeDefaultConfig(f); err != nil {
		return fmt.Errorf("unable to write default configuration: %w", err)
	}
	return nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the kmon kernel monitor.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# prompt: "K> "
# history-file: /tmp/kmon_history.txt

# Maximum number of frames printed by backtrace before the walk is
# reported as a possible stack corruption.
# max-frames: 64

# Frame pointers outside [stack-low, stack-high) stop the backtrace.
# stack-low: 0x8004000000
# stack-high: 0x8004200000

# kernbase: 0x8004000000

# debuginfo-cache-size: 1024

# color: true
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}

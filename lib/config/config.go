// Copyright 2026 The Composed Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for composed. Values resolve in
// three layers: built-in defaults, then the YAML file, then COMPOSED_*
// environment variables.
type Config struct {
	// ContainersBase is the directory under which composition
	// directories live; a composition named "app" is expected at
	// <ContainersBase>/app with its compose file inside.
	ContainersBase string `yaml:"containers_base" env:"COMPOSED_CONTAINERS_BASE"`

	// DefaultToDirOwner runs rootless operations as the owner of the
	// composition directory when no user is given explicitly.
	DefaultToDirOwner *bool `yaml:"default_to_dirowner" env:"COMPOSED_DEFAULT_TO_DIROWNER"`

	// DefaultPodPrefix and DefaultContainerPrefix override the unit
	// name prefixes podman generates ("pod" and "container"). Empty
	// means keep podman's defaults; prefixes can also be set to the
	// empty string per project.
	DefaultPodPrefix       string `yaml:"default_pod_prefix" env:"COMPOSED_DEFAULT_POD_PREFIX"`
	DefaultContainerPrefix string `yaml:"default_container_prefix" env:"COMPOSED_DEFAULT_CONTAINER_PREFIX"`

	// Separator joins the prefix and the project name in generated
	// unit names.
	Separator string `yaml:"separator" env:"COMPOSED_SEPARATOR"`

	// Timeout bounds the verification poll after starting or stopping
	// a composition.
	Timeout time.Duration `yaml:"timeout" env:"COMPOSED_TIMEOUT"`

	// PollInterval is the delay between verification probes.
	PollInterval time.Duration `yaml:"poll_interval" env:"COMPOSED_POLL_INTERVAL"`
}

// Default returns the built-in configuration. A missing config file is
// not an error; these values alone are a working setup.
func Default() *Config {
	dirOwner := true
	return &Config{
		ContainersBase:    "/opt/containers",
		DefaultToDirOwner: &dirOwner,
		Timeout:           10 * time.Second,
		PollInterval:      250 * time.Millisecond,
	}
}

// Load resolves configuration from the path given, or from the
// COMPOSED_CONFIG environment variable when path is empty. With
// neither set, defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("COMPOSED_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error

	if c.ContainersBase == "" {
		errs = append(errs, fmt.Errorf("containers_base is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.PollInterval > c.Timeout {
		errs = append(errs, fmt.Errorf("poll_interval %v exceeds timeout %v", c.PollInterval, c.Timeout))
	}

	return errors.Join(errs...)
}

// DirOwnerDefault reports whether operations should fall back to the
// composition directory's owner when no user is configured.
func (c *Config) DirOwnerDefault() bool {
	return c.DefaultToDirOwner == nil || *c.DefaultToDirOwner
}

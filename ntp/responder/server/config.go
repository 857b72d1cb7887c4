/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultServerIP is the address server binds to if nothing else is specified
var DefaultServerIP = net.ParseIP("0.0.0.0")

// Config is a server config structure
type Config struct {
	ExtraOffset    time.Duration
	IP             net.IP
	MonitoringPort int
	Port           int
	RefID          string
	Stratum        int
	Workers        int
}

// fileConfig mirrors Config with field types yaml can parse directly
type fileConfig struct {
	ExtraOffset string `yaml:"extraoffset"`
	IP          string `yaml:"ip"`
	Port        *int   `yaml:"port"`
	RefID       string `yaml:"refid"`
	Stratum     *int   `yaml:"stratum"`
	Workers     *int   `yaml:"workers"`
}

// Load overlays values from a YAML config file on top of current config
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	fc := &fileConfig{}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if fc.IP != "" {
		ip := net.ParseIP(fc.IP)
		if ip == nil {
			return fmt.Errorf("invalid ip address %q", fc.IP)
		}
		c.IP = ip
	}
	if fc.ExtraOffset != "" {
		offset, err := time.ParseDuration(fc.ExtraOffset)
		if err != nil {
			return fmt.Errorf("invalid extraoffset: %w", err)
		}
		c.ExtraOffset = offset
	}
	if fc.RefID != "" {
		c.RefID = fc.RefID
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.Stratum != nil {
		c.Stratum = *fc.Stratum
	}
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	return nil
}

// SetDefaultIP binds to the wildcard address unless an IP was configured
func (c *Config) SetDefaultIP() {
	if c.IP == nil {
		c.IP = DefaultServerIP
	}
}

// Validate checks if config is valid
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("will not start without workers")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Stratum < 1 || c.Stratum > 15 {
		return fmt.Errorf("invalid stratum %d", c.Stratum)
	}
	if len(c.RefID) > 4 {
		return fmt.Errorf("refid %q is longer than 4 characters", c.RefID)
	}
	return nil
}

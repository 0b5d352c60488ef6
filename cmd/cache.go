// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// cacheEntry is the last port a device answered on
type cacheEntry struct {
	Port     string    `yaml:"port"`
	Baud     int       `yaml:"baud"`
	Firmware string    `yaml:"firmware,omitempty"`
	Model    string    `yaml:"model,omitempty"`
	Updated  time.Time `yaml:"updated"`
}

// portCache remembers the last working port in a YAML file. It is owned
// by the CLI; nothing in the device packages reads it.
type portCache struct {
	path string
}

func newPortCache(path string) *portCache {
	return &portCache{path: path}
}

// Load returns the cached entry. A missing or unreadable file is a miss.
func (c *portCache) Load() (cacheEntry, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return cacheEntry{}, false
	}
	var e cacheEntry
	if err := yaml.Unmarshal(data, &e); err != nil || e.Port == "" || e.Baud <= 0 {
		return cacheEntry{}, false
	}
	return e, true
}

// Save writes e, stamping the update time
func (c *portCache) Save(e cacheEntry) error {
	e.Updated = time.Now().UTC().Truncate(time.Second)
	data, err := yaml.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to encode port cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Invalidate forgets the cached port
func (c *portCache) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

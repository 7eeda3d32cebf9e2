// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dict

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the growth and rehash tuning of a Dict. It is typically
// embedded in a server's configuration file:
//
//	resize_enabled: true
//	force_resize_ratio: 5
//	rehash_batch: 100
type Config struct {
	// ResizeEnabled allows the table to grow as soon as the load ratio
	// reaches 1, and allows Resize.
	ResizeEnabled bool `yaml:"resize_enabled"`
	// ForceResizeRatio is the load ratio above which the table grows even
	// when ResizeEnabled is false.
	ForceResizeRatio uint64 `yaml:"force_resize_ratio"`
	// RehashBatch is the number of rehash steps RehashFor performs between
	// checks of its time budget.
	RehashBatch int `yaml:"rehash_batch"`
}

// DefaultConfig returns the Config used by a Dict constructed without
// WithConfig.
func DefaultConfig() Config {
	return Config{
		ResizeEnabled:    true,
		ForceResizeRatio: defaultForceResizeRatio,
		RehashBatch:      defaultRehashBatch,
	}
}

// ParseConfig parses a YAML document over DefaultConfig, so absent fields
// keep their default, and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing dict config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports whether the Config is usable.
func (c Config) Validate() error {
	if c.ForceResizeRatio == 0 {
		return errors.New("dict config: force_resize_ratio must be positive")
	}
	if c.RehashBatch <= 0 {
		return errors.Errorf("dict config: rehash_batch must be positive, got %d", c.RehashBatch)
	}
	return nil
}

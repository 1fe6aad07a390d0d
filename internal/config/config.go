// Copyright 2025 The devito-go Authors
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

// Package config loads compiler and tuning settings from the environment
// and an optional configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/nogueirapeterson/devito/dle"
	"github.com/nogueirapeterson/devito/jit"
	"github.com/nogueirapeterson/devito/operator"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "STENCIL"

// Config holds the settings shared by every operator a process builds.
type Config struct {
	CC         string
	OpenMP     bool
	CacheDir   string
	March      string
	Check      bool
	DSE        string
	DLE        string
	BlockSizes []int
	Squeezer   int
	LogLevel   slog.Level
}

func defaults(v *viper.Viper) {
	v.SetDefault("cc", "gcc")
	v.SetDefault("openmp", false)
	v.SetDefault("cache_dir", filepath.Join(os.TempDir(), "stencil-jit"))
	v.SetDefault("march", "native")
	v.SetDefault("check", false)
	v.SetDefault("dse", "advanced")
	v.SetDefault("dle", "advanced")
	v.SetDefault("at_blocksizes", "8 16 24 32 40 64 128")
	v.SetDefault("at_squeezer", 3)
	v.SetDefault("log_level", "info")
}

// New returns a viper instance reading STENCIL_* variables with defaults
// set. Callers may bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	defaults(v)
	return v
}

// Load reads the settings. The file named by path, or by STENCIL_CONFIG when
// path is empty, overrides the defaults; the environment overrides both.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	c := &Config{
		CC:       v.GetString("cc"),
		OpenMP:   v.GetBool("openmp"),
		CacheDir: v.GetString("cache_dir"),
		March:    v.GetString("march"),
		Check:    v.GetBool("check"),
		DSE:      v.GetString("dse"),
		DLE:      v.GetString("dle"),
		Squeezer: v.GetInt("at_squeezer"),
	}
	for _, s := range v.GetStringSlice("at_blocksizes") {
		for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			n, err := strconv.Atoi(f)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("config: at_blocksizes: invalid block size %q", f)
			}
			c.BlockSizes = append(c.BlockSizes, n)
		}
	}
	if c.Squeezer <= 0 {
		return nil, fmt.Errorf("config: at_squeezer must be positive, got %d", c.Squeezer)
	}
	if err := c.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	if _, err := dle.ParseMode(c.DLE); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Toolchain returns the compiler the settings describe.
func (c *Config) Toolchain(logger *slog.Logger) *jit.Toolchain {
	return &jit.Toolchain{
		CC:       c.CC,
		March:    c.March,
		OpenMP:   c.OpenMP,
		CacheDir: c.CacheDir,
		Check:    c.Check,
		Logger:   logger,
	}
}

// Options returns the operator options the settings describe. Loop options
// other than parallelism keep their defaults.
func (c *Config) Options(logger *slog.Logger) []operator.Option {
	return []operator.Option{
		operator.WithCompiler(c.Toolchain(logger)),
		operator.WithLogger(logger),
		operator.WithDSE(c.DSE),
		operator.WithDLE(c.DLE, dle.Options{}),
		operator.WithAutotune(c.BlockSizes, c.Squeezer),
	}
}

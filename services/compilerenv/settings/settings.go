// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings holds the global configuration consulted by the
// compiler environment bootstrap.
//
// Values come from, in increasing priority: built-in defaults, a YAML
// file, and WEBDEMO_* environment variables. Two values are outputs rather
// than inputs: the resolved standard-library installation root and the
// resolved runtime library location. The bootstrap writes them back so
// that other components can read them without repeating discovery.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"
)

// Default marker resources of the runtime library.
const (
	DefaultDirectoryMarker = "jet/JetObject.class"
	DefaultArchiveMarker   = "kotlin/namespace.class"
)

// Environment variables that override file values.
const (
	EnvStdlibArchive    = "WEBDEMO_RT_JAR"
	EnvJavaHome         = "WEBDEMO_JAVA_HOME"
	EnvRuntimeClasspath = "WEBDEMO_RUNTIME_CLASSPATH"
	EnvSourceEncoding   = "WEBDEMO_SOURCE_ENCODING"
	EnvServerAddr       = "WEBDEMO_ADDR"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Config is the file-backed part of the settings.
type Config struct {
	Stdlib  StdlibConfig  `yaml:"stdlib"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Source  SourceConfig  `yaml:"source"`
	Server  ServerConfig  `yaml:"server"`
}

// StdlibConfig locates the required standard-library archive.
type StdlibConfig struct {
	// Archive is an explicit path to rt.jar. Used as-is when the file exists.
	Archive string `yaml:"archive"`

	// JavaHome is the base directory searched first by discovery.
	JavaHome string `yaml:"java_home"`
}

// RuntimeConfig describes the resource space searched for the runtime
// library.
type RuntimeConfig struct {
	// Classpath lists directories and archives, searched in order.
	Classpath []string `yaml:"classpath" validate:"dive,required"`

	DirectoryMarker string `yaml:"directory_marker" validate:"required,endswith=.class"`
	ArchiveMarker   string `yaml:"archive_marker" validate:"required,endswith=.class"`
}

// SourceConfig controls how submitted sources are decoded.
type SourceConfig struct {
	Encoding string `yaml:"encoding" validate:"required,encoding"`

	// EncodingOverrides maps an extension such as ".java" to an encoding.
	EncodingOverrides map[string]string `yaml:"encoding_overrides" validate:"dive,keys,startswith=.,endkeys,encoding"`
}

// ServerConfig controls the status server and the bootstrap retry loop.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	RetryInitial time.Duration `yaml:"retry_initial" validate:"gt=0"`
	RetryMax     time.Duration `yaml:"retry_max" validate:"gtefield=RetryInitial"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			DirectoryMarker: DefaultDirectoryMarker,
			ArchiveMarker:   DefaultArchiveMarker,
		},
		Source: SourceConfig{Encoding: "UTF-8"},
		Server: ServerConfig{
			Addr:         ":8080",
			RetryInitial: time.Second,
			RetryMax:     time.Minute,
		},
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("encoding", validateEncoding)
}

// validateEncoding accepts any encoding name known to the WHATWG index.
func validateEncoding(fl validator.FieldLevel) bool {
	_, err := htmlindex.Get(fl.Field().String())
	return err == nil
}

// Validate checks c against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Settings is the live configuration plus the written-back outputs.
//
// Thread Safety: safe for concurrent use.
type Settings struct {
	mu     sync.RWMutex
	path   string
	config Config

	installRoot    string
	runtimeLibrary string
}

// New wraps an in-memory Config. The config is validated.
func New(config Config) (*Settings, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Settings{config: config}, nil
}

// Load reads settings from path with priority env > file > defaults.
//
// A missing file is not an error; defaults and the environment still
// apply. An empty path skips the file.
func Load(path string) (*Settings, error) {
	config, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	return &Settings{path: path, config: config}, nil
}

func readConfig(path string) (Config, error) {
	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return config, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return config, fmt.Errorf("read %s: %w", path, err)
		}
	}
	applyEnv(&config)
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(EnvStdlibArchive); v != "" {
		config.Stdlib.Archive = v
	}
	if v := os.Getenv(EnvJavaHome); v != "" {
		config.Stdlib.JavaHome = v
	}
	if v := os.Getenv(EnvRuntimeClasspath); v != "" {
		config.Runtime.Classpath = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvSourceEncoding); v != "" {
		config.Source.Encoding = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		config.Server.Addr = v
	}
}

// Reload re-reads the file and environment. On error the current
// configuration is kept. Written-back outputs are preserved.
func (s *Settings) Reload() error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()

	config, err := readConfig(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.config = config
	s.mu.Unlock()
	return nil
}

// Path returns the file the settings were loaded from, or "".
func (s *Settings) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.config
	c.Runtime.Classpath = append([]string(nil), s.config.Runtime.Classpath...)
	if s.config.Source.EncodingOverrides != nil {
		c.Source.EncodingOverrides = make(map[string]string, len(s.config.Source.EncodingOverrides))
		for k, v := range s.config.Source.EncodingOverrides {
			c.Source.EncodingOverrides[k] = v
		}
	}
	return c
}

// JavaHome returns the configured base path for discovery.
func (s *Settings) JavaHome() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Stdlib.JavaHome
}

// InstallRoot returns the installation root written back by a successful
// standard-library lookup, or "".
func (s *Settings) InstallRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.installRoot
}

// SetInstallRoot records the resolved installation root.
func (s *Settings) SetInstallRoot(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installRoot = dir
}

// RuntimeLibrary returns the runtime library location written back by
// the bootstrap, or "".
func (s *Settings) RuntimeLibrary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtimeLibrary
}

// SetRuntimeLibrary records the resolved runtime library location.
func (s *Settings) SetRuntimeLibrary(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtimeLibrary = path
}

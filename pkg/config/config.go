// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads lumidox settings from a YAML file, LUMIDOX_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LUMIDOX"

// Timeout bounds
const (
	TimeoutMin      = 50 * time.Millisecond
	TimeoutMax      = 30 * time.Second
	ProbeTimeoutMin = 20 * time.Millisecond
	ProbeTimeoutMax = 10 * time.Second
	DelayMin        = 10 * time.Millisecond
	DelayMax        = 10 * time.Second
)

// MaxCurrentLimit is the largest current the 16-bit register holds
const MaxCurrentLimit = 0x7FFF

// SupportedBaudRates lists the rates the device firmware can run at
var SupportedBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

type Config struct {
	Serial     SerialConfig     `mapstructure:"serial"`
	Device     DeviceConfig     `mapstructure:"device"`
	Log        LogConfig        `mapstructure:"log"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
}

type SerialConfig struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	BaudCandidates []int         `mapstructure:"baud_candidates"`
	// AutoBaud is set when no baud was configured. An explicit port is then
	// probed at each of BaudCandidates.
	AutoBaud bool `mapstructure:"-"`
}

type DeviceConfig struct {
	OptimizeTransitions bool          `mapstructure:"optimize_transitions"`
	MaxCurrentMA        int           `mapstructure:"max_current_ma"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	OffDelay            time.Duration `mapstructure:"off_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// Bridge Configuration. An empty URL means a local serial port.
type BridgeConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
}

type TranscriptConfig struct {
	File string `mapstructure:"file"`
}

// New returns a viper instance with every default set and environment
// overrides enabled
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 0)
	v.SetDefault("serial.timeout", lumidox.DefaultTimeout.String())
	v.SetDefault("serial.probe_timeout", lumidox.DefaultProbeTimeout.String())
	v.SetDefault("serial.baud_candidates", lumidox.DefaultBaudCandidates)

	v.SetDefault("device.optimize_transitions", false)
	v.SetDefault("device.max_current_ma", 0)
	v.SetDefault("device.settle_delay", device.DefaultSettleDelay.String())
	v.SetDefault("device.off_delay", device.DefaultOffDelay.String())

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.file", DefaultCacheFile())

	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.username", "admin")
	v.SetDefault("bridge.password", "")
	v.SetDefault("bridge.insecure", false)

	v.SetDefault("transcript.file", "")
}

// DefaultCacheFile returns the port cache location under the user cache dir
func DefaultCacheFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "lumidox-port.yaml"
	}
	return filepath.Join(dir, "lumidox", "port.yaml")
}

// SearchPaths lists the config files tried when no path is given
func SearchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "lumidox", "config.yaml"))
	}
	return append(paths, "lumidox.yaml")
}

// Load reads path (or the first existing search path when path is empty)
// into v and returns the validated configuration. A missing file is only
// an error when path was given explicitly.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		for _, p := range SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills zero values with defaults and rejects out of range settings
func (c *Config) Validate() error {
	s := &c.Serial
	if s.Baud == 0 {
		s.AutoBaud = true
		s.Baud = lumidox.DefaultBaudRate
	} else if !SupportedBaud(s.Baud) {
		return fmt.Errorf("serial.baud %d not supported %v", s.Baud, SupportedBaudRates)
	}
	if len(s.BaudCandidates) == 0 {
		s.BaudCandidates = append([]int(nil), lumidox.DefaultBaudCandidates...)
	}
	for _, b := range s.BaudCandidates {
		if !SupportedBaud(b) {
			return fmt.Errorf("serial.baud_candidates: %d not supported %v", b, SupportedBaudRates)
		}
	}

	if s.Timeout == 0 {
		s.Timeout = lumidox.DefaultTimeout
	} else if s.Timeout < TimeoutMin || s.Timeout > TimeoutMax {
		return fmt.Errorf("serial.timeout out of range [%v, %v]", TimeoutMin, TimeoutMax)
	}
	if s.ProbeTimeout == 0 {
		s.ProbeTimeout = lumidox.DefaultProbeTimeout
	} else if s.ProbeTimeout < ProbeTimeoutMin || s.ProbeTimeout > ProbeTimeoutMax {
		return fmt.Errorf("serial.probe_timeout out of range [%v, %v]", ProbeTimeoutMin, ProbeTimeoutMax)
	}
	if s.ProbeTimeout >= s.Timeout {
		return fmt.Errorf("serial.probe_timeout %v must be shorter than serial.timeout %v", s.ProbeTimeout, s.Timeout)
	}

	d := &c.Device
	if d.MaxCurrentMA < 0 || d.MaxCurrentMA > MaxCurrentLimit {
		return fmt.Errorf("device.max_current_ma %d out of range [0, %d]", d.MaxCurrentMA, MaxCurrentLimit)
	}
	if d.SettleDelay == 0 {
		d.SettleDelay = device.DefaultSettleDelay
	} else if d.SettleDelay < DelayMin || d.SettleDelay > DelayMax {
		return fmt.Errorf("device.settle_delay out of range [%v, %v]", DelayMin, DelayMax)
	}
	if d.OffDelay == 0 {
		d.OffDelay = device.DefaultOffDelay
	} else if d.OffDelay < DelayMin || d.OffDelay > DelayMax {
		return fmt.Errorf("device.off_delay out of range [%v, %v]", DelayMin, DelayMax)
	}

	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}

	if c.Bridge.URL != "" {
		u, err := url.Parse(c.Bridge.URL)
		if err != nil {
			return fmt.Errorf("bridge.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.New("bridge.url must use ws:// or wss://")
		}
	}
	return nil
}

// SupportedBaud reports whether baud is one of SupportedBaudRates
func SupportedBaud(baud int) bool {
	for _, b := range SupportedBaudRates {
		if b == baud {
			return true
		}
	}
	return false
}

// Controller returns the device controller settings
func (c *Config) Controller() device.Config {
	return device.Config{
		OptimizeTransitions: c.Device.OptimizeTransitions,
		MaxCurrentMA:        c.Device.MaxCurrentMA,
		SettleDelay:         c.Device.SettleDelay,
		OffDelay:            c.Device.OffDelay,
	}
}

// BridgeTransport returns the websocket bridge settings
func (c *Config) BridgeTransport() transport.BridgeConfig {
	return transport.BridgeConfig{
		URL:           c.Bridge.URL,
		Username:      c.Bridge.Username,
		Password:      c.Bridge.Password,
		SkipSSLVerify: c.Bridge.Insecure,
		Timeout:       c.Serial.Timeout,
	}
}

// BuildLogger creates the diagnostic logger. Logs go to stderr so command
// output on stdout stays parseable.
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if l.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

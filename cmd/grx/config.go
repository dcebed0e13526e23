package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/drunlade/go-xmodem/serial"
	"github.com/drunlade/go-xmodem/xmodem"
)

type fileConfig struct {
	Device           string `toml:"device"`
	Baud             int    `toml:"baud"`
	DataBits         int    `toml:"data_bits"`
	StopBits         int    `toml:"stop_bits"`
	Parity           string `toml:"parity"`
	FlowControl      string `toml:"flow_control"`
	MaxRetries       int    `toml:"max_retries"`
	MaxErrors        int    `toml:"max_errors"`
	PollTimeout      string `toml:"poll_timeout"`
	RetryDelay       string `toml:"retry_delay"`
	CountFrameErrors bool   `toml:"count_frame_errors"`
	KeepPartial      bool   `toml:"keep_partial"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
}

// runConfig is everything grx needs for one run.
type runConfig struct {
	// Device is the serial device; empty means stdin/stdout
	Device   string
	Mode     serial.Mode
	Session  *xmodem.Config
	LogFile  string
	LogLevel string
}

func defaultRunConfig() runConfig {
	return runConfig{
		Mode:     serial.DefaultMode(),
		Session:  xmodem.DefaultConfig(),
		LogLevel: "debug",
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load grx config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return runConfig{}, fmt.Errorf("load grx config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}

	if meta.IsDefined("baud") {
		cfg.Mode.BaudRate = raw.Baud
	}

	if meta.IsDefined("data_bits") {
		cfg.Mode.DataBits = raw.DataBits
	}

	if meta.IsDefined("stop_bits") {
		cfg.Mode.StopBits = raw.StopBits
	}

	if meta.IsDefined("parity") {
		p, err := serial.ParseParity(raw.Parity)
		if err != nil {
			return runConfig{}, fmt.Errorf("parse parity: %w", err)
		}
		cfg.Mode.Parity = p
	}

	if meta.IsDefined("flow_control") {
		fc, err := serial.ParseFlowControl(raw.FlowControl)
		if err != nil {
			return runConfig{}, fmt.Errorf("parse flow_control: %w", err)
		}
		cfg.Mode.FlowControl = fc
	}

	if meta.IsDefined("max_retries") {
		if raw.MaxRetries <= 0 {
			return runConfig{}, fmt.Errorf("max_retries must be positive, got %d", raw.MaxRetries)
		}
		cfg.Session.MaxRetries = raw.MaxRetries
	}

	if meta.IsDefined("max_errors") {
		if raw.MaxErrors < 0 {
			return runConfig{}, fmt.Errorf("max_errors must not be negative, got %d", raw.MaxErrors)
		}
		cfg.Session.MaxErrors = raw.MaxErrors
	}

	if meta.IsDefined("poll_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse poll_timeout: %w", err)
		}
		cfg.Session.PollTimeout = d
	}

	if meta.IsDefined("retry_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RetryDelay))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse retry_delay: %w", err)
		}
		cfg.Session.RetryDelay = d
	}

	if meta.IsDefined("count_frame_errors") {
		cfg.Session.CountFrameErrors = raw.CountFrameErrors
	}

	if meta.IsDefined("keep_partial") {
		cfg.Session.KeepPartial = raw.KeepPartial
	}

	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

// Package conf handles the configuration of the ringcap tool, backed by
// viper with sensible defaults, an optional config.yaml and RINGCAP_*
// environment overrides.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the full configuration of the ringcap tool.
type Settings struct {
	Capture CaptureSettings
	Log     LogSettings
}

// CaptureSettings configures the soundcard capture session.
type CaptureSettings struct {
	Device       string        // capture device name, empty or "default" for the system default
	SampleRate   int           // sample rate in Hz
	Channels     int           // number of capture channels
	BitDepth     int           // bits per sample, 16 or 32
	RingFrames   int           // minimum ring buffer capacity in frames, rounded up to a power of two
	PeriodFrames int           // device callback period in frames
	Duration     time.Duration // capture length, 0 captures until interrupted
	OutputPath   string        // destination WAV file
}

// LogSettings configures tool logging.
type LogSettings struct {
	Level string // trace, debug, info, warn, error
	File  string // optional rotated log file path, empty logs to console only
}

// BytesPerSample returns the sample width in bytes.
func (c *CaptureSettings) BytesPerSample() int {
	return c.BitDepth / 8
}

// Load reads the configuration from defaults, an optional config file and
// the environment, and validates it.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings for values the capture session cannot work
// with.
func (s *Settings) Validate() error {
	var errs []error
	c := &s.Capture

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid sample rate: %d Hz, must be greater than 0", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("invalid channel count: %d, must be greater than 0", c.Channels))
	}
	if c.BitDepth != 16 && c.BitDepth != 32 {
		errs = append(errs, fmt.Errorf("invalid bit depth: %d, must be 16 or 32", c.BitDepth))
	}
	if c.RingFrames < 2 {
		errs = append(errs, fmt.Errorf("invalid ring capacity: %d frames, must be at least 2", c.RingFrames))
	}
	if c.PeriodFrames <= 0 {
		errs = append(errs, fmt.Errorf("invalid period: %d frames, must be greater than 0", c.PeriodFrames))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("invalid duration: %s, must not be negative", c.Duration))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output path must not be empty"))
	}

	return errors.Join(errs...)
}

// initViper initializes viper with default values and reads the
// configuration file if one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ringcap")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and environment apply.
	}
	return nil
}

// configPaths returns the directories searched for config.yaml.
func configPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "ringcap"))
	}
	return paths
}

func setDefaults() {
	viper.SetDefault("capture.device", "default")
	viper.SetDefault("capture.samplerate", 48000)
	viper.SetDefault("capture.channels", 2)
	viper.SetDefault("capture.bitdepth", 16)
	viper.SetDefault("capture.ringframes", 8192)
	viper.SetDefault("capture.periodframes", 512)
	viper.SetDefault("capture.duration", 0)
	viper.SetDefault("capture.outputpath", "capture.wav")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
}

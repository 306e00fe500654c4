// ringcap captures audio from a soundcard through a lock-free SPSC ring
// buffer and writes it to a WAV file. It doubles as a worked example of the
// soundring producer/consumer contract.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundring/soundring/internal/conf"
	"github.com/soundring/soundring/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ringcap",
		Short: "Capture soundcard audio through an SPSC ring buffer into a WAV file",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(parseLevel(viper.GetString("log.level")))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("device", "default", "capture device name")
	flags.Int("samplerate", 48000, "sample rate in Hz")
	flags.Int("channels", 2, "number of capture channels")
	flags.Int("bitdepth", 16, "bits per sample (16 or 32)")
	flags.Int("ringframes", 8192, "minimum ring buffer capacity in frames")
	flags.Int("periodframes", 512, "device callback period in frames")
	flags.Duration("duration", 0, "capture length, 0 captures until interrupted")
	flags.StringP("output", "o", "capture.wav", "output WAV file")
	flags.String("loglevel", "info", "log level (trace, debug, info, warn, error)")

	bindings := map[string]string{
		"capture.device":       "device",
		"capture.samplerate":   "samplerate",
		"capture.channels":     "channels",
		"capture.bitdepth":     "bitdepth",
		"capture.ringframes":   "ringframes",
		"capture.periodframes": "periodframes",
		"capture.duration":     "duration",
		"capture.outputpath":   "output",
		"log.level":            "loglevel",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "error binding flag %s: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(devicesCommand(), captureCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func captureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Record audio to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load()
			if err != nil {
				return err
			}
			return runCapture(settings)
		},
	}
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices()
		},
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pollInterval is how long the consumer sleeps when the ring is empty.
const pollInterval = 10 * time.Millisecond

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/soundring/soundring"
	"github.com/soundring/soundring/internal/conf"
	"github.com/soundring/soundring/internal/diagnostics"
	"github.com/soundring/soundring/internal/logging"
	"github.com/soundring/soundring/internal/pcm"
)

// runCapture records from the configured device into a WAV file. The device
// callback is the single producer, the WAV writer goroutine the single
// consumer; the ring buffer between them is the only shared state and the
// callback never blocks, logs or allocates.
func runCapture(settings *conf.Settings) error {
	c := &settings.Capture
	sessionID := uuid.New().String()
	logger := logging.ForService("ringcap").With("session_id", sessionID)

	if settings.Log.File != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Log.File, "ringcap", parseLevel(settings.Log.Level))
		if err != nil {
			return fmt.Errorf("failed to set up log file: %w", err)
		}
		defer func() { _ = closeLog() }()
		logger = fileLogger.With("session_id", sessionID)
	}

	sampleBytes := c.BytesPerSample()
	format := soundring.StreamFormat{
		SampleRate:       float64(c.SampleRate),
		FormatFlags:      soundring.FormatFlagIsSignedInteger | soundring.FormatFlagIsPacked | soundring.FormatFlagNonInterleaved,
		BytesPerPacket:   uint32(sampleBytes),
		FramesPerPacket:  1,
		BytesPerFrame:    uint32(sampleBytes),
		ChannelsPerFrame: uint32(c.Channels),
		BitsPerChannel:   uint32(c.BitDepth),
	}

	ring, err := soundring.NewWithFormat(format, uint64(c.RingFrames))
	if err != nil {
		return fmt.Errorf("failed to allocate ring buffer: %w", err)
	}
	defer ring.Deallocate()

	outFile, err := os.Create(c.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	enc := wav.NewEncoder(outFile, c.SampleRate, c.BitDepth, c.Channels, 1)

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Channels = uint32(c.Channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1
	switch c.BitDepth {
	case 32:
		deviceConfig.Capture.Format = malgo.FormatS32
	default:
		deviceConfig.Capture.Format = malgo.FormatS16
	}
	if err := selectDevice(malgoCtx, c.Device, &deviceConfig); err != nil {
		return err
	}

	// The device may deliver more frames per callback than the configured
	// period; size the producer scratch generously and clamp.
	maxCallbackFrames := c.PeriodFrames * 4
	scratch := make(soundring.BufferSet, c.Channels)
	for ch := range scratch {
		scratch[ch] = make([]byte, maxCallbackFrames*sampleBytes)
	}

	var framesCaptured, framesDropped atomic.Uint64
	onRecvFrames := func(_, pSamples []byte, frameCount uint32) {
		frames := int(frameCount)
		if frames > maxCallbackFrames {
			frames = maxCallbackFrames
		}
		pcm.Deinterleave(scratch, pSamples, frames, c.Channels, sampleBytes)
		written := ring.Write(scratch, uint64(frames))
		framesCaptured.Add(written)
		if written < uint64(frames) {
			// Consumer fell behind, frames are lost. Reported outside the
			// callback.
			framesDropped.Add(uint64(frames) - written)
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	var framesWritten uint64
	var consumerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		framesWritten, consumerErr = consume(ctx, logger, ring, enc, c)
	}()

	if err := device.Start(); err != nil {
		device.Uninit()
		stop()
		wg.Wait()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	logger.Info("capture started",
		"device", c.Device,
		"sample_rate", c.SampleRate,
		"channels", c.Channels,
		"bit_depth", c.BitDepth,
		"ring_capacity", ring.Capacity(),
		"output", c.OutputPath)

	<-ctx.Done()

	// Stop the producer first so the consumer can drain what remains.
	device.Uninit()
	wg.Wait()

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	logger.Info("capture finished",
		"frames_captured", framesCaptured.Load(),
		"frames_written", framesWritten,
		"frames_dropped", framesDropped.Load())
	if dropped := framesDropped.Load(); dropped > 0 {
		logger.Warn("frames were dropped, consider a larger ring buffer",
			"frames_dropped", dropped,
			"ring_capacity", ring.Capacity())
	}
	return consumerErr
}

// consume reads frames out of the ring and appends them to the WAV encoder
// until the context is cancelled and the ring drained. Returns the number
// of frames written.
func consume(ctx context.Context, logger *slog.Logger, ring *soundring.RingBuffer, enc *wav.Encoder, c *conf.CaptureSettings) (uint64, error) {
	period := uint64(c.PeriodFrames)
	sampleBytes := c.BytesPerSample()

	dst := make(soundring.BufferSet, c.Channels)
	for ch := range dst {
		dst[ch] = make([]byte, c.PeriodFrames*sampleBytes)
	}
	ints := make([]int, c.PeriodFrames*c.Channels)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		SourceBitDepth: c.BitDepth,
	}

	var written uint64
	diagnosed := false
	for {
		n := ring.Read(dst, period)
		if n == 0 {
			if ctx.Err() != nil {
				// Producer stopped and the ring is drained.
				return written, nil
			}
			time.Sleep(pollInterval)
			continue
		}

		pcm.InterleaveInts(ints[:int(n)*c.Channels], dst, int(n), c.Channels, c.BitDepth)
		buf.Data = ints[:int(n)*c.Channels]
		if err := enc.Write(buf); err != nil {
			return written, fmt.Errorf("failed to write WAV data: %w", err)
		}
		written += n

		// A persistently full ring means this side cannot keep up; take one
		// system snapshot to explain why.
		if !diagnosed && ring.AvailableFrames() == ring.Capacity() {
			diagnosed = true
			logger.Warn("ring buffer full, WAV writer is falling behind",
				"snapshot", diagnostics.Snapshot("ring buffer overrun"))
		}
	}
}

// Command sdrtrack runs a single GPS L1 C/A tracking channel against a
// file of complex baseband samples, printing one Synchro record per PRN
// period and optionally writing a binary trace dump.
//
// Grounded on mfkiwl-GPS-JAMMING/gops/sdrmain.go's sdrthread/datathread
// loop, simplified from a goroutine-per-channel design with shared
// mutex-guarded buffers to a single synchronous scheduler goroutine
// driving one receiver.Source and one tracking.Channel directly: this
// core never needs cross-channel coordination, so there is nothing for
// the mutexes to protect.
package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mfkiwl/gpstrack/internal/config"
	"github.com/mfkiwl/gpstrack/internal/queue"
	"github.com/mfkiwl/gpstrack/internal/receiver"
	"github.com/mfkiwl/gpstrack/internal/simsignal"
	"github.com/mfkiwl/gpstrack/internal/tracking"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sdrtrack:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fset := config.NewFlagSet("sdrtrack")
	inputPath := fset.Raw().String("input", "", "path to a raw complex baseband sample file")
	format := fset.Raw().Int("format", 0, "sample format: 0=int8 IQ, 1=int16 IQ, 2=float32 IQ")
	spectrum := fset.Raw().Bool("spectrum", false, "periodically report the autocorrelation peak of the input window (read-only diagnostic)")
	spectrumEverySecs := fset.Raw().Float64("spectrum_period_secs", 5.0, "interval between -spectrum reports")
	acqPhi0 := fset.Raw().Float64("acq_phi0", 0, "acquisition code-phase offset, samples")
	acqFd0 := fset.Raw().Float64("acq_fd0", 0, "acquisition Doppler estimate, Hz")

	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := fset.Load()
	if err != nil {
		return err
	}
	if *inputPath == "" {
		return fmt.Errorf("sdrtrack: -input is required")
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})

	f, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("sdrtrack: %w", err)
	}
	defer f.Close()

	src, err := receiver.New(f, receiver.Format(*format))
	if err != nil {
		return fmt.Errorf("sdrtrack: %w", err)
	}
	defer src.Close()

	q := queue.New(16)
	ch, err := tracking.NewChannel(cfg, q, logger)
	if err != nil {
		return fmt.Errorf("sdrtrack: %w", err)
	}
	defer ch.Close()

	ch.StartTracking(*acqPhi0, *acqFd0, 0)
	logger.Info("sdrtrack: tracking started", "prn", cfg.PRN, "fs", cfg.SampleRateHz)

	var lastSpectrum time.Time
	for {
		select {
		case msg := <-q.Receive():
			logger.Warn("sdrtrack: control message received", "channel", msg.Channel, "code", msg.Code)
		default:
		}

		want := ch.RequiredSamples()
		window, err := src.Peek(want)
		if err != nil {
			return fmt.Errorf("sdrtrack: %w", err)
		}
		if len(window) == 0 && src.Exhausted() {
			logger.Info("sdrtrack: input exhausted, stopping")
			return nil
		}

		synchro, consumed := ch.Process(window)
		src.Advance(consumed)

		if synchro.Valid {
			fmt.Printf("prn=%d t=%.6f I=%.3f Q=%.3f cn0=%.1f phase=%.6f\n",
				synchro.PRN, synchro.TrackingTimestampSecs, synchro.PromptI, synchro.PromptQ,
				synchro.CN0dBHz, synchro.CarrierPhaseRads)
		}

		if *spectrum && synchro.Valid {
			now := time.Now()
			if lastSpectrum.IsZero() || now.Sub(lastSpectrum).Seconds() >= *spectrumEverySecs {
				reportSpectrum(window, logger)
				lastSpectrum = now
			}
		}

		if !ch.Enabled() {
			logger.Warn("sdrtrack: channel lost lock, exiting")
			return nil
		}
		if src.Exhausted() && len(window) < want {
			return nil
		}
	}
}

// reportSpectrum logs the lag and magnitude of the largest value in the
// circular autocorrelation of the current window (simsignal.CrossCorrelate
// of the window with itself), a read-only diagnostic never fed back into
// the loop. No frequency-domain spectrum is computed.
func reportSpectrum(window []complex128, logger *log.Logger) {
	if len(window) == 0 {
		return
	}
	r := simsignal.CrossCorrelate(window, window)
	peakIdx := 0
	peakMag := 0.0
	for i, v := range r {
		m := real(v)*real(v) + imag(v)*imag(v)
		if math.Sqrt(m) > peakMag {
			peakMag = math.Sqrt(m)
			peakIdx = i
		}
	}
	logger.Info("sdrtrack: spectrum peak", "lag", peakIdx, "magnitude", peakMag)
}

// Package dump writes the fixed binary trace record: one little-endian,
// packed record per successful PRN period, for offline analysis of a
// channel's convergence.
//
// Grounded on the original GNSS-SDR block's raw ofstream field writes
// (original_source .../gps_l1_ca_dll_pll_tracking_cc.cc general_work,
// the `if(d_dump)` block) and on mfkiwl-GPS-JAMMING's file-handling style
// (mfkiwl-GPS-JAMMING/gops/sdrrcv.go RcvInit/RcvQuit open/close a single
// os.File under a mutex). Dumping is observational only: a write failure
// is logged once and tracking continues without it.
package dump

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// RecordSize is the fixed byte length of one dump record.
const RecordSize = 76

// Record mirrors the per-PRN binary trace layout exactly, including the
// documented historical Prompt_I/Prompt_Q field swap: Record.PromptI
// holds im(P*) and Record.PromptQ holds re(P*), matching the on-disk
// convention. The in-memory Synchro type used elsewhere in this module
// does NOT carry this swap; only the dump record does.
type Record struct {
	AbsE, AbsP, AbsL   float32
	PromptI, PromptQ   float32 // swapped: PromptI=im(P*), PromptQ=re(P*)
	SampleCounter      uint64
	CarrierPhaseRad    float32
	CarrierDopplerHz   float32
	CodeFreqHz         float32
	PLLErrorCycles     float32
	PLLNcoHz           float32
	DLLErrorChips      float32
	DLLNcoHz           float32
	CN0dBHz            float32
	CarrierLockTest    float32
	TrackingTimeSecs   float64
}

// Writer appends Records to a binary trace file. A Writer that fails to
// open or write degrades to a no-op rather than returning errors to the
// tracking loop.
type Writer struct {
	f        *os.File
	buf      *bufio.Writer
	disabled bool
	logger   *log.Logger
}

// Open creates (or truncates) path and returns a Writer over it. If path
// cannot be opened, Open logs once via logger and returns a disabled
// Writer whose Write calls are silent no-ops — callers never need to
// branch on dump being enabled.
func Open(path string, logger *log.Logger) *Writer {
	f, err := os.Create(path)
	if err != nil {
		if logger != nil {
			logger.Warn("dump: failed to open trace file, continuing without dump", "path", path, "err", err)
		}
		return &Writer{disabled: true, logger: logger}
	}
	return &Writer{f: f, buf: bufio.NewWriter(f), logger: logger}
}

// Write serializes r in the fixed little-endian layout. A write failure
// disables the Writer (logged once) rather than propagating an error up
// into the tracking loop.
func (w *Writer) Write(r Record) {
	if w == nil || w.disabled {
		return
	}
	fields := []any{
		r.AbsE, r.AbsP, r.AbsL,
		r.PromptI, r.PromptQ,
		r.SampleCounter,
		r.CarrierPhaseRad,
		r.CarrierDopplerHz,
		r.CodeFreqHz,
		r.PLLErrorCycles,
		r.PLLNcoHz,
		r.DLLErrorChips,
		r.DLLNcoHz,
		r.CN0dBHz,
		r.CarrierLockTest,
		float32(0), // reserved
		r.TrackingTimeSecs,
	}
	if err := writeAll(w.buf, fields); err != nil {
		w.disabled = true
		if w.logger != nil {
			w.logger.Warn("dump: write failed, disabling trace for remainder of session", "err", err)
		}
	}
}

func writeAll(w io.Writer, fields []any) error {
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the underlying file. Safe to call on a disabled
// Writer.
func (w *Writer) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			if w.logger != nil {
				w.logger.Warn("dump: flush failed", "err", err)
			}
		}
	}
	return w.f.Close()
}

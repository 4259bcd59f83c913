// Package simsignal generates synthetic GPS L1 C/A baseband sample
// streams for exercising a tracking channel end to end, and provides an
// FFT-based cross-correlation diagnostic for independently checking code
// alignment without going through the tracking loop's own correlator.
//
// Grounded on mfkiwl-GPS-JAMMING/gops/sdrcmn.go's FFTReal/FFTComplex/
// CorrelatorFFT, which wrap gonum.org/v1/gonum/dsp/fourier for frequency-
// domain correlation during acquisition; acquisition itself is out of
// scope here, but the same FFT cross-correlation technique is reused as
// an independent verification tool for synthetic test signals.
package simsignal

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/mfkiwl/gpstrack/internal/gpscode"
)

// Generator produces synthetic complex baseband samples for one PRN's
// code sequence modulated onto a carrier, for use as tracking-channel
// test input.
type Generator struct {
	table      gpscode.Table
	sampleRate float64
	ifFreqHz   float64
}

// New builds a Generator for prn sampled at sampleRateHz with intermediate
// frequency ifFreqHz.
func New(prn int, sampleRateHz, ifFreqHz float64) (*Generator, error) {
	table, err := gpscode.Generate(prn)
	if err != nil {
		return nil, fmt.Errorf("simsignal: %w", err)
	}
	return &Generator{table: table, sampleRate: sampleRateHz, ifFreqHz: ifFreqHz}, nil
}

// Samples generates n complex baseband samples: BPSK-modulated C/A code
// at chipRateHz starting at chip phase startChipPhase, carrier at
// (ifFreqHz + dopplerHz) with initial phase psi0, and amplitude scale.
// Setting chipRateHz to 0 disables code modulation, producing a pure tone
// at ifFreqHz+dopplerHz (used to test PLL-only Doppler capture).
func (g *Generator) Samples(n int, chipRateHz, startChipPhase, dopplerHz, psi0, amplitude float64) []complex128 {
	out := make([]complex128, n)
	deltaPsi := 2 * math.Pi * (g.ifFreqHz + dopplerHz) / g.sampleRate
	chipStep := chipRateHz / g.sampleRate
	for i := 0; i < n; i++ {
		theta := psi0 + float64(i)*deltaPsi
		carrier := complex(math.Cos(theta), math.Sin(theta))
		chip := 1.0
		if chipRateHz != 0 {
			chip = float64(g.table.ChipAt(startChipPhase + float64(i)*chipStep))
		}
		out[i] = complex(amplitude*chip, 0) * carrier
	}
	return out
}

// WithNaNBlock returns a copy of samples with [start, start+length) replaced
// by NaN, modeling the upstream discontinuity scenario the tracking
// controller must recover from.
func WithNaNBlock(samples []complex128, start, length int) []complex128 {
	out := make([]complex128, len(samples))
	copy(out, samples)
	nan := complex(math.NaN(), math.NaN())
	end := start + length
	if end > len(out) {
		end = len(out)
	}
	for i := start; i < end; i++ {
		out[i] = nan
	}
	return out
}

// CrossCorrelate computes the circular cross-correlation of a and b (equal
// length, padded to a common power-of-two length) via FFT, for use as an
// independent check that a generated signal peaks at the expected lag.
// Grounded on mfkiwl-GPS-JAMMING/gops/sdrcmn.go's CorrelatorFFT.
func CrossCorrelate(a, b []complex128) []complex128 {
	n := nextPow2(max(len(a), len(b)))
	ap := make([]complex128, n)
	bp := make([]complex128, n)
	copy(ap, a)
	copy(bp, b)

	fft := fourier.NewCmplxFFT(n)
	A := fft.Coefficients(nil, ap)
	B := fft.Coefficients(nil, bp)

	r := make([]complex128, n)
	for i := range r {
		r[i] = A[i] * cmplx.Conj(B[i])
	}
	return fft.Sequence(nil, r)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Package lockdetect implements the sliding-window C/N0 estimator
// (signal-to-noise variance method) and carrier-lock test, plus the
// loss-of-lock failure-counter policy built on top of them.
// mfkiwl-GPS-JAMMING/gops/sdrtrk.go's setobsdata carries an unrelated,
// empirically-scaled SNR formula for its own telemetry path, so this
// package is new code rather than adapted from that source.
package lockdetect

import "math"

const (
	// RingSize is the prompt-sample history length the C/N0 and
	// lock-test estimates are computed over.
	RingSize = 10
	// CN0Floor is the minimum acceptable C/N0, dB-Hz.
	CN0Floor = 25.0
	// LockTestFloor is the minimum acceptable carrier-lock test value.
	LockTestFloor = 5.0
	// MaxFailures is the consecutive-failure threshold that trips loss
	// of lock.
	MaxFailures = 200
)

// Estimator accumulates a ring of Lcn0 prompt correlator samples and, once
// full, computes a C/N0 estimate (signal-to-noise variance method) and a
// carrier-lock test value.
type Estimator struct {
	ring    [RingSize]complex128
	fill    int
	lastCN0 float64
	lastTst float64
}

// New returns a ready-to-use, empty estimator.
func New() *Estimator {
	return &Estimator{}
}

// Feed appends one prompt correlator sample for a PRN period of length
// tIntSec seconds. It reports whether the ring became full on this call; if
// so, CN0 and LockTest reflect the freshly computed estimate and the ring
// fill counter resets to 0.
func (e *Estimator) Feed(prompt complex128, tIntSec float64) bool {
	e.ring[e.fill] = prompt
	e.fill++
	if e.fill < RingSize {
		return false
	}
	e.fill = 0

	var sumI, sumQ, nbw float64
	for _, p := range e.ring {
		sumI += real(p)
		sumQ += imag(p)
		nbw += real(p)*real(p) + imag(p)*imag(p)
	}
	nbp := sumI*sumI + sumQ*sumQ
	var wbp float64
	if nbw != 0 {
		wbp = nbp / nbw
	}
	var np float64
	if denom := RingSize - wbp; denom != 0 {
		np = (wbp*RingSize - 1) / denom
	}
	cn0 := 0.0
	if np > 0 && tIntSec > 0 {
		cn0 = 10 * math.Log10(np/(RingSize*tIntSec))
	}
	if cn0 < 0 {
		cn0 = 0
	}

	nbd := sumI*sumI - sumQ*sumQ
	test := 0.0
	if nbw != 0 {
		test = nbd / nbw
	}

	e.lastCN0 = cn0
	e.lastTst = test
	return true
}

// CN0 returns the most recently computed C/N0 estimate, dB-Hz.
func (e *Estimator) CN0() float64 { return e.lastCN0 }

// LockTest returns the most recently computed carrier-lock test value.
func (e *Estimator) LockTest() float64 { return e.lastTst }

// Policy implements the loss-of-lock failure counter.
//
// The original source's comparison direction (`carrier_lock_test > 25`,
// comparing a [-1,1] quantity against a dB-Hz threshold) is almost
// certainly a transcription error: a C/N0 comparison was clearly intended.
// By default Policy applies the corrected comparison (cn0 < CN0Floor); set
// CompatMode to count cn0 > CN0Floor as a failure instead, the inverted
// C/N0 comparison kept for compatibility with legacy dumps.
type Policy struct {
	CompatMode bool
	failCount  int
}

// Evaluate folds one lock/CN0 estimate into the failure counter and
// reports whether the channel has now lost lock (failCount exceeds
// MaxFailures). On loss of lock the counter resets to 0.
func (p *Policy) Evaluate(test, cn0 float64) (lossOfLock bool) {
	var bad bool
	if p.CompatMode {
		bad = test < LockTestFloor || cn0 > CN0Floor
	} else {
		bad = test < LockTestFloor || cn0 < CN0Floor
	}
	if bad {
		p.failCount++
	} else if p.failCount > 0 {
		p.failCount--
	}
	if p.failCount > MaxFailures {
		p.failCount = 0
		return true
	}
	return false
}

// FailCount reports the current consecutive-failure counter.
func (p *Policy) FailCount() int { return p.failCount }

package tracking

import (
	"math"
	"math/cmplx"

	"github.com/mfkiwl/gpstrack/internal/dump"
	"github.com/mfkiwl/gpstrack/internal/gpscode"
	"github.com/mfkiwl/gpstrack/internal/queue"
)

// Process runs one scheduler invocation of the tracking controller. input
// must hold at least RequiredSamples complex baseband samples at Fif/Fs;
// Process never reads past len(input). It returns the Synchro record for
// this call and the number of samples the caller should advance its
// stream by.
func (ch *Channel) Process(input []complex128) (Synchro, int) {
	zero := Synchro{PRN: ch.cfg.PRN, System: ch.cfg.systemTag()}

	if !ch.enabled {
		consumed := clamp(ch.n, len(input))
		ch.advance(consumed)
		return zero, consumed
	}

	if ch.pullIn {
		return ch.processPullIn(input, zero)
	}

	return ch.processNormal(input, zero)
}

// processPullIn realigns the sample stream to a PRN boundary using the
// acquisition handover inputs. This is the steady-state shift/sample-index
// arithmetic that runs on every pull-in re-entry (including a restart after
// loss of lock); the one-time Doppler-scaled code-phase and PRN-length
// correction that runs only at StartTracking lives in
// radialVelocityHandover (channel.go).
func (ch *Channel) processPullIn(input []complex128, zero Synchro) (Synchro, int) {
	delta := int64(ch.nsamp) - ch.acqTacq
	nNext := int64(ch.nNext)
	shift := nNext - floorMod64(delta, nNext)
	samplesOffset := int(math.Round(ch.acqPhi0 + float64(shift)))
	if samplesOffset < 0 {
		samplesOffset = 0
	}
	consumed := clamp(samplesOffset, len(input))

	ch.advance(consumed)
	ch.pullIn = false

	rec := zero
	rec.TrackingTimestampSecs = ch.tsec
	rec.CodePhaseSecs = ch.acqPhi0 / ch.cfg.SampleRateHz
	rec.Valid = false
	return rec, consumed
}

// processNormal runs replica generation, correlation, discrimination,
// loop filtering, and lock detection for one PRN period.
func (ch *Channel) processNormal(input []complex128, zero Synchro) (Synchro, int) {
	ch.n = ch.nNext
	n := clamp(ch.n, len(input))

	deltaPsi := 2 * math.Pi * (ch.cfg.IfFreqHz + ch.fd) / ch.cfg.SampleRateHz
	newPsi := buildCarrier(n, ch.psi, deltaPsi, ch.carrierBuf[:n])
	buildReplicas(&ch.chipTable, n, ch.rho, ch.deltaChip, ch.cfg.EarlyLateSpacingChips, ch.eBuf[:n], ch.pBuf[:n], ch.lBuf[:n])

	ec, pc, lc := correlate(input[:n], ch.carrierBuf[:n], ch.eBuf[:n], ch.pBuf[:n], ch.lBuf[:n], n)

	if isNaNComplex(pc) {
		if ch.logger != nil {
			ch.logger.Warn("tracking: NaN in prompt correlator, degrading to invalid synchro", "prn", ch.cfg.PRN, "channel", ch.cfg.ChannelID)
		}
		consumed := len(input)
		ch.advance(consumed)
		rec := zero
		rec.TrackingTimestampSecs = ch.tsec
		rec.Valid = false
		return rec, consumed
	}

	dt := float64(n) / ch.cfg.SampleRateHz

	phiErr := pllDiscriminator(pc)
	ch.fd = ch.acqFd0 + ch.carrierFilter.Step(phiErr, dt)

	absE, absL := cmplx.Abs(ec), cmplx.Abs(lc)
	epsErr := dllDiscriminator(absE, absL)
	ch.fc = gpscode.ChipRateHz - ch.codeFilter.Step(epsErr, dt)

	ch.deltaChip = ch.fc / ch.cfg.SampleRateHz
	tprn := float64(gpscode.ChipLen) / ch.fc
	k := tprn*ch.cfg.SampleRateHz + ch.rhoNext
	ch.rho = ch.rhoNext
	ch.nNext = int(math.Round(k))
	ch.rhoNext = k - float64(ch.nNext)

	tprnNom := float64(gpscode.ChipLen) / gpscode.ChipRateHz
	ch.phiSamples = floorMod(ch.phiSamples+tprn*ch.cfg.SampleRateHz-tprnNom*ch.cfg.SampleRateHz, tprnNom*ch.cfg.SampleRateHz)

	// Accumulated-phase compatibility/fix switch.
	if ch.cfg.CompatMode {
		ch.Psi += newPsi
	} else {
		ch.Psi += float64(n) * deltaPsi
	}
	ch.psi = newPsi

	var lossOfLock bool
	if ch.lockEst.Feed(pc, dt) {
		lossOfLock = ch.lockPolicy.Evaluate(ch.lockEst.LockTest(), ch.lockEst.CN0())
	}

	ch.writeDump(ec, pc, lc, phiErr, epsErr)

	rec := Synchro{
		PRN:                   ch.cfg.PRN,
		System:                ch.cfg.systemTag(),
		PromptI:               real(pc),
		PromptQ:               imag(pc),
		TrackingTimestampSecs: ch.tsec,
		CarrierPhaseRads:      ch.Psi,
		CodePhaseSecs:         ch.phiSamples / ch.cfg.SampleRateHz,
		CN0dBHz:               ch.lockEst.CN0(),
		Valid:                 true,
	}

	ch.advance(n)

	if lossOfLock {
		if ch.queue != nil {
			if !ch.queue.TrySend(queue.Message{Channel: ch.cfg.ChannelID, Code: queue.LossOfLock}) {
				if ch.logger != nil {
					ch.logger.Warn("tracking: loss-of-lock queue full, message dropped", "channel", ch.cfg.ChannelID)
				}
			}
		}
		ch.enabled = false
	}

	return rec, n
}

func (ch *Channel) writeDump(ec, pc, lc complex128, phiErr, epsErr float64) {
	if ch.dump == nil {
		return
	}
	ch.dump.Write(dump.Record{
		AbsE:             float32(cmplx.Abs(ec)),
		AbsP:             float32(cmplx.Abs(pc)),
		AbsL:             float32(cmplx.Abs(lc)),
		PromptI:          float32(imag(pc)),
		PromptQ:          float32(real(pc)),
		SampleCounter:    ch.nsamp,
		CarrierPhaseRad:  float32(ch.Psi),
		CarrierDopplerHz: float32(ch.fd),
		CodeFreqHz:       float32(ch.fc),
		PLLErrorCycles:   float32(phiErr),
		PLLNcoHz:         float32(ch.fd - ch.acqFd0),
		DLLErrorChips:    float32(epsErr),
		DLLNcoHz:         float32(gpscode.ChipRateHz - ch.fc),
		CN0dBHz:          float32(ch.lockEst.CN0()),
		CarrierLockTest:  float32(ch.lockEst.LockTest()),
		TrackingTimeSecs: ch.tsec,
	})
}

func (ch *Channel) advance(n int) {
	ch.nsamp += uint64(n)
	ch.tsec += float64(n) / ch.cfg.SampleRateHz
}

func isNaNComplex(c complex128) bool {
	return math.IsNaN(real(c)) || math.IsNaN(imag(c))
}

func clamp(want, available int) int {
	if want > available {
		return available
	}
	if want < 0 {
		return 0
	}
	return want
}

// floorMod is Euclidean modulo for float64, always returning a value in
// [0, m).
func floorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	if r >= m {
		r = 0
	}
	return r
}

// floorMod64 is Euclidean modulo for int64, always returning a value in
// [0, m).
func floorMod64(x, m int64) int64 {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}

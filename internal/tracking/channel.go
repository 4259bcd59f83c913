// Package tracking implements the per-channel DLL/PLL tracking loop:
// replica generation, correlation, discrimination, loop filtering, lock
// detection, and the tracking controller state machine that ties them
// together into one call-per-PRN-period transformer.
//
// Grounded throughout on mfkiwl-GPS-JAMMING's tracking loop
// (mfkiwl-GPS-JAMMING/gops/sdrtrk.go: sdrtracking, pll, dll, correlator,
// cumsumcorr) and on the original algorithm it was translated from
// (original_source/.../gps_l1_ca_dll_pll_tracking_cc.cc general_work,
// start_tracking, update_local_code, update_local_carrier).
package tracking

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/mfkiwl/gpstrack/internal/dump"
	"github.com/mfkiwl/gpstrack/internal/gpscode"
	"github.com/mfkiwl/gpstrack/internal/lockdetect"
	"github.com/mfkiwl/gpstrack/internal/loopfilter"
	"github.com/mfkiwl/gpstrack/internal/queue"
)

// Config is a channel's static configuration, plus the channel-identity
// fields needed to tag control messages and dump filenames.
type Config struct {
	IfFreqHz              float64
	SampleRateHz          float64
	Nnom                  int
	PLLBandwidthHz        float64
	DLLBandwidthHz        float64
	EarlyLateSpacingChips float64
	PRN                   int

	// ChannelID tags control messages and, combined with DumpPath, the
	// dump filename.
	ChannelID int
	// SystemTag labels the Synchro's constellation; GPS L1 C/A is always
	// "G".
	SystemTag string

	DumpEnabled bool
	DumpPath    string

	// CompatMode reproduces two source quirks for byte-compatibility with
	// legacy dumps: the accumulated-phase under-count, and the inverted
	// C/N0 comparison in the loss-of-lock policy. Off by default.
	CompatMode bool
}

// Validate fails fast on configuration errors: non-positive sample rate,
// an out-of-range PRN, or a non-positive nominal block length are
// construction-time errors with no recovery.
func (c Config) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("tracking: sample rate must be positive, got %v", c.SampleRateHz)
	}
	if c.PRN < 1 || c.PRN > gpscode.MaxPRN() {
		return fmt.Errorf("tracking: PRN %d out of range [1,%d]", c.PRN, gpscode.MaxPRN())
	}
	if c.Nnom <= 0 {
		return fmt.Errorf("tracking: vector_length must be positive, got %d", c.Nnom)
	}
	if c.PLLBandwidthHz <= 0 {
		return fmt.Errorf("tracking: pll_bw_hz must be positive, got %v", c.PLLBandwidthHz)
	}
	if c.DLLBandwidthHz <= 0 {
		return fmt.Errorf("tracking: dll_bw_hz must be positive, got %v", c.DLLBandwidthHz)
	}
	if c.EarlyLateSpacingChips <= 0 {
		return fmt.Errorf("tracking: early_late_space_chips must be positive, got %v", c.EarlyLateSpacingChips)
	}
	return nil
}

func (c Config) systemTag() string {
	if c.SystemTag == "" {
		return "G"
	}
	return c.SystemTag
}

func (c Config) dumpFilename() string {
	return fmt.Sprintf("%s%d.dat", c.DumpPath, c.ChannelID)
}

// Channel holds all state for one PRN's tracking session: static config,
// acquisition handover inputs, continuous DLL/PLL loop state, and the
// scratch buffers the controller reuses every call. These buffers are
// owned exclusively by the channel and never shared across channels.
type Channel struct {
	cfg    Config
	logger *log.Logger
	queue  *queue.Queue
	dump   *dump.Writer

	chipTable gpscode.Table

	carrierFilter *loopfilter.Carrier
	codeFilter    *loopfilter.Code
	lockEst       *lockdetect.Estimator
	lockPolicy    *lockdetect.Policy

	// acquisition handover inputs, set by StartTracking.
	acqPhi0 float64
	acqFd0  float64
	acqTacq int64

	// continuous loop state.
	fc, fd       float64
	rho, rhoNext float64
	psi, Psi     float64
	n, nNext     int
	deltaChip    float64
	phiSamples   float64

	nsamp uint64
	tsec  float64

	enabled bool
	pullIn  bool

	eBuf, pBuf, lBuf, carrierBuf []complex128
}

// NewChannel validates cfg, generates the PRN's chip table, and allocates
// the channel's scratch buffers, each sized to at least 2·Nnom complex
// samples. q may be nil to discard loss-of-lock messages (useful in
// tests); logger may be nil to discard log output.
func NewChannel(cfg Config, q *queue.Queue, logger *log.Logger) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := gpscode.Generate(cfg.PRN)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}

	bufLen := 2 * cfg.Nnom
	ch := &Channel{
		cfg:        cfg,
		logger:     logger,
		queue:      q,
		chipTable:  table,
		eBuf:       make([]complex128, bufLen),
		pBuf:       make([]complex128, bufLen),
		lBuf:       make([]complex128, bufLen),
		carrierBuf: make([]complex128, bufLen),
	}

	var w *dump.Writer
	if cfg.DumpEnabled {
		w = dump.Open(cfg.dumpFilename(), logger)
	}
	ch.dump = w

	return ch, nil
}

// RequiredSamples is the minimum input length the scheduler must offer
// per call: 2·Nnom guarantees the current PRN's block length can always
// be fully consumed.
func (ch *Channel) RequiredSamples() int {
	return 2 * ch.cfg.Nnom
}

// Enabled reports whether the channel is actively tracking.
func (ch *Channel) Enabled() bool {
	return ch.enabled
}

// StartTracking begins (or restarts) a tracking session from an
// acquisition handover: phi0 is the acquisition code-phase offset in
// samples, fd0 the acquisition Doppler in Hz, and tacqSamples the
// acquisition sample timestamp expressed in the same sample-count domain
// as this channel's own nsamp counter (both measured from when the
// scheduler started feeding this channel). Before resetting its own
// counter, the channel applies the one-time radial-velocity-scaled
// correction from radialVelocityHandover, using whatever nsamp had
// accumulated since the previous StartTracking (0 on first tracking,
// nonzero on a restart after loss of lock) as the elapsed acq-to-trk
// sample count. Resets all other continuous loop state and both loop
// filter integrators to 0, matching mfkiwl-GPS-JAMMING's
// InitTrkStruct/InitTrkPrmStruct zero-initialization
// (mfkiwl-GPS-JAMMING/gops/sdrinit.go) rather than literally seeding the
// filters from acquisition values.
func (ch *Channel) StartTracking(phi0, fd0 float64, tacqSamples uint64) {
	acqTrkDiffSamples := ch.nsamp

	ch.acqFd0 = fd0
	ch.acqTacq = int64(tacqSamples)

	correctedPhi0, codeFreqHz, nextPrnSamples, delayCorrection := radialVelocityHandover(
		phi0, fd0, acqTrkDiffSamples, tacqSamples, ch.cfg.SampleRateHz)
	ch.acqPhi0 = correctedPhi0

	if ch.logger != nil {
		ch.logger.Debug("tracking: pull-in handover correction",
			"prn", ch.cfg.PRN, "channel", ch.cfg.ChannelID,
			"acq_phase_samples", phi0, "corrected_acq_phase_samples", correctedPhi0,
			"delay_correction_samples", delayCorrection, "code_freq_hz", codeFreqHz)
	}

	ch.fc = codeFreqHz
	ch.fd = fd0
	ch.rho = 0
	ch.rhoNext = 0
	ch.psi = 0
	ch.Psi = 0
	ch.n = ch.cfg.Nnom
	ch.nNext = nextPrnSamples
	ch.deltaChip = ch.fc / ch.cfg.SampleRateHz
	ch.phiSamples = 0

	ch.nsamp = 0
	ch.tsec = 0

	ch.carrierFilter = loopfilter.NewCarrier(ch.cfg.PLLBandwidthHz)
	ch.carrierFilter.Initialize(0)
	ch.codeFilter = loopfilter.NewCode(ch.cfg.DLLBandwidthHz)
	ch.codeFilter.Initialize(0)
	ch.lockEst = lockdetect.New()
	ch.lockPolicy = &lockdetect.Policy{CompatMode: ch.cfg.CompatMode}

	ch.enabled = true
	ch.pullIn = true
}

// radialVelocityHandover computes the one-time Doppler-scaled pull-in
// correction applied at acquisition handover. The acquisition Doppler
// implies a radial velocity that scales the nominal chip rate and PRN
// period; acqTrkDiffSamples worth of elapsed time at that scaled rate
// shifts where the acquisition's code-phase estimate actually falls, which
// corrected_acq_phase_samples accounts for. delayCorrectionSamples is the
// resulting shift versus the raw (uncorrected) acquisition phase, reported
// for diagnostics only.
//
// Grounded on original_source's
// gps_l1_ca_dll_pll_tracking_cc.cc start_tracking(): radial_velocity =
// (GPS_L1_FREQ_HZ + fd0) / GPS_L1_FREQ_HZ, d_code_freq_hz =
// radial_velocity * GPS_L1_CA_CODE_RATE_HZ, and the corrected_acq_phase_samples/
// delay_correction_samples fmod arithmetic, translated as-is including its
// asymmetric negative-wrap correction (added back from the *modified*, not
// the nominal, PRN period).
func radialVelocityHandover(phi0, fd0 float64, acqTrkDiffSamples, tacqSamples uint64, fs float64) (correctedPhi0, codeFreqHz float64, nextPrnSamples int, delayCorrectionSamples float64) {
	diffSamples := float64(acqTrkDiffSamples) - float64(tacqSamples)
	diffSeconds := diffSamples / fs

	radialVelocity := (gpscode.L1FreqHz + fd0) / gpscode.L1FreqHz
	codeFreqHz = radialVelocity * gpscode.ChipRateHz

	tChipModSeconds := 1 / codeFreqHz
	tPrnModSeconds := tChipModSeconds * gpscode.ChipLen
	tPrnModSamples := tPrnModSeconds * fs
	nextPrnSamples = int(math.Round(tPrnModSamples))

	tPrnTrueSeconds := float64(gpscode.ChipLen) / gpscode.ChipRateHz
	tPrnTrueSamples := tPrnTrueSeconds * fs
	tPrnDiffSeconds := tPrnTrueSeconds - tPrnModSeconds
	nPrnDiff := diffSeconds / tPrnTrueSeconds

	correctedPhi0 = math.Mod(phi0+tPrnDiffSeconds*nPrnDiff*fs, tPrnTrueSamples)
	if correctedPhi0 < 0 {
		correctedPhi0 = tPrnModSamples + correctedPhi0
	}
	delayCorrectionSamples = phi0 - correctedPhi0
	return correctedPhi0, codeFreqHz, nextPrnSamples, delayCorrectionSamples
}

// Close releases the channel's dump file, if any.
func (ch *Channel) Close() error {
	if ch.dump != nil {
		return ch.dump.Close()
	}
	return nil
}

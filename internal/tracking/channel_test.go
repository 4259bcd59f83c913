package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mfkiwl/gpstrack/internal/gpscode"
	"github.com/mfkiwl/gpstrack/internal/queue"
	"github.com/mfkiwl/gpstrack/internal/simsignal"
)

func testConfig(prn int) Config {
	return Config{
		IfFreqHz:              0,
		SampleRateHz:          4e6,
		Nnom:                  4000,
		PLLBandwidthHz:        50,
		DLLBandwidthHz:        2,
		EarlyLateSpacingChips: 0.5,
		PRN:                   prn,
	}
}

func newTestChannel(t *testing.T, cfg Config) *Channel {
	t.Helper()
	ch, err := NewChannel(cfg, nil, nil)
	require.NoError(t, err)
	return ch
}

// feedPRNs drives prns PRN periods of synthetic signal through ch, calling
// Process once per period with a window sized to RequiredSamples and
// advancing a running sample cursor across a single long generated buffer.
func feedPRNs(t *testing.T, ch *Channel, gen *simsignal.Generator, prns int, chipRateHz, dopplerHz, amplitude float64) []Synchro {
	t.Helper()
	want := ch.RequiredSamples()
	total := prns*4000 + want
	samples := gen.Samples(total, chipRateHz, 0, dopplerHz, 0, amplitude)

	var out []Synchro
	cursor := 0
	for i := 0; i < prns+2 && cursor+want <= len(samples); i++ {
		synchro, consumed := ch.Process(samples[cursor : cursor+want])
		out = append(out, synchro)
		cursor += consumed
		if consumed == 0 {
			break
		}
	}
	return out
}

func TestCleanLockReachesHighCN0WithinFiftyPeriods(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	records := feedPRNs(t, ch, gen, 120, gpscode.ChipRateHz, 0, 1.0)
	require.Greater(t, len(records), 60)

	for i, r := range records {
		if i < 55 {
			continue
		}
		assert.True(t, r.Valid, "period %d should be valid", i)
		assert.GreaterOrEqual(t, r.CN0dBHz, 40.0, "period %d CN0", i)
	}
}

func TestDopplerCaptureConvergesByTwoHundredPeriods(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 2500, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	_ = feedPRNs(t, ch, gen, 210, gpscode.ChipRateHz, 2500, 1.0)
	assert.InDelta(t, 2500.0, ch.fd, 5.0)
}

func TestCodePhaseHandoverOffsetYieldsSmallResidual(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(123, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	records := feedPRNs(t, ch, gen, 3, gpscode.ChipRateHz, 0, 1.0)
	require.NotEmpty(t, records)

	var firstValid *Synchro
	for i := range records {
		if records[i].Valid {
			firstValid = &records[i]
			break
		}
	}
	require.NotNil(t, firstValid, "expected a valid synchro after pull-in")
	assert.Less(t, firstValid.CodePhaseSecs, 2/cfg.SampleRateHz)
}

func TestNaNInjectionYieldsOneInvalidRecordThenRecovers(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	want := ch.RequiredSamples()
	total := 10*4000 + want
	samples := gen.Samples(total, gpscode.ChipRateHz, 0, 0, 0, 1.0)

	// Settle pull-in and a few periods first.
	cursor := 0
	for i := 0; i < 3; i++ {
		_, consumed := ch.Process(samples[cursor : cursor+want])
		cursor += consumed
	}

	corrupted := simsignal.WithNaNBlock(samples, cursor, want)

	invalidSeen := 0
	validAfter := false
	for i := 0; i < 6 && cursor+want <= len(corrupted); i++ {
		rec, consumed := ch.Process(corrupted[cursor : cursor+want])
		if !rec.Valid {
			invalidSeen++
		} else if invalidSeen > 0 {
			validAfter = true
		}
		cursor += consumed
		if i == 0 {
			// First call after injection consumes the full corrupted window.
			assert.Equal(t, consumed, want)
		}
	}
	assert.Equal(t, 1, invalidSeen, "exactly one invalid synchro expected from the NaN block")
	assert.True(t, validAfter, "tracking should recover to valid synchros")
}

func TestLossOfLockDisablesChannelAndSendsOneMessage(t *testing.T) {
	cfg := testConfig(1)
	q := queue.New(4)
	ch, err := NewChannel(cfg, q, nil)
	require.NoError(t, err)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	want := ch.RequiredSamples()
	total := 260*4000 + want
	// 30 dB attenuation: amplitude scaled by 10^(-30/20).
	samples := gen.Samples(total, gpscode.ChipRateHz, 0, 0, 0, math.Pow(10, -30.0/20.0))

	cursor := 0
	for i := 0; i < 250 && cursor+want <= len(samples) && ch.Enabled(); i++ {
		_, consumed := ch.Process(samples[cursor : cursor+want])
		cursor += consumed
	}

	assert.False(t, ch.Enabled(), "channel should have disabled itself after sustained low C/N0")

	select {
	case msg := <-q.Receive():
		assert.Equal(t, queue.LossOfLock, msg.Code)
	default:
		t.Fatal("expected a loss-of-lock message on the queue")
	}
}

func TestRestartAfterLossOfLockResumesTracking(t *testing.T) {
	cfg := testConfig(1)
	q := queue.New(4)
	ch, err := NewChannel(cfg, q, nil)
	require.NoError(t, err)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	want := ch.RequiredSamples()
	total := 260*4000 + want
	attenuated := gen.Samples(total, gpscode.ChipRateHz, 0, 0, 0, math.Pow(10, -30.0/20.0))

	cursor := 0
	for i := 0; i < 250 && cursor+want <= len(attenuated) && ch.Enabled(); i++ {
		_, consumed := ch.Process(attenuated[cursor : cursor+want])
		cursor += consumed
	}
	require.False(t, ch.Enabled(), "setup: channel should have lost lock before restart")

	ch.StartTracking(0, 0, 0)
	assert.True(t, ch.Enabled())

	records := feedPRNs(t, ch, gen, 60, gpscode.ChipRateHz, 0, 1.0)
	validSeenByFifty := false
	for i, r := range records {
		if i <= 50 && r.Valid {
			validSeenByFifty = true
		}
	}
	assert.True(t, validSeenByFifty, "expected at least one valid synchro within 50 periods of restart")
}

func TestCN0InvariantUnderAmplitudeScaling(t *testing.T) {
	gen, err := simsignal.New(1, 4e6, 0)
	require.NoError(t, err)

	var cn0s []float64
	for _, amp := range []float64{0.1, 1.0, 10.0, 100.0} {
		cfg := testConfig(1)
		ch := newTestChannel(t, cfg)
		ch.StartTracking(0, 0, 0)
		records := feedPRNs(t, ch, gen, 80, gpscode.ChipRateHz, 0, amp)
		last := records[len(records)-1]
		require.True(t, last.Valid)
		cn0s = append(cn0s, last.CN0dBHz)
	}
	for i := 1; i < len(cn0s); i++ {
		assert.InDelta(t, cn0s[0], cn0s[i], 0.5, "CN0 should be invariant to amplitude scaling")
	}
}

func TestPureToneDrivesDopplerWithinOneHzWithin500Periods(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 300, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	_ = feedPRNs(t, ch, gen, 520, 0, 300, 1.0)
	assert.InDelta(t, 300.0, ch.fd, 1.0)
}

func TestRhoAndPsiStayInBoundsAcrossPeriods(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prn := rapid.IntRange(1, 32).Draw(t, "prn")
		doppler := rapid.Float64Range(-2000, 2000).Draw(t, "doppler")

		cfg := testConfig(prn)
		ch, err := NewChannel(cfg, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		ch.StartTracking(0, doppler, 0)

		gen, genErr := simsignal.New(prn, cfg.SampleRateHz, cfg.IfFreqHz)
		if genErr != nil {
			t.Fatal(genErr)
		}

		want := ch.RequiredSamples()
		total := 10*4000 + want
		samples := gen.Samples(total, gpscode.ChipRateHz, 0, doppler, 0, 1.0)

		cursor := 0
		for i := 0; i < 8 && cursor+want <= len(samples); i++ {
			_, consumed := ch.Process(samples[cursor : cursor+want])
			cursor += consumed
			if consumed == 0 {
				break
			}
			if ch.rho < 0 || ch.rho >= float64(ch.nNext) {
				t.Fatalf("rho %v out of [0, %d)", ch.rho, ch.nNext)
			}
			if ch.psi < 0 || ch.psi >= 2*math.Pi {
				t.Fatalf("psi %v out of [0, 2pi)", ch.psi)
			}
		}
	})
}

func TestPsiNonDecreasingAcrossValidSynchros(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	records := feedPRNs(t, ch, gen, 100, gpscode.ChipRateHz, 0, 1.0)
	last := -1.0
	for _, r := range records {
		if !r.Valid {
			continue
		}
		assert.GreaterOrEqual(t, r.CarrierPhaseRads, last)
		last = r.CarrierPhaseRads
	}
}

func TestRadialVelocityHandoverZeroDopplerAndZeroDiffIsIdentity(t *testing.T) {
	correctedPhi0, codeFreqHz, nextPrnSamples, delayCorrection := radialVelocityHandover(123, 0, 0, 0, 4e6)
	assert.Equal(t, gpscode.ChipRateHz, codeFreqHz)
	assert.Equal(t, 4000, nextPrnSamples)
	assert.InDelta(t, 123.0, correctedPhi0, 1e-9)
	assert.InDelta(t, 0.0, delayCorrection, 1e-9)
}

func TestRadialVelocityHandoverScalesCodeFreqWithDoppler(t *testing.T) {
	_, codeFreqHz, nextPrnSamples, _ := radialVelocityHandover(0, 2500, 0, 0, 4e6)
	wantCodeFreq := (gpscode.L1FreqHz + 2500) / gpscode.L1FreqHz * gpscode.ChipRateHz
	assert.InDelta(t, wantCodeFreq, codeFreqHz, 1e-6)
	assert.Greater(t, codeFreqHz, gpscode.ChipRateHz, "positive Doppler should raise the scaled chip rate")
	// PRN length barely moves at a few kHz of Doppler out of a 1.023 MHz chip rate.
	assert.InDelta(t, 4000, nextPrnSamples, 1)
}

func TestRadialVelocityHandoverCorrectsPhaseWhenAcqTrkDiffNonzero(t *testing.T) {
	// acqTrkDiffSamples < tacqSamples models a channel that starts tracking
	// before as many samples have elapsed as the acquisition's own
	// timestamp implied, producing a negative diff and a nonzero
	// correction once combined with a nonzero Doppler.
	correctedPhi0, _, _, delayCorrection := radialVelocityHandover(123, 2500, 0, 500, 4e6)
	assert.NotEqual(t, 123.0, correctedPhi0)
	assert.InDelta(t, 123.0-correctedPhi0, delayCorrection, 1e-9)
}

func TestRadialVelocityHandoverWrapsNegativeCorrectedPhaseIntoModifiedPrnPeriod(t *testing.T) {
	// A large negative correction term should wrap forward by the
	// Doppler-modified (not nominal) PRN period, per the original's
	// asymmetric fmod-then-add-back behavior.
	correctedPhi0, _, _, _ := radialVelocityHandover(0, 2500, 0, 1_000_000, 4e6)
	assert.GreaterOrEqual(t, correctedPhi0, 0.0)
	assert.Less(t, correctedPhi0, 4001.0)
}

func TestPullInWithNonzeroDopplerAndNonzeroPhaseHandsOffCleanly(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(123, 2500, 500)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	records := feedPRNs(t, ch, gen, 220, gpscode.ChipRateHz, 2500, 1.0)
	require.NotEmpty(t, records)

	assert.True(t, ch.Enabled(), "channel should remain enabled through pull-in and tracking")
	last := records[len(records)-1]
	assert.True(t, last.Valid)
	assert.InDelta(t, 2500.0, ch.fd, 5.0)
}

func TestSampleAndTimeCountersAdvanceByNPerValidPeriod(t *testing.T) {
	cfg := testConfig(1)
	ch := newTestChannel(t, cfg)
	ch.StartTracking(0, 0, 0)

	gen, err := simsignal.New(1, cfg.SampleRateHz, cfg.IfFreqHz)
	require.NoError(t, err)

	want := ch.RequiredSamples()
	total := 20*4000 + want
	samples := gen.Samples(total, gpscode.ChipRateHz, 0, 0, 0, 1.0)

	cursor := 0
	var lastT float64
	haveLast := false
	for i := 0; i < 15; i++ {
		before := ch.tsec
		rec, consumed := ch.Process(samples[cursor : cursor+want])
		cursor += consumed
		if !rec.Valid {
			continue
		}
		if haveLast {
			assert.InDelta(t, float64(consumed)/cfg.SampleRateHz, ch.tsec-before, 1e-12)
		}
		lastT = rec.TrackingTimestampSecs
		haveLast = true
	}
	_ = lastT
}

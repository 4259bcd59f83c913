// Package loopfilter implements the carrier (PLL) and code (DLL) loop
// filters: a damped second-order filter for the carrier and a first-order
// filter for the code, each built around a single integrator seeded at
// acquisition handover.
//
// The natural-frequency/damping coefficients are the standard GPS
// receiver-design formulas (Kaplan & Hegarty; Borre et al., "A
// Software-Defined GPS and Galileo Receiver") and are grounded on
// mfkiwl-GPS-JAMMING's InitTrkPrmStruct (mfkiwl-GPS-JAMMING/gops/sdrinit.go),
// which precomputes the same PllW2/PllAw/DllW2/DllAw coefficients from
// a loop bandwidth for damping ζ=0.7.
package loopfilter

// DampingRatio is the fixed PLL damping factor.
const DampingRatio = 0.7

// Carrier is a second-order loop filter mapping cycles of phase error to
// a carrier-NCO correction in Hz.
type Carrier struct {
	bandwidthHz float64
	kp          float64 // proportional coefficient (1.414*wn)
	ki          float64 // integrator coefficient (wn^2)
	integrator  float64
	prevErr     float64
}

// NewCarrier builds a carrier loop filter for the given noise bandwidth.
func NewCarrier(bandwidthHz float64) *Carrier {
	wn := bandwidthHz / 0.53
	return &Carrier{
		bandwidthHz: bandwidthHz,
		kp:          1.414 * wn,
		ki:          wn * wn,
	}
}

// Initialize seeds the integrator. Channel.StartTracking seeds both
// filters at 0, matching mfkiwl-GPS-JAMMING's zero-valued CarrNco/CodeNco
// accumulators.
func (f *Carrier) Initialize(x0 float64) {
	f.integrator = x0
	f.prevErr = 0
}

// Step advances the filter by one PRN period of length dt seconds given
// the latest discriminator error in cycles, returning the NCO correction.
func (f *Carrier) Step(errCycles, dt float64) float64 {
	f.integrator += f.kp*(errCycles-f.prevErr) + f.ki*dt*errCycles
	f.prevErr = errCycles
	return f.integrator
}

// BandwidthHz reports the configured loop bandwidth.
func (f *Carrier) BandwidthHz() float64 { return f.bandwidthHz }

// Code is a first-order loop filter mapping chips of code error to a
// code-NCO correction in Hz.
type Code struct {
	bandwidthHz float64
	k           float64 // wn = 4*Bn for a first-order loop
	integrator  float64
}

// NewCode builds a code loop filter for the given noise bandwidth.
func NewCode(bandwidthHz float64) *Code {
	return &Code{
		bandwidthHz: bandwidthHz,
		k:           bandwidthHz / 0.25,
	}
}

// Initialize seeds the integrator.
func (f *Code) Initialize(x0 float64) {
	f.integrator = x0
}

// Step advances the filter by one PRN period of length dt seconds given the
// latest discriminator error in chips, returning the NCO correction.
func (f *Code) Step(errChips, dt float64) float64 {
	f.integrator += f.k * dt * errChips
	return f.integrator
}

// BandwidthHz reports the configured loop bandwidth.
func (f *Code) BandwidthHz() float64 { return f.bandwidthHz }

package tracking

import "math"

// pllDiscriminator is the two-quadrant Costas arctangent phase
// discriminator, returning phase error in cycles. Two-quadrant (atan2 over
// (−π, π]) makes it insensitive to the ±π navigation-bit phase flip, the
// property a Costas loop needs to track BPSK data.
func pllDiscriminator(prompt complex128) float64 {
	return math.Atan2(imag(prompt), real(prompt)) / (2 * math.Pi)
}

// dllDiscriminator is the normalized non-coherent early-minus-late
// envelope discriminator, returning error in chips (before loop-filter
// scaling). Returns 0 when the early+late energy is zero rather than
// dividing by zero.
func dllDiscriminator(absE, absL float64) float64 {
	denom := absE + absL
	if denom > 0 {
		return (absE - absL) / denom
	}
	return 0
}

package tracking

import "math/cmplx"

// correlate computes the three complex correlator scalars E*, P*, L* over
// the current PRN window: each is Σᵢ inᵢ·conj(carrierᵢ)·replicaᵢ, with no
// accumulation across PRN periods.
//
// Grounded on mfkiwl-GPS-JAMMING's correlator (mfkiwl-GPS-JAMMING/gops/sdrtrk.go
// correlator/MixCarr/dot_22), which separates carrier wipe-off from the
// code dot product and operates on int16 scratch for SIMD-friendly
// throughput; this keeps the two-stage wipe-off-then-dot structure but
// works directly in complex128, trading mfkiwl-GPS-JAMMING's fixed-point scaling
// for double-precision accuracy.
func correlate(in, carrier, e, p, l []complex128, n int) (ec, pc, lc complex128) {
	for i := 0; i < n; i++ {
		wiped := in[i] * cmplx.Conj(carrier[i])
		ec += wiped * e[i]
		pc += wiped * p[i]
		lc += wiped * l[i]
	}
	return ec, pc, lc
}

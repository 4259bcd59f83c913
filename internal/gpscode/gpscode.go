// Package gpscode generates the GPS L1 C/A pseudo-random-noise chip
// sequence (IS-GPS-200 G1/G2 generator polynomials) for a given PRN.
//
// Grounded on mfkiwl-GPS-JAMMING's GencodeL1CA (mfkiwl-GPS-JAMMING/gops/sdrcode.go),
// itself a translation of GNSS-SDR's gps_sdr_signal_processing code
// generator. The PRN-specific G2 phase-selector delays below are the
// standard IS-GPS-200 Appendix II-I table.
package gpscode

import (
	"fmt"
	"math"
)

const (
	// ChipLen is the number of chips in one GPS L1 C/A period.
	ChipLen = 1023
	// ChipRateHz is the nominal C/A chipping rate.
	ChipRateHz = 1.023e6
	// L1FreqHz is the GPS L1 carrier frequency, used to scale the nominal
	// chip rate and PRN period by the acquisition Doppler's implied radial
	// velocity during pull-in handover.
	L1FreqHz = 1575.42e6
)

// caDelay holds the G2 phase selector delay, indexed by PRN-1, for PRNs 1..210
// (1..32 are GPS SVs; 33..210 cover SBAS/QZSS extensions some receivers track
// on the same generator, carried through from the ported table unchanged).
var caDelay = []int{
	5, 6, 7, 8, 17, 18, 139, 140, 141, 251,
	252, 254, 255, 256, 257, 258, 469, 470, 471, 472,
	473, 474, 509, 512, 513, 514, 515, 516, 859, 860,
	861, 862, 863, 950, 947, 948, 950, 67, 103, 91,
	19, 679, 225, 625, 946, 638, 161, 1001, 554, 280,
	710, 709, 775, 864, 558, 220, 397, 55, 898, 759,
	367, 299, 1018, 729, 695, 780, 801, 788, 732, 34,
	320, 327, 389, 407, 525, 405, 221, 761, 260, 326,
	955, 653, 699, 422, 188, 438, 959, 539, 879, 677,
	586, 153, 792, 814, 446, 264, 1015, 278, 536, 819,
	156, 957, 159, 712, 885, 461, 248, 713, 126, 807,
	279, 122, 197, 693, 632, 771, 467, 647, 203, 145,
	175, 52, 21, 237, 235, 886, 657, 634, 762, 355,
	1012, 176, 603, 130, 359, 595, 68, 386, 797, 456,
	499, 883, 307, 127, 211, 121, 118, 163, 628, 853,
	484, 289, 811, 202, 1021, 463, 568, 904, 670, 230,
	911, 684, 309, 644, 932, 12, 314, 891, 212, 185,
	675, 503, 150, 395, 345, 846, 798, 992, 357, 995,
	877, 112, 144, 476, 193, 109, 445, 291, 87, 399,
	292, 901, 339, 208, 711, 189, 263, 537, 663, 942,
	173, 900, 30, 500, 935, 556, 373, 85, 652, 310,
}

// MaxPRN is the highest PRN this generator can produce a sequence for.
func MaxPRN() int { return len(caDelay) }

// Table is the padded chip lookup table: positions
// 1..1023 hold the ±1 PRN-specific chip sequence; position 0 is a copy of
// chip 1023 and position 1024 is a copy of chip 1, so the replica builder's
// hot loop can index with 1+round(mod(tcode, 1023)) without ever branching
// on the wraparound.
type Table [ChipLen + 2]int8

// Generate builds the padded chip table for prn (1..MaxPRN()). It is a pure
// function of prn: idempotent, no shared state.
func Generate(prn int) (Table, error) {
	if prn < 1 || prn > MaxPRN() {
		return Table{}, fmt.Errorf("gpscode: PRN %d out of range [1,%d]", prn, MaxPRN())
	}

	var r1, r2 [10]int8
	for i := range r1 {
		r1[i] = -1
		r2[i] = -1
	}

	var g1, g2 [ChipLen]int8
	for i := 0; i < ChipLen; i++ {
		g1[i] = r1[9]
		g2[i] = r2[9]
		c1 := r1[2] * r1[9]
		c2 := r2[1] * r2[2] * r2[5] * r2[7] * r2[8] * r2[9]
		for j := 9; j > 0; j-- {
			r1[j] = r1[j-1]
			r2[j] = r2[j-1]
		}
		r1[0] = c1
		r2[0] = c2
	}

	var tbl Table
	j := ChipLen - caDelay[prn-1]
	for i := 0; i < ChipLen; i++ {
		tbl[i+1] = -g1[i] * g2[j%ChipLen]
		j++
	}
	tbl[0] = tbl[ChipLen]
	tbl[ChipLen+1] = tbl[1]
	return tbl, nil
}

// ChipAt samples the table at a fractional chip phase, wrapping modulo
// ChipLen and rounding half away from zero (math.Round already does this
// for both signs once the value is non-negative).
func (t Table) ChipAt(phase float64) int8 {
	m := math.Mod(phase, ChipLen)
	if m < 0 {
		m += ChipLen
	}
	idx := 1 + int(math.Round(m))
	return t[idx]
}

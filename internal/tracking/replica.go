package tracking

import (
	"math"

	"github.com/mfkiwl/gpstrack/internal/gpscode"
)

// buildReplicas fills e, p, l (each length n) with the sampled early,
// prompt, and late code replicas for the current PRN window. chipStep is
// the code-phase advance per sample in chips (fc/Fs); deltaChips is the
// early/late spacing δ. Chip indices are taken after the modulo wrap so
// they never go negative.
func buildReplicas(table *gpscode.Table, n int, rho, chipStep, deltaChips float64, e, p, l []complex128) {
	for i := 0; i < n; i++ {
		tcode := -rho*chipStep + float64(i)*chipStep
		e[i] = complex(float64(table.ChipAt(tcode-deltaChips)), 0)
		p[i] = complex(float64(table.ChipAt(tcode)), 0)
		l[i] = complex(float64(table.ChipAt(tcode+deltaChips)), 0)
	}
}

// buildCarrier fills carrier (length n) with the complex carrier wipe-off
// vector exp(j*(psi0 + i*deltaPsi)) and returns the wrapped residual phase
// after the last sample, (psi0 + n*deltaPsi) mod 2π.
func buildCarrier(n int, psi0, deltaPsi float64, carrier []complex128) (newPsi float64) {
	for i := 0; i < n; i++ {
		theta := psi0 + float64(i)*deltaPsi
		carrier[i] = complex(math.Cos(theta), math.Sin(theta))
	}
	newPsi = math.Mod(psi0+float64(n)*deltaPsi, 2*math.Pi)
	if newPsi < 0 {
		newPsi += 2 * math.Pi
	}
	if newPsi >= 2*math.Pi {
		newPsi = 0
	}
	return newPsi
}

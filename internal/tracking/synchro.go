package tracking

// Synchro is the per-PRN synchronization record handed to a downstream
// telemetry decoder. It uses the mathematically correct Prompt_I/Prompt_Q
// mapping; the historical swapped mapping in the binary trace format is a
// dump.Writer concern only.
type Synchro struct {
	PRN    int
	System string

	PromptI float64
	PromptQ float64

	TrackingTimestampSecs float64
	CarrierPhaseRads      float64
	CodePhaseSecs         float64
	CN0dBHz               float64

	Valid bool
}

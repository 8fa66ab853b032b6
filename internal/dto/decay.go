package dto

// DecayResult summarises one weekly decay run.
type DecayResult struct {
	Cycle          string `json:"cycle"`
	ReducedCount   int    `json:"reducedCount"`
	CompletedCount int    `json:"completedCount"`
	SkippedCount   int    `json:"skippedCount"`
	FailedCount    int    `json:"failedCount"`
}

// Package workflow holds the internship application core: the
// eligibility evaluator, the application state machine, and the
// document ledger projection. Everything here is pure; persistence and
// transport live in the surrounding layers.
package workflow

// EvaluateEligibility decides whether a credit snapshot satisfies a
// session's minimum-credit threshold. A missing snapshot is never
// eligible (fail closed on absent data). Callers persist the result on
// the enrollment and re-invoke whenever credits or the threshold
// change.
func EvaluateEligibility(creditsEarned *float64, minCredits float64) bool {
	if creditsEarned == nil {
		return false
	}
	return *creditsEarned >= minCredits
}

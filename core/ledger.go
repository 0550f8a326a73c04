package core

// ExpectedState is the previously observed state a conditional ledger
// write is keyed on. Absent asserts no record exists yet for the pair.
type ExpectedState struct {
	Absent bool
	Status Status
	Cycle  int
}

// ExpectedAbsent asserts the (user, quest) pair has no record.
func ExpectedAbsent() ExpectedState { return ExpectedState{Absent: true} }

// Expected asserts the record currently holds the given status and cycle.
func Expected(status Status, cycle int) ExpectedState {
	return ExpectedState{Status: status, Cycle: cycle}
}

package ports

// RetryBudget is per-run retry accounting threaded through a collaborator call.
// A nil budget allows no retries.
type RetryBudget struct {
	max  int
	used int
}

// NewRetryBudget allows up to max retries.
func NewRetryBudget(max int) *RetryBudget {
	if max < 0 {
		max = 0
	}
	return &RetryBudget{max: max}
}

// Spend consumes one retry and reports whether it was available.
func (b *RetryBudget) Spend() bool {
	if b == nil || b.used >= b.max {
		return false
	}
	b.used++
	return true
}

// Remaining returns the number of retries left.
func (b *RetryBudget) Remaining() int {
	if b == nil {
		return 0
	}
	return b.max - b.used
}

// Used returns the number of retries consumed so far.
func (b *RetryBudget) Used() int {
	if b == nil {
		return 0
	}
	return b.used
}

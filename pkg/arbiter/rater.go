package arbiter

// Rater accumulates a score from independent checks. A failed hard requirement zeroes the
// score and makes every later check a no-op.
type Rater struct {
	score  int
	failed bool
}

// Add awards points when ok holds.
func (r *Rater) Add(ok bool, points int) *Rater {
	if !r.failed && ok {
		r.score += points
	}
	return r
}

// Require awards points when ok holds and fails the rating otherwise.
func (r *Rater) Require(ok bool, points int) *Rater {
	if r.failed {
		return r
	}
	if !ok {
		r.failed = true
		r.score = 0
		return r
	}
	r.score += points
	return r
}

// Check runs fn only while the rating has not failed. fn is for checks that need data a
// previous requirement guaranteed.
func (r *Rater) Check(fn func() bool, points int) *Rater {
	if r.failed {
		return r
	}
	return r.Add(fn(), points)
}

// Failed reports whether a requirement was missed.
func (r *Rater) Failed() bool { return r.failed }

// Score returns the total, or zero after a failed requirement.
func (r *Rater) Score() int {
	if r.failed {
		return 0
	}
	return r.score
}

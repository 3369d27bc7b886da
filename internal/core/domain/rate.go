package domain

// Rate is one line of the price table: an exact peso amount buys a fixed
// number of minutes at a fixed pair of shaping speeds.
type Rate struct {
	ID           string
	Amount       int64
	Minutes      int64
	RateUpKbps   int64
	RateDownKbps int64
}

// Plan is the result of RatePlanner.Plan: the best minutes obtainable for
// an exact peso amount, and the shaping speeds that go with it.
type Plan struct {
	Minutes      int64
	RateUpKbps   int64
	RateDownKbps int64
	LinesUsed    int
}

// Zero reports whether the plan failed to fit any amount (planner fails
// closed per the §4.2 fallback rule).
func (p Plan) Zero() bool {
	return p.Minutes == 0
}

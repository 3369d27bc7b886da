package usecase

import (
	"sort"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// RatePlanner computes the maximum minutes obtainable for an exact peso
// amount against a RateTable's visible lines for a given source.
type RatePlanner struct {
	table *RateTable
}

// NewRatePlanner wires a planner against an already-loaded RateTable.
func NewRatePlanner(table *RateTable) *RatePlanner {
	return &RatePlanner{table: table}
}

// Plan is pure given the table's current snapshot: plan(0) = {0,-,-},
// and among equal-minute plans the one using fewer lines wins.
func (p *RatePlanner) Plan(amount int64, sourceID string) domain.Plan {
	if amount <= 0 {
		return domain.Plan{}
	}
	return plan(amount, p.table.LinesFor(sourceID))
}

func plan(amount int64, lines []domain.Rate) domain.Plan {
	if amount <= 0 || len(lines) == 0 {
		return domain.Plan{}
	}

	var best domain.Plan
	var haveBest bool

	if greedyMinutes, greedyUsed, remainder := greedyPlan(amount, lines); remainder == 0 {
		best = speedsFor(greedyMinutes, greedyUsed)
		haveBest = true
	}

	// The DP refinement always runs and takes over whenever it finds an
	// equal-or-better exact plan, since greedy is not provably optimal
	// for arbitrary denominations.
	if dpMinutes, dpUsed, ok := exactFitDP(amount, lines); ok {
		if !haveBest || dpMinutes > best.Minutes ||
			(dpMinutes == best.Minutes && len(dpUsed) < best.LinesUsed) {
			best = speedsFor(dpMinutes, dpUsed)
			haveBest = true
		}
	}

	if haveBest {
		return best
	}
	return fallbackPlan(amount, lines)
}

// greedyPlan sorts lines by amount descending, then minutes descending,
// greedily taking as many copies of each as fit. used lists one entry per
// coin copy actually consumed, for line-count tie-breaking.
func greedyPlan(amount int64, lines []domain.Rate) (minutes int64, used []domain.Rate, remainder int64) {
	sorted := append([]domain.Rate(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Amount != sorted[j].Amount {
			return sorted[i].Amount > sorted[j].Amount
		}
		return sorted[i].Minutes > sorted[j].Minutes
	})

	remaining := amount
	for _, line := range sorted {
		if line.Amount <= 0 || remaining <= 0 {
			continue
		}
		copies := remaining / line.Amount
		if copies <= 0 {
			continue
		}
		minutes += copies * line.Minutes
		remaining -= copies * line.Amount
		for c := int64(0); c < copies; c++ {
			used = append(used, line)
		}
		if remaining == 0 {
			break
		}
	}
	return minutes, used, remaining
}

// exactFitDP runs an unbounded-knapsack DP over [0..amount] maximizing
// minutes, backtracking the chosen line at each reachable unit.
func exactFitDP(amount int64, lines []domain.Rate) (int64, []domain.Rate, bool) {
	dp := make([]int64, amount+1)
	reach := make([]bool, amount+1)
	choice := make([]int, amount+1)
	reach[0] = true
	for i := int64(1); i <= amount; i++ {
		best := int64(-1)
		bestIdx := -1
		for idx, line := range lines {
			if line.Amount <= 0 || line.Amount > i || !reach[i-line.Amount] {
				continue
			}
			candidate := dp[i-line.Amount] + line.Minutes
			if candidate > best {
				best = candidate
				bestIdx = idx
			}
		}
		if bestIdx >= 0 {
			dp[i] = best
			reach[i] = true
			choice[i] = bestIdx
		}
	}

	if !reach[amount] {
		return 0, nil, false
	}

	var used []domain.Rate
	for i := amount; i > 0; {
		line := lines[choice[i]]
		used = append(used, line)
		i -= line.Amount
	}
	return dp[amount], used, true
}

// fallbackPlan scales the amount=1 base rate linearly when no exact
// combination exists; if no amount=1 rate exists the planner fails closed.
func fallbackPlan(amount int64, lines []domain.Rate) domain.Plan {
	for _, line := range lines {
		if line.Amount == 1 {
			return domain.Plan{
				Minutes:      line.Minutes * amount,
				RateUpKbps:   line.RateUpKbps,
				RateDownKbps: line.RateDownKbps,
				LinesUsed:    1,
			}
		}
	}
	return domain.Plan{}
}

// speedsFor carries the max up/down speed across the lines actually used.
func speedsFor(minutes int64, used []domain.Rate) domain.Plan {
	var up, down int64
	for _, line := range used {
		if line.RateUpKbps > up {
			up = line.RateUpKbps
		}
		if line.RateDownKbps > down {
			down = line.RateDownKbps
		}
	}
	return domain.Plan{
		Minutes:      minutes,
		RateUpKbps:   up,
		RateDownKbps: down,
		LinesUsed:    len(used),
	}
}

package usecase

import "testing"

import "github.com/coinvendo/gateway/internal/core/domain"

func TestPlanZeroAmount(t *testing.T) {
	lines := []domain.Rate{{Amount: 1, Minutes: 1}}
	got := plan(0, lines)
	if !got.Zero() {
		t.Fatalf("plan(0) = %+v, want zero plan", got)
	}
}

func TestPlanSingleBaseRate(t *testing.T) {
	lines := []domain.Rate{{Amount: 1, Minutes: 1}}
	got := plan(1, lines)
	if got.Minutes != 1 {
		t.Fatalf("plan(1) minutes = %d, want 1", got.Minutes)
	}
}

// DP refinement must beat a naive greedy pick when a higher-denomination
// line is not actually the best exact fit.
func TestPlanDPBeatsGreedy(t *testing.T) {
	lines := []domain.Rate{
		{Amount: 1, Minutes: 1},
		{Amount: 5, Minutes: 8},
		{Amount: 10, Minutes: 15},
	}
	got := plan(13, lines)
	if got.Minutes != 19 {
		t.Fatalf("plan(13) minutes = %d, want 19 (2x5 + 3x1 = 16+3)", got.Minutes)
	}
}

func TestPlanFallsBackToBaseRate(t *testing.T) {
	lines := []domain.Rate{
		{Amount: 1, Minutes: 1},
		{Amount: 5, Minutes: 7},
	}
	got := plan(3, lines)
	if got.Minutes != 3 {
		t.Fatalf("plan(3) minutes = %d, want 3 (three 1-peso base lines)", got.Minutes)
	}
}

func TestPlanFailsClosedWithoutBaseRate(t *testing.T) {
	lines := []domain.Rate{{Amount: 5, Minutes: 7}}
	got := plan(3, lines)
	if !got.Zero() {
		t.Fatalf("plan(3) = %+v, want zero plan (no amount=1 fallback)", got)
	}
}

func TestPlanPrefersFewerLinesOnTie(t *testing.T) {
	lines := []domain.Rate{
		{Amount: 1, Minutes: 1},
		{Amount: 2, Minutes: 2},
	}
	got := plan(4, lines)
	if got.Minutes != 4 {
		t.Fatalf("plan(4) minutes = %d, want 4", got.Minutes)
	}
	if got.LinesUsed != 2 {
		t.Fatalf("plan(4) linesUsed = %d, want 2 (two 2-peso coins, not four 1-peso)", got.LinesUsed)
	}
}

func TestPlanMaxSpeedAcrossUsedLines(t *testing.T) {
	lines := []domain.Rate{
		{Amount: 1, Minutes: 1, RateUpKbps: 256, RateDownKbps: 512},
		{Amount: 5, Minutes: 7, RateUpKbps: 1024, RateDownKbps: 2048},
	}
	got := plan(6, lines)
	if got.RateUpKbps != 1024 || got.RateDownKbps != 2048 {
		t.Fatalf("plan(6) speeds = %d/%d, want max 1024/2048", got.RateUpKbps, got.RateDownKbps)
	}
}

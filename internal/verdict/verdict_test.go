package verdict

import (
	"testing"

	"github.com/abhisek/mathquiz/internal/reasoning"
)

func TestCombine_Exhaustive(t *testing.T) {
	tests := []struct {
		correct bool
		tier    reasoning.Tier
		want    Verdict
	}{
		{false, reasoning.TierGood, Incorrect},
		{false, reasoning.TierOK, Incorrect},
		{false, reasoning.TierPoor, Incorrect},
		{true, reasoning.TierGood, Correct},
		{true, reasoning.TierOK, PartiallyCorrect},
		{true, reasoning.TierPoor, Incorrect},
		{true, reasoning.Tier("bogus"), Incorrect},
	}
	for _, tt := range tests {
		if got := Combine(tt.correct, tt.tier); got != tt.want {
			t.Errorf("Combine(%v, %q) = %q, want %q", tt.correct, tt.tier, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Verdict
	}{
		{"correct", Correct},
		{"CORRECT", Correct},
		{" Correct ", Correct},
		{"partially-correct", PartiallyCorrect},
		{"Partial", PartiallyCorrect},
		{"partially", PartiallyCorrect},
		{"incorrect", Incorrect},
		{"", Incorrect},
		{"great", Incorrect},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := PartiallyCorrect.Label(); got != "Partially Correct" {
		t.Errorf("Label() = %q", got)
	}
	if got := Verdict("PARTIAL").Label(); got != "Partially Correct" {
		t.Errorf("Label() = %q", got)
	}
	if got := Verdict("").Label(); got != "Incorrect" {
		t.Errorf("Label() = %q", got)
	}
}

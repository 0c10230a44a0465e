package matching

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "Resistor 10K Ohm", []string{"resistor", "10k", "ohm"}},
		{"punctuation stripped", "CAP, CER 0.1uF (X7R)", []string{"cap", "cer", "0.1uf", "x7r"}},
		{"short tokens dropped", "M3 x 8mm screw", []string{"m3", "8mm", "screw"}},
		{"part number dashes kept", "LM358-N dual op-amp", []string{"lm358-n", "dual", "op-amp"}},
		{"empty", "", nil},
		{"only punctuation", "!@# $%", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFuzzyConfidence(t *testing.T) {
	// Full overlap hits the cap
	if got := FuzzyConfidence("resistor 10k", "resistor 10k ohm 1% 0603"); got != fuzzyConfidenceCap {
		t.Errorf("Expected %v for full overlap, got %v", fuzzyConfidenceCap, got)
	}

	// Half overlap is half the cap
	if got := FuzzyConfidence("resistor 10k", "resistor array"); got != fuzzyConfidenceCap/2 {
		t.Errorf("Expected %v for half overlap, got %v", fuzzyConfidenceCap/2, got)
	}

	// No overlap
	if got := FuzzyConfidence("capacitor ceramic", "steel bracket"); got != 0 {
		t.Errorf("Expected 0 for no overlap, got %v", got)
	}

	// Empty query
	if got := FuzzyConfidence("", "anything"); got != 0 {
		t.Errorf("Expected 0 for empty query, got %v", got)
	}

	// Matching is case-insensitive
	if got := FuzzyConfidence("RESISTOR 10K", "resistor 10k"); got != fuzzyConfidenceCap {
		t.Errorf("Expected case-insensitive match, got %v", got)
	}
}

func TestFuzzyConfidenceNeverExceedsCap(t *testing.T) {
	queries := []string{"a bb ccc", "resistor", "resistor resistor resistor"}
	for _, q := range queries {
		if got := FuzzyConfidence(q, q); got > fuzzyConfidenceCap {
			t.Errorf("FuzzyConfidence(%q, %q) = %v exceeds cap %v", q, q, got, fuzzyConfidenceCap)
		}
	}
}

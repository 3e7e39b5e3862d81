package nlu

import "testing"

func TestValidateTrackingCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		verdict Verdict
	}{
		{name: "already valid", raw: "DKR240815", want: "DKR240815", verdict: VerdictValid},
		{name: "lowercase with spaces", raw: "  dkr 240 815 ", want: "DKR240815", verdict: VerdictValid},
		{name: "numeric gets checksum letter", raw: "12345678", want: "K12345678", verdict: VerdictCorrected},
		{name: "alpha gets hash suffix", raw: "abcdefgh", want: "ABCDEFGH48", verdict: VerdictCorrected},
		{name: "too short", raw: "ABC123", want: "ABC123", verdict: VerdictInvalid},
		{name: "too long", raw: "A123456789012345678901234", want: "A123456789012345678901234", verdict: VerdictInvalid},
		{name: "forbidden characters", raw: "DKR-240815", want: "DKR-240815", verdict: VerdictInvalid},
		{name: "empty", raw: "   ", want: "", verdict: VerdictInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verdict := ValidateTrackingCode(tt.raw)
			if got != tt.want || verdict != tt.verdict {
				t.Fatalf("ValidateTrackingCode(%q) = (%q, %s), want (%q, %s)", tt.raw, got, verdict, tt.want, tt.verdict)
			}
		})
	}
}

func TestValidateTrackingCodeBoundaryLengths(t *testing.T) {
	// A 19-digit candidate still has room for the checksum letter; a
	// 20-digit one would overflow the maximum length and stays invalid.
	nineteen := "1234567890123456789"
	if fixed, verdict := ValidateTrackingCode(nineteen); verdict != VerdictCorrected || len(fixed) != 20 {
		t.Fatalf("19 digits: got (%q, %s), want 20-char corrected code", fixed, verdict)
	}
	twenty := "12345678901234567890"
	if _, verdict := ValidateTrackingCode(twenty); verdict != VerdictInvalid {
		t.Fatalf("20 digits: got %s, want invalid", verdict)
	}
}

func TestCorrectionIsDeterministic(t *testing.T) {
	first, _ := ValidateTrackingCode("98765432")
	for i := 0; i < 10; i++ {
		got, verdict := ValidateTrackingCode("98765432")
		if got != first || verdict != VerdictCorrected {
			t.Fatalf("run %d: got (%q, %s), want (%q, corrected)", i, got, verdict, first)
		}
	}
	if !IsValidTrackingCode(first) {
		t.Fatalf("corrected code %q does not re-validate", first)
	}
}

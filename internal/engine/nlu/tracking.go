package nlu

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of tracking-code validation.
type Verdict int

const (
	// VerdictValid means the code already satisfies the format contract.
	VerdictValid Verdict = iota
	// VerdictCorrected means a deterministic repair produced a valid code;
	// the caller must confirm with the user before acting on it.
	VerdictCorrected
	// VerdictInvalid means no repair was possible; the caller must
	// re-prompt with a concrete example and must not call the tool.
	VerdictInvalid
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictCorrected:
		return "corrected"
	default:
		return "invalid"
	}
}

// TrackingCodeExample is shown to the user when re-prompting after an
// invalid code.
const TrackingCodeExample = "DKR240815"

const (
	trackingMinLen = 8
	trackingMaxLen = 20
)

// NormalizeTrackingCode applies the contract normalization: trim,
// uppercase, strip internal spaces.
func NormalizeTrackingCode(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, " ", "")
}

// IsValidTrackingCode reports whether code satisfies the format contract:
// 8-20 chars, A-Z and 0-9 only, mixing at least one letter and one digit.
func IsValidTrackingCode(code string) bool {
	if len(code) < trackingMinLen || len(code) > trackingMaxLen {
		return false
	}
	var hasLetter, hasDigit bool
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
			hasDigit = true
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}

// ValidateTrackingCode runs the three-outcome validation state machine on a
// raw candidate and returns the (possibly repaired) code together with the
// verdict.
//
// Purely numeric candidates of plausible length get a checksum letter
// prepended; purely alphabetic ones get a two-digit hash appended. A repair
// only counts when the result re-validates; at boundary lengths where the
// repaired code would exceed the maximum the candidate falls through to
// invalid.
func ValidateTrackingCode(raw string) (string, Verdict) {
	code := NormalizeTrackingCode(raw)
	if IsValidTrackingCode(code) {
		return code, VerdictValid
	}

	if n := len(code); n >= trackingMinLen && n <= trackingMaxLen {
		if isAllDigits(code) {
			checksum := 0
			for i := 0; i < n; i++ {
				checksum += int(code[i] - '0')
			}
			fixed := string(rune('A'+checksum%26)) + code
			if IsValidTrackingCode(fixed) {
				return fixed, VerdictCorrected
			}
		}
		if isAllLetters(code) {
			hash := 0
			for i := 0; i < n; i++ {
				hash += int(code[i])
			}
			fixed := code + fmt.Sprintf("%02d", hash%100)
			if IsValidTrackingCode(fixed) {
				return fixed, VerdictCorrected
			}
		}
	}

	return code, VerdictInvalid
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAllLetters(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

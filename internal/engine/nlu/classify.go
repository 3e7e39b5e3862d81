package nlu

import (
	"regexp"
	"strings"
)

const (
	scoreExact    = 1.0
	scoreWildcard = 0.9
	scoreOverlap  = 0.8
	overlapFloor  = 0.5
)

// Classification is the classifier's verdict for one message.
type Classification struct {
	Intent     string
	Confidence float64
}

// Classifier scores a message against the intent catalogue. It is fully
// deterministic: the same input always yields the same intent and
// confidence, and ties resolve to the earlier-declared intent.
type Classifier struct {
	rules     *Rules
	wildcards map[string]*regexp.Regexp
}

// NewClassifier compiles the catalogue's wildcard patterns once up front.
func NewClassifier(rules *Rules) *Classifier {
	c := &Classifier{
		rules:     rules,
		wildcards: make(map[string]*regexp.Regexp),
	}
	for _, it := range rules.Intents {
		for _, p := range it.Examples {
			if strings.Contains(p, "*") {
				c.wildcards[p] = compileWildcard(Normalize(p))
			}
		}
	}
	return c
}

// Classify returns the best-scoring intent for the message. When nothing
// scores above zero it returns the reserved fallback intent with zero
// confidence.
func (c *Classifier) Classify(text string) Classification {
	norm := Normalize(text)
	tokens := Tokenize(norm)

	best := Classification{Intent: IntentFallback, Confidence: 0}
	for _, it := range c.rules.Intents {
		score := c.scoreIntent(&it, norm, tokens)
		if score > best.Confidence {
			best = Classification{Intent: it.Name, Confidence: score}
		}
	}
	return best
}

// scoreIntent computes the maximum match score across the intent's example
// patterns.
func (c *Classifier) scoreIntent(it *IntentDef, norm string, tokens []string) float64 {
	var best float64
	for _, p := range it.Examples {
		np := Normalize(p)
		switch {
		case np == norm:
			return scoreExact
		case strings.Contains(p, "*"):
			if re := c.wildcards[p]; re != nil && re.MatchString(norm) {
				if scoreWildcard > best {
					best = scoreWildcard
				}
			}
		default:
			if s := overlapScore(Tokenize(np), tokens); s > best {
				best = s
			}
		}
	}
	return best
}

// overlapScore is the fraction of the pattern's words that appear, by
// substring containment in either direction, among the input tokens. The
// ratio is scaled by 0.8 and only counts past the 0.5 floor.
func overlapScore(patternWords, inputTokens []string) float64 {
	if len(patternWords) == 0 || len(inputTokens) == 0 {
		return 0
	}
	matched := 0
	for _, pw := range patternWords {
		for _, tok := range inputTokens {
			if strings.Contains(tok, pw) || strings.Contains(pw, tok) {
				matched++
				break
			}
		}
	}
	ratio := float64(matched) / float64(len(patternWords))
	if ratio <= overlapFloor {
		return 0
	}
	return scoreOverlap * ratio
}

// compileWildcard turns a literal pattern containing '*' into an anchored
// regular expression where each wildcard matches any run of characters.
func compileWildcard(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(strings.TrimSpace(p))
	}
	expr := "^" + strings.Join(parts, `\s*.*`) + "$"
	return regexp.MustCompile(expr)
}

// Normalize lowercases, trims and collapses internal whitespace. Both the
// classifier and the extractor operate on this form so their views of the
// message agree.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Tokenize splits a normalized string into words, trimming punctuation.
func Tokenize(norm string) []string {
	fields := strings.Fields(norm)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

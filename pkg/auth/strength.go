package auth

import (
	"strings"
	"unicode"
)

// Password requirement bounds.
const (
	passwordMinLength = 8
	passwordMaxLength = 128
)

// defaultBlacklist is the default set of common-password substrings rejected
// outright by Validate.
var defaultBlacklist = []string{
	"password", "123456", "qwerty", "abc123", "admin",
	"letmein", "welcome", "monkey", "1234567890",
}

// sequentialPatterns are trivially guessable runs that cost score points.
var sequentialPatterns = []string{"123", "abc", "qwe"}

// Violation names returned by Validate.
const (
	ViolationTooShort         = "too-short"
	ViolationTooLong          = "too-long"
	ViolationMissingLowercase = "missing-lowercase"
	ViolationMissingUppercase = "missing-uppercase"
	ViolationMissingDigit     = "missing-digit"
	ViolationMissingSpecial   = "missing-special"
	ViolationBlacklisted      = "blacklisted-pattern"
)

// StrengthResult is the outcome of evaluating a password.
type StrengthResult struct {
	Score      int      `json:"score"`
	Violations []string `json:"violations"`
	Valid      bool     `json:"valid"`
}

// StrengthEvaluator scores passwords and enforces hard requirements.
// Deterministic and side-effect free; it never fails.
type StrengthEvaluator struct {
	blacklist []string
}

// NewStrengthEvaluator creates an evaluator with the default common-password
// blacklist. Extra entries extend, not replace, the defaults.
func NewStrengthEvaluator(extraBlacklist ...string) *StrengthEvaluator {
	bl := make([]string, 0, len(defaultBlacklist)+len(extraBlacklist))
	bl = append(bl, defaultBlacklist...)
	bl = append(bl, extraBlacklist...)
	return &StrengthEvaluator{blacklist: bl}
}

// Evaluate scores the password on a 0-100 scale and reports any violated hard
// requirements. Adding any single good property never lowers the score.
func (e *StrengthEvaluator) Evaluate(password string) StrengthResult {
	violations := e.Validate(password)
	return StrengthResult{
		Score:      e.score(password),
		Violations: violations,
		Valid:      len(violations) == 0,
	}
}

// Validate enforces the hard requirements: length 8-128, one of each character
// class, and no common-password substring. Returns the violated requirement
// names; an empty slice means the password is acceptable.
func (e *StrengthEvaluator) Validate(password string) []string {
	var violations []string

	if len(password) < passwordMinLength {
		violations = append(violations, ViolationTooShort)
	}
	if len(password) > passwordMaxLength {
		violations = append(violations, ViolationTooLong)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasSpecial = true
		}
	}
	if !hasLower {
		violations = append(violations, ViolationMissingLowercase)
	}
	if !hasUpper {
		violations = append(violations, ViolationMissingUppercase)
	}
	if !hasDigit {
		violations = append(violations, ViolationMissingDigit)
	}
	if !hasSpecial {
		violations = append(violations, ViolationMissingSpecial)
	}

	lowered := strings.ToLower(password)
	for _, pattern := range e.blacklist {
		if strings.Contains(lowered, pattern) {
			violations = append(violations, ViolationBlacklisted)
			break
		}
	}

	return violations
}

// score computes the 0-100 strength score:
// base min(len*2, 20); +5 per lowercase/uppercase/digit presence; +10 for a
// special character; +2 per distinct character; -10 for a run of 3+ identical
// characters; -10 for a sequential pattern.
func (e *StrengthEvaluator) score(password string) int {
	score := len(password) * 2
	if score > 20 {
		score = 20
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	distinct := make(map[rune]struct{})
	for _, r := range password {
		distinct[r] = struct{}{}
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasSpecial = true
		}
	}

	if hasLower {
		score += 5
	}
	if hasUpper {
		score += 5
	}
	if hasDigit {
		score += 5
	}
	if hasSpecial {
		score += 10
	}

	score += len(distinct) * 2

	if hasRepeatedRun(password, 3) {
		score -= 10
	}

	lowered := strings.ToLower(password)
	for _, pattern := range sequentialPatterns {
		if strings.Contains(lowered, pattern) {
			score -= 10
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// hasRepeatedRun reports whether the string contains a run of n or more
// identical characters.
func hasRepeatedRun(s string, n int) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

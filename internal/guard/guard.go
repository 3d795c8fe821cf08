// Package guard holds the admission rules for verification requests.
//
// The rules are evaluated against a Snapshot of persisted history taken
// inside the inserting transaction; nothing here keeps in-memory counters.
package guard

import (
	"fmt"
	"regexp"
	"time"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
)

// Code is the machine-readable classification of a rejection.
type Code string

const (
	CodeUserHourly    Code = "RATE_LIMIT_USER_HOURLY"
	CodeUserSpacing   Code = "RATE_LIMIT_USER_SPACING"
	CodePatternFormat Code = "VALIDATION_PATTERN_FORMAT"
	CodeGlobal        Code = "RATE_LIMIT_GLOBAL"
)

func (c Code) Known() bool {
	switch c {
	case CodeUserHourly, CodeUserSpacing, CodePatternFormat, CodeGlobal:
		return true
	}
	return false
}

var patternRegex = regexp.MustCompile(fmt.Sprintf(
	`^[A-Za-z0-9]{%d,}\.\.\.[A-Za-z0-9]{%d,}$`,
	constants.PatternMinPrefix,
	constants.PatternMinSuffix,
))

// ValidPattern reports whether p has the masked-wallet shape first6...last4.
func ValidPattern(p string) bool {
	return patternRegex.MatchString(p)
}

// Violation is a rejected insertion. RetryAfter is the earliest point at
// which the same request could pass the violated rule; zero means a retry
// without changing the input will never pass.
type Violation struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
}

func (v *Violation) Error() string {
	return string(v.Code) + ": " + v.Message
}

// IsRateLimit is true for the three throttling rules.
func (v *Violation) IsRateLimit() bool {
	return v.Code != CodePatternFormat
}

// FromCode rebuilds a Violation from a classification code raised by the
// database trigger. Unknown codes return nil.
func FromCode(code, message string) *Violation {
	c := Code(code)
	if !c.Known() {
		return nil
	}
	return &Violation{Code: c, Message: message}
}

// Snapshot is the history visible to one insertion attempt.
type Snapshot struct {
	// Now is the database clock at the time the snapshot was read.
	Now time.Time

	// The user's requests with created_at in (Now-UserWindow, Now].
	UserCount  int
	UserOldest *time.Time
	UserLatest *time.Time

	// All requests with created_at in (Now-GlobalWindow, Now].
	GlobalCount  int
	GlobalOldest *time.Time
}

type Rules struct {
	UserWindow   time.Duration
	UserLimit    int
	MinSpacing   time.Duration
	GlobalWindow time.Duration
	GlobalLimit  int
}

func DefaultRules() Rules {
	return Rules{
		UserWindow:   constants.UserHourlyWindow,
		UserLimit:    constants.UserHourlyLimit,
		MinSpacing:   constants.UserMinSpacing,
		GlobalWindow: constants.GlobalWindow,
		GlobalLimit:  constants.GlobalLimit,
	}
}

type Guard struct {
	rules Rules
}

func New(rules Rules) *Guard {
	return &Guard{rules: rules}
}

func (g *Guard) Rules() Rules {
	return g.rules
}

// Check runs the four rules in their fixed order and returns the first
// *Violation, or nil when the insertion may proceed.
func (g *Guard) Check(s Snapshot, pattern string) error {
	if v := g.checkUserHourly(s); v != nil {
		return v
	}
	if v := g.checkUserSpacing(s); v != nil {
		return v
	}
	if !ValidPattern(pattern) {
		msg := fmt.Sprintf(
			"pattern must be at least %d letters or digits, '%s', then at least %d letters or digits (e.g. abc123...wxyz)",
			constants.PatternMinPrefix, constants.PatternSeparator, constants.PatternMinSuffix,
		)
		return &Violation{Code: CodePatternFormat, Message: msg}
	}
	if v := g.checkGlobal(s); v != nil {
		return v
	}
	return nil
}

// NextAllowed returns the earliest time a well-formed request from the
// snapshot's user could pass every throttle. It equals s.Now when nothing
// is currently blocking.
func (g *Guard) NextAllowed(s Snapshot) time.Time {
	next := s.Now
	for _, v := range []*Violation{g.checkUserHourly(s), g.checkUserSpacing(s), g.checkGlobal(s)} {
		if v == nil {
			continue
		}
		if at := s.Now.Add(v.RetryAfter); at.After(next) {
			next = at
		}
	}
	return next
}

func (g *Guard) checkUserHourly(s Snapshot) *Violation {
	if s.UserCount < g.rules.UserLimit {
		return nil
	}
	return &Violation{
		Code:       CodeUserHourly,
		Message:    fmt.Sprintf("at most %d verification requests per %s", g.rules.UserLimit, humanWindow(g.rules.UserWindow)),
		RetryAfter: until(s.Now, s.UserOldest, g.rules.UserWindow),
	}
}

func (g *Guard) checkUserSpacing(s Snapshot) *Violation {
	if s.UserLatest == nil || !s.UserLatest.After(s.Now.Add(-g.rules.MinSpacing)) {
		return nil
	}
	return &Violation{
		Code:       CodeUserSpacing,
		Message:    fmt.Sprintf("wait at least %s between verification requests", humanWindow(g.rules.MinSpacing)),
		RetryAfter: until(s.Now, s.UserLatest, g.rules.MinSpacing),
	}
}

func (g *Guard) checkGlobal(s Snapshot) *Violation {
	if s.GlobalCount < g.rules.GlobalLimit {
		return nil
	}
	return &Violation{
		Code:       CodeGlobal,
		Message:    "verification service is busy, try again shortly",
		RetryAfter: until(s.Now, s.GlobalOldest, g.rules.GlobalWindow),
	}
}

// until returns how long until ref+window passes now. A missing ref
// falls back to the full window.
func until(now time.Time, ref *time.Time, window time.Duration) time.Duration {
	if ref == nil {
		return window
	}
	d := ref.Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func humanWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Minute:
		return "minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

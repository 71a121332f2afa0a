// Package rules implements the rule-based classification core:
// condition evaluation, priority-ordered rule application, provenance
// invalidation, and auto-generation of rules from user edits.
//
// Everything in this package is pure computation over in-memory values
// except AutoGenerator, which talks to injected stores. Condition
// evaluation fails closed: malformed operators, bad regexes, and
// missing field values all evaluate to false rather than erroring, so
// one broken user-authored rule can never abort a batch.
package rules

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// Evaluate reports whether a single condition holds for a transaction.
// Amount is compared as an absolute value so one rule can match both
// the spend and its refund.
func Evaluate(t repository.Transaction, c repository.Condition) bool {
	switch c.Field {
	case repository.FieldDescription:
		return evalString(t.Description, c)
	case repository.FieldAccount:
		return evalString(t.Account, c)
	case repository.FieldAmount:
		return evalNumber(math.Abs(t.Amount), c)
	case repository.FieldDate:
		return evalDate(t.Date, c)
	default:
		return false
	}
}

func evalString(value string, c repository.Condition) bool {
	if value == "" {
		return false
	}
	target := c.Value
	if !c.CaseSensitive {
		value = strings.ToLower(value)
		target = strings.ToLower(target)
	}
	switch c.Operator {
	case repository.OpEquals:
		return value == target
	case repository.OpContains:
		return strings.Contains(value, target)
	case repository.OpStartsWith:
		return strings.HasPrefix(value, target)
	case repository.OpEndsWith:
		return strings.HasSuffix(value, target)
	case repository.OpRegex:
		return evalRegex(value, c)
	default:
		return false
	}
}

func evalNumber(value float64, c repository.Condition) bool {
	target, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return false
	}
	switch c.Operator {
	case repository.OpEquals:
		return value == target
	case repository.OpGreaterThan:
		return value > target
	case repository.OpLessThan:
		return value < target
	case repository.OpBetween:
		end, err := strconv.ParseFloat(strings.TrimSpace(c.ValueEnd), 64)
		if err != nil {
			return false
		}
		return value >= target && value <= end
	default:
		return false
	}
}

func evalDate(value time.Time, c repository.Condition) bool {
	if value.IsZero() {
		return false
	}
	target, err := parseConditionDate(c.Value)
	if err != nil {
		return false
	}
	switch c.Operator {
	case repository.OpEquals:
		return sameDay(value, target)
	case repository.OpGreaterThan:
		return value.After(target)
	case repository.OpLessThan:
		return value.Before(target)
	case repository.OpBetween:
		end, err := parseConditionDate(c.ValueEnd)
		if err != nil {
			return false
		}
		return !value.Before(target) && !value.After(end.Add(24*time.Hour-time.Nanosecond))
	default:
		return false
	}
}

func parseConditionDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// regexCache avoids recompiling patterns on every evaluation; a rule
// batch re-evaluates the same few patterns thousands of times.
var regexCache sync.Map // pattern -> *regexp.Regexp, or nil for invalid

func evalRegex(value string, c repository.Condition) bool {
	pattern := c.Value
	if !c.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	cached, ok := regexCache.Load(pattern)
	if !ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			re = nil // fail closed on user-authored garbage
		}
		cached, _ = regexCache.LoadOrStore(pattern, re)
	}
	re, _ := cached.(*regexp.Regexp)
	if re == nil {
		return false
	}
	return re.MatchString(value)
}

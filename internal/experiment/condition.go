package experiment

import (
	"regexp"
	"strings"
)

type ConditionType string

const (
	ConditionURL       ConditionType = "url"
	ConditionUserAgent ConditionType = "user_agent"
	ConditionReferrer  ConditionType = "referrer"
)

type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpEquals      Operator = "equals"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpRegex       Operator = "regex"
)

// Condition restricts an experiment to visitors whose URL, user agent or
// referrer matches.
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type"`
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    string        `json:"value" yaml:"value"`
}

// Matches evaluates the condition against v. Unknown types and operators
// and invalid patterns never match.
func (c Condition) Matches(v Visitor) bool {
	var subject string
	switch c.Type {
	case ConditionURL:
		subject = v.URL
	case ConditionUserAgent:
		subject = v.UserAgent
	case ConditionReferrer:
		subject = v.Referrer
	default:
		return false
	}

	switch c.Operator {
	case OpContains, "":
		return strings.Contains(subject, c.Value)
	case OpNotContains:
		return !strings.Contains(subject, c.Value)
	case OpEquals:
		return subject == c.Value
	case OpStartsWith:
		return strings.HasPrefix(subject, c.Value)
	case OpEndsWith:
		return strings.HasSuffix(subject, c.Value)
	case OpRegex:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	}
	return false
}

func matchAll(conds []Condition, v Visitor) bool {
	for _, c := range conds {
		if !c.Matches(v) {
			return false
		}
	}
	return true
}

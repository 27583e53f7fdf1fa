// Package sqlguard cleans model output and enforces the read-only policy
// before any statement is allowed to reach an executor.
//
// The gate is textual: it does not parse SQL. It prefers rejecting a safe
// statement that happens to contain a forbidden word over letting a mutating
// statement through.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Reason classifies why a candidate statement was rejected.
type Reason string

const (
	ReasonOffTopic      Reason = "off_topic"
	ReasonNotReadOnly   Reason = "not_read_only"
	ReasonUnsafeKeyword Reason = "unsafe_keyword"
)

// OffTopicSentinel is the marker the model returns for unrelated questions.
const OffTopicSentinel = "NO_DATA"

// ForbiddenKeywords are rejected as whole words anywhere in a statement.
var ForbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate", "grant",
	"revoke", "create", "replace", "merge", "rename", "exec", "execute",
	"call", "into", "lock",
}

var (
	forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)
	readOnlyPrefix   = regexp.MustCompile(`(?i)^select\b`)
	sqlLabel         = regexp.MustCompile(`(?i)^sql\s*:\s*`)
)

// Sentinels matched by errors.Is against a *Rejection. A rejection can match
// more than one: "DELETE FROM x" is both not read-only and carries a
// forbidden keyword.
var (
	ErrOffTopic      = errors.New("sqlguard: off topic")
	ErrNotReadOnly   = errors.New("sqlguard: not read-only")
	ErrUnsafeKeyword = errors.New("sqlguard: unsafe keyword")
)

// Rejection is returned when a candidate statement fails the gate. Reason is
// the first check that failed.
type Rejection struct {
	Reason  Reason
	Keyword string // first forbidden keyword found, if any
	Text    string // cleaned candidate text
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonOffTopic:
		return "sqlguard: question is outside the HRM domain"
	case ReasonUnsafeKeyword:
		return fmt.Sprintf("sqlguard: forbidden keyword %q", r.Keyword)
	default:
		return "sqlguard: only SELECT statements are allowed"
	}
}

// Is reports whether target is one of the sentinels this rejection satisfies.
func (r *Rejection) Is(target error) bool {
	switch target {
	case ErrOffTopic:
		return r.Reason == ReasonOffTopic
	case ErrNotReadOnly:
		return r.Reason == ReasonNotReadOnly
	case ErrUnsafeKeyword:
		return r.Keyword != ""
	}
	return false
}

// Statement is a candidate that passed the gate. The zero value is empty and
// carries no guarantee; only Sanitize produces usable statements.
type Statement struct {
	text string
}

// String returns the cleaned SQL text.
func (s Statement) String() string {
	return s.text
}

// IsZero reports whether the statement is empty.
func (s Statement) IsZero() bool {
	return s.text == ""
}

// Sanitize strips formatting artifacts from raw model output and applies the
// read-only policy. A rejection is returned as *Rejection.
func Sanitize(raw string) (Statement, error) {
	cleaned := Clean(raw)

	if strings.Contains(strings.ToUpper(cleaned), OffTopicSentinel) {
		return Statement{}, &Rejection{Reason: ReasonOffTopic, Text: cleaned}
	}

	keyword := strings.ToLower(forbiddenPattern.FindString(cleaned))

	if !readOnlyPrefix.MatchString(cleaned) {
		return Statement{}, &Rejection{Reason: ReasonNotReadOnly, Keyword: keyword, Text: cleaned}
	}

	if keyword != "" {
		return Statement{}, &Rejection{Reason: ReasonUnsafeKeyword, Keyword: keyword, Text: cleaned}
	}

	return Statement{text: cleaned}, nil
}

// Clean removes code fences, a leading "SQL:" label and surrounding
// whitespace, repeating until the text is stable so that cleaning
// already-clean text is a no-op.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```SQL")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
		s = sqlLabel.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == prev {
			return s
		}
	}
}

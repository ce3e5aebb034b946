package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// ErrInvalidRule is returned for predicates the interpreter cannot run.
var ErrInvalidRule = errors.New("invalid rule")

// Subject is what a predicate is evaluated against.
type Subject struct {
	Msg      *domain.Message
	Forum    string
	Topic    string
	Username string
	Now      time.Time
}

// Eval evaluates a predicate. Malformed terms never match.
func Eval(e domain.Expr, s Subject) bool {
	switch e.Kind {
	case domain.ExprAll:
		return true
	case domain.ExprAnd:
		for _, arg := range e.Args {
			if !Eval(arg, s) {
				return false
			}
		}
		return true
	case domain.ExprOr:
		for _, arg := range e.Args {
			if Eval(arg, s) {
				return true
			}
		}
		return false
	case domain.ExprNot:
		return len(e.Args) == 1 && !Eval(e.Args[0], s)
	case domain.ExprTerm:
		return evalTerm(e, s)
	}
	return false
}

func evalTerm(e domain.Expr, s Subject) bool {
	m := s.Msg
	switch e.Field {
	case domain.FieldAuthor:
		return compareString(m.Author, e.Op, e.Value)
	case domain.FieldBody:
		return compareString(m.Body, e.Op, e.Value)
	case domain.FieldSubject:
		return compareString(m.Subject(), e.Op, e.Value)
	case domain.FieldForum:
		return compareString(s.Forum, e.Op, e.Value)
	case domain.FieldTopic:
		return compareString(s.Topic, e.Op, e.Value)
	case domain.FieldUnread:
		return compareBool(m.Unread, e.Op, e.Value)
	case domain.FieldPriority:
		return compareBool(m.Priority, e.Op, e.Value)
	case domain.FieldStarred:
		return compareBool(m.Starred, e.Op, e.Value)
	case domain.FieldIgnored:
		return compareBool(m.Ignored, e.Op, e.Value)
	case domain.FieldMine:
		return compareBool(m.IsMine(s.Username), e.Op, e.Value)
	case domain.FieldAgeDays:
		if m.Date.IsZero() {
			return false
		}
		return compareInt(int(s.Now.Sub(m.Date).Hours()/24), e.Op, e.Value)
	}
	return false
}

func compareString(have string, op domain.Operator, want string) bool {
	h, w := strings.ToLower(have), strings.ToLower(want)
	switch op {
	case domain.OpEq:
		return h == w
	case domain.OpNe:
		return h != w
	case domain.OpContains:
		return strings.Contains(h, w)
	case domain.OpBegins:
		return strings.HasPrefix(h, w)
	case domain.OpEnds:
		return strings.HasSuffix(h, w)
	case domain.OpLt:
		return h < w
	case domain.OpGt:
		return h > w
	}
	return false
}

func compareBool(have bool, op domain.Operator, want string) bool {
	w, err := strconv.ParseBool(want)
	if err != nil {
		return false
	}
	switch op {
	case domain.OpEq:
		return have == w
	case domain.OpNe:
		return have != w
	}
	return false
}

func compareInt(have int, op domain.Operator, want string) bool {
	w, err := strconv.Atoi(want)
	if err != nil {
		return false
	}
	switch op {
	case domain.OpEq:
		return have == w
	case domain.OpNe:
		return have != w
	case domain.OpLt:
		return have < w
	case domain.OpGt:
		return have > w
	}
	return false
}

var fieldKinds = map[domain.Field]string{
	domain.FieldAuthor:   "string",
	domain.FieldBody:     "string",
	domain.FieldSubject:  "string",
	domain.FieldForum:    "string",
	domain.FieldTopic:    "string",
	domain.FieldUnread:   "bool",
	domain.FieldPriority: "bool",
	domain.FieldStarred:  "bool",
	domain.FieldIgnored:  "bool",
	domain.FieldMine:     "bool",
	domain.FieldAgeDays:  "int",
}

// Validate checks that every node of a predicate can be evaluated.
func Validate(e domain.Expr) error {
	switch e.Kind {
	case domain.ExprAll:
		return nil
	case domain.ExprAnd, domain.ExprOr:
		for _, arg := range e.Args {
			if err := Validate(arg); err != nil {
				return err
			}
		}
		return nil
	case domain.ExprNot:
		if len(e.Args) != 1 {
			return fmt.Errorf("not takes one argument, got %d: %w", len(e.Args), ErrInvalidRule)
		}
		return Validate(e.Args[0])
	case domain.ExprTerm:
		return validateTerm(e)
	}
	return fmt.Errorf("unknown expression kind %q: %w", e.Kind, ErrInvalidRule)
}

func validateTerm(e domain.Expr) error {
	kind, ok := fieldKinds[e.Field]
	if !ok {
		return fmt.Errorf("unknown field %q: %w", e.Field, ErrInvalidRule)
	}
	switch kind {
	case "bool":
		if e.Op != domain.OpEq && e.Op != domain.OpNe {
			return fmt.Errorf("operator %q does not apply to %s: %w", e.Op, e.Field, ErrInvalidRule)
		}
		if _, err := strconv.ParseBool(e.Value); err != nil {
			return fmt.Errorf("%s needs true or false, got %q: %w", e.Field, e.Value, ErrInvalidRule)
		}
	case "int":
		switch e.Op {
		case domain.OpEq, domain.OpNe, domain.OpLt, domain.OpGt:
		default:
			return fmt.Errorf("operator %q does not apply to %s: %w", e.Op, e.Field, ErrInvalidRule)
		}
		if _, err := strconv.Atoi(e.Value); err != nil {
			return fmt.Errorf("%s needs a number, got %q: %w", e.Field, e.Value, ErrInvalidRule)
		}
	default:
		switch e.Op {
		case domain.OpEq, domain.OpNe, domain.OpContains, domain.OpBegins, domain.OpEnds, domain.OpLt, domain.OpGt:
		default:
			return fmt.Errorf("unknown operator %q: %w", e.Op, ErrInvalidRule)
		}
	}
	return nil
}

// Apply changes a message as the action bits say. The clear bit resets the
// message's classification before the other bits are applied.
func Apply(a domain.Action, m *domain.Message) {
	if a.Has(domain.ActionClear) {
		m.Unread = false
		m.Priority = false
		m.Ignored = false
	}
	if a.Has(domain.ActionUnread) {
		m.Unread = true
	}
	if a.Has(domain.ActionPriority) {
		m.Priority = true
	}
	if a.Has(domain.ActionIgnored) {
		m.Ignored = true
	}
	if a.Has(domain.ActionFlag) {
		m.Starred = true
	}
}

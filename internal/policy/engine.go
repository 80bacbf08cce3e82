package policy

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hrapp/hr-auth/models"
)

// ErrInvalidRule is returned for rules that cannot be compiled
var ErrInvalidRule = errors.New("invalid policy rule")

var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"PATCH": true, "DELETE": true, "OPTIONS": true,
}

type compiledRule struct {
	rule     Rule
	segments []string
	tail     bool // pattern ends in "/**"
	literals int
}

// Table is an immutable, specificity-ordered rule set. Safe for concurrent use.
type Table struct {
	rules []compiledRule
}

// NewTable validates and orders rules
func NewTable(rules []Rule) (*Table, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		c, err := compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Pattern, err)
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i], compiled[j]
		if a.literals != b.literals {
			return a.literals > b.literals
		}
		if a.tail != b.tail {
			return !a.tail
		}
		aMethod, bMethod := a.rule.Method != AnyMethod, b.rule.Method != AnyMethod
		if aMethod != bMethod {
			return aMethod
		}
		return false
	})

	return &Table{rules: compiled}, nil
}

// MustTable is NewTable for rule sets known to be valid
func MustTable(rules []Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

func compile(r Rule) (compiledRule, error) {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "*" || method == "ANY" {
		method = AnyMethod
	}
	if method != AnyMethod && !knownMethods[method] {
		return compiledRule{}, fmt.Errorf("%w: unknown method %q", ErrInvalidRule, r.Method)
	}

	if !strings.HasPrefix(r.Pattern, "/") {
		return compiledRule{}, fmt.Errorf("%w: pattern must start with /", ErrInvalidRule)
	}
	if len(r.Roles) == 0 {
		return compiledRule{}, fmt.Errorf("%w: no roles", ErrInvalidRule)
	}
	roles := make([]models.Role, 0, len(r.Roles))
	for _, role := range r.Roles {
		parsed, err := models.ParseRole(string(role))
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		roles = append(roles, parsed)
	}

	segments := splitPath(r.Pattern)
	c := compiledRule{
		rule: Rule{Method: method, Pattern: r.Pattern, Roles: roles},
	}
	for i, seg := range segments {
		switch seg {
		case "**":
			if i != len(segments)-1 {
				return compiledRule{}, fmt.Errorf("%w: ** only allowed as the last segment", ErrInvalidRule)
			}
			c.tail = true
		case "*":
		default:
			if strings.Contains(seg, "*") {
				return compiledRule{}, fmt.Errorf("%w: partial wildcard in %q", ErrInvalidRule, seg)
			}
			c.literals++
		}
	}
	if c.tail {
		segments = segments[:len(segments)-1]
	}
	c.segments = segments
	return c, nil
}

// splitPath cleans p and returns its segments. "/" has none.
func splitPath(p string) []string {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
}

func (c compiledRule) matches(method string, segments []string) bool {
	if c.rule.Method != AnyMethod && c.rule.Method != method {
		return false
	}
	if c.tail {
		if len(segments) < len(c.segments) {
			return false
		}
	} else if len(segments) != len(c.segments) {
		return false
	}
	for i, seg := range c.segments {
		if seg != "*" && seg != segments[i] {
			return false
		}
	}
	return true
}

// Match returns the most specific rule covering the request, if any
func (t *Table) Match(method, requestPath string) (*Rule, bool) {
	method = strings.ToUpper(method)
	segments := splitPath(requestPath)
	for i := range t.rules {
		if t.rules[i].matches(method, segments) {
			rule := t.rules[i].rule
			return &rule, true
		}
	}
	return nil, false
}

// Evaluate decides whether role may call method on requestPath
func (t *Table) Evaluate(method, requestPath string, role models.Role) Decision {
	return t.EvaluateRoles(method, requestPath, []models.Role{role})
}

// EvaluateRoles allows the request when any of roles is listed on the
// matching rule
func (t *Table) EvaluateRoles(method, requestPath string, roles []models.Role) Decision {
	rule, ok := t.Match(method, requestPath)
	if !ok {
		return Decision{Allowed: true}
	}
	for _, role := range roles {
		if rule.Allows(role) {
			return Decision{Allowed: true, Matched: true, Rule: rule}
		}
	}
	return Decision{Matched: true, Rule: rule}
}

// Rules returns the rules in evaluation order
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, c := range t.rules {
		out[i] = c.rule
	}
	return out
}

// Len returns the number of rules
func (t *Table) Len() int {
	return len(t.rules)
}

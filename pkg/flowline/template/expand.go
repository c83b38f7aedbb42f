// Package template expands "${var}"/"$var" placeholders against a
// map[string]any, used by agents to project state and event data into
// prompt text.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	bracePattern  = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	dollarPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)(?:\b|$)`)
)

// MissingAction controls what happens when a referenced variable isn't
// present in the substitution map.
type MissingAction int

const (
	// MissingKeep leaves the placeholder text untouched.
	MissingKeep MissingAction = iota
	// MissingEmpty substitutes the empty string.
	MissingEmpty
	// MissingError fails the expansion with UndefinedVariableError.
	MissingError
)

// Expander expands variable placeholders in strings. Safe for concurrent
// use after construction.
type Expander struct {
	missingAction MissingAction
	braceStyle    bool
	dollarStyle   bool
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets the behavior for undefined variables.
func WithMissingAction(a MissingAction) Option {
	return func(e *Expander) { e.missingAction = a }
}

// WithBraceStyle enables or disables "${var}" substitution.
func WithBraceStyle(enabled bool) Option {
	return func(e *Expander) { e.braceStyle = enabled }
}

// WithDollarStyle enables or disables "$var" substitution.
func WithDollarStyle(enabled bool) Option {
	return func(e *Expander) { e.dollarStyle = enabled }
}

// NewExpander builds an Expander. Defaults: MissingKeep, both styles on.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missingAction: MissingKeep, braceStyle: true, dollarStyle: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand substitutes variable placeholders in s using vars.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	result := s
	var missing []string

	replace := func(match, name string) string {
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
			return match
		default:
			return match
		}
	}

	if e.braceStyle {
		result = bracePattern.ReplaceAllStringFunc(result, func(match string) string {
			return replace(match, match[2:len(match)-1])
		})
	}
	if e.dollarStyle {
		result = dollarPattern.ReplaceAllStringFunc(result, func(match string) string {
			return replace(match, match[1:])
		})
	}

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// ExpandAll expands every string in ss.
func (e *Expander) ExpandAll(ss []string, vars map[string]any) ([]string, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		expanded, err := e.Expand(s, vars)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

// UndefinedVariableError is returned when MissingError is configured and
// one or more placeholders have no corresponding entry in vars.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

var defaultExpander = NewExpander()

// Expand substitutes variable placeholders using the default expander
// (MissingKeep behavior, never errors).
func Expand(s string, vars map[string]any) string {
	result, _ := defaultExpander.Expand(s, vars)
	return result
}

// Package expr parses and resolves ${...} placeholders in challenge
// variable values.
//
// Two placeholder forms are supported:
//
//	${challenge-id.output-name}  value of another challenge's output
//	${ENV_VAR}                   value of an environment variable
//
// A value is parsed once at load time into segments; resolution happens
// later, when the referenced outputs exist.
package expr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Segment is one piece of a parsed value: literal text, a reference to
// another challenge's output, or an environment variable lookup.
type Segment struct {
	Literal   string
	Challenge string
	Output    string
	EnvVar    string
}

// IsRef reports whether the segment references another challenge's output.
func (s Segment) IsRef() bool {
	return s.Challenge != ""
}

// IsEnv reports whether the segment references an environment variable.
func (s Segment) IsEnv() bool {
	return s.EnvVar != ""
}

// Value is a challenge variable value. Non-string values (numbers, bools,
// lists, maps) are carried through as literals; strings are scanned for
// placeholders.
type Value struct {
	// Raw holds the original value for non-templated variables. Nil when
	// Segments is populated.
	Raw interface{}

	// Segments holds the parsed pieces of a templated string value.
	Segments []Segment
}

// IsTemplate reports whether the value contains any placeholder.
func (v Value) IsTemplate() bool {
	return len(v.Segments) > 0
}

// Parse converts a raw variable value into a Value. Only strings are
// scanned for placeholders; everything else passes through untouched.
func Parse(raw interface{}) Value {
	s, ok := raw.(string)
	if !ok {
		return Value{Raw: raw}
	}

	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return Value{Raw: raw}
	}

	var segments []Segment
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segments = append(segments, Segment{Literal: s[last:m[0]]})
		}
		inner := s[m[2]:m[3]]
		if dot := strings.Index(inner, "."); dot > 0 {
			segments = append(segments, Segment{
				Challenge: inner[:dot],
				Output:    inner[dot+1:],
			})
		} else {
			segments = append(segments, Segment{EnvVar: inner})
		}
		last = m[1]
	}
	if last < len(s) {
		segments = append(segments, Segment{Literal: s[last:]})
	}

	return Value{Segments: segments}
}

// References returns the ids of all challenges this value depends on.
func (v Value) References() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, seg := range v.Segments {
		if seg.IsRef() && !seen[seg.Challenge] {
			seen[seg.Challenge] = true
			refs = append(refs, seg.Challenge)
		}
	}
	return refs
}

// OutputLookup resolves a challenge output reference. The second return
// value reports whether the output exists.
type OutputLookup func(challenge, output string) (interface{}, bool)

// EnvLookup resolves an environment variable reference.
type EnvLookup func(name string) (string, bool)

// Resolve produces the concrete value, substituting placeholders via the
// provided lookups. A value consisting of exactly one output reference
// keeps the native type of that output; any mix of placeholders and text
// is rendered as a string. The challenge id is only used for error
// reporting.
func (v Value) Resolve(challenge string, outputs OutputLookup, env EnvLookup) (interface{}, error) {
	if !v.IsTemplate() {
		return v.Raw, nil
	}

	if len(v.Segments) == 1 {
		seg := v.Segments[0]
		if seg.IsRef() {
			val, ok := outputs(seg.Challenge, seg.Output)
			if !ok {
				return nil, errors.MissingOutputError(challenge, seg.Challenge, seg.Output)
			}
			return val, nil
		}
		if seg.IsEnv() {
			val, ok := env(seg.EnvVar)
			if !ok {
				return nil, errors.New(errors.ErrCodeCredentials,
					fmt.Sprintf("challenge %q references unset environment variable %q", challenge, seg.EnvVar))
			}
			return val, nil
		}
	}

	var sb strings.Builder
	for _, seg := range v.Segments {
		switch {
		case seg.IsRef():
			val, ok := outputs(seg.Challenge, seg.Output)
			if !ok {
				return nil, errors.MissingOutputError(challenge, seg.Challenge, seg.Output)
			}
			sb.WriteString(fmt.Sprintf("%v", val))
		case seg.IsEnv():
			val, ok := env(seg.EnvVar)
			if !ok {
				return nil, errors.New(errors.ErrCodeCredentials,
					fmt.Sprintf("challenge %q references unset environment variable %q", challenge, seg.EnvVar))
			}
			sb.WriteString(val)
		default:
			sb.WriteString(seg.Literal)
		}
	}
	return sb.String(), nil
}

package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Scopes is a normalized set of scope strings. The wire format is the
// space-delimited form from RFC 6749; internally scopes are deduplicated
// and order-independent.
type Scopes map[string]struct{}

// ParseScopes parses a space- or comma-delimited scope string.
func ParseScopes(raw string) Scopes {
	s := Scopes{}
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' }) {
		if part != "" {
			s[part] = struct{}{}
		}
	}
	return s
}

// NewScopes builds a set from individual scope values.
func NewScopes(values ...string) Scopes {
	s := Scopes{}
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Contains reports whether the scope is a member of the set.
func (s Scopes) Contains(scope string) bool {
	_, ok := s[scope]
	return ok
}

// SubsetOf reports whether every scope in s is also in other.
func (s Scopes) SubsetOf(other Scopes) bool {
	for scope := range s {
		if !other.Contains(scope) {
			return false
		}
	}
	return true
}

// Union returns a new set containing members of both sets.
func (s Scopes) Union(other Scopes) Scopes {
	out := Scopes{}
	for scope := range s {
		out[scope] = struct{}{}
	}
	for scope := range other {
		out[scope] = struct{}{}
	}
	return out
}

// Values returns the scopes in sorted order.
func (s Scopes) Values() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// String renders the canonical space-delimited wire form.
func (s Scopes) String() string {
	return strings.Join(s.Values(), " ")
}

// IsEmpty reports whether the set has no members.
func (s Scopes) IsEmpty() bool {
	return len(s) == 0
}

// MarshalJSON renders the set as a sorted string array.
func (s Scopes) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON accepts a string array.
func (s *Scopes) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewScopes(values...)
	return nil
}

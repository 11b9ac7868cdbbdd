package samp

import (
	"bytes"
	"encoding/json"
	"iter"
	"strconv"
)

// RuleValue is a rule value as sent by the server, optionally coerced to an integer.
type RuleValue struct {
	// Text is the decoded wire value.
	Text string

	// Int holds the coerced value when Numeric is set.
	Int int

	// Numeric reports whether the value was coerced to Int.
	Numeric bool
}

// String returns the wire text of the value.
func (v RuleValue) String() string {
	return v.Text
}

// Value returns the value as an int when coerced, otherwise as a string.
func (v RuleValue) Value() any {
	if v.Numeric {
		return v.Int
	}

	return v.Text
}

// MarshalJSON encodes coerced values as JSON numbers and everything else as strings.
func (v RuleValue) MarshalJSON() ([]byte, error) {
	if v.Numeric {
		return []byte(strconv.Itoa(v.Int)), nil
	}

	return json.Marshal(v.Text)
}

// RuleSet is an insertion-ordered map of rule names to values.
// Setting an existing name replaces its value in place.
type RuleSet struct {
	values map[string]RuleValue
	names  []string
}

// NewRuleSet returns an empty RuleSet with room for n rules.
func NewRuleSet(n int) *RuleSet {
	return &RuleSet{
		values: make(map[string]RuleValue, n),
		names:  make([]string, 0, n),
	}
}

// Set stores value under name. A repeated name keeps its first position.
func (s *RuleSet) Set(name string, value RuleValue) {
	if s.values == nil {
		s.values = make(map[string]RuleValue)
	}
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
}

// Get returns the value stored under name.
func (s *RuleSet) Get(name string) (RuleValue, bool) {
	if s == nil {
		return RuleValue{}, false
	}
	v, ok := s.values[name]

	return v, ok
}

// Delete removes name from the set.
func (s *RuleSet) Delete(name string) {
	if s == nil {
		return
	}
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.names)
}

// Names returns the rule names in insertion order.
func (s *RuleSet) Names() []string {
	if s == nil {
		return nil
	}

	return append([]string(nil), s.names...)
}

// All iterates over the rules in insertion order.
func (s *RuleSet) All() iter.Seq2[string, RuleValue] {
	return func(yield func(string, RuleValue) bool) {
		if s == nil {
			return
		}
		for _, name := range s.names {
			if !yield(name, s.values[name]) {
				return
			}
		}
	}
}

// Map returns the rules as a plain map of name to RuleValue.Value.
func (s *RuleSet) Map() map[string]any {
	m := make(map[string]any, s.Len())
	for name, v := range s.All() {
		m[name] = v.Value()
	}

	return m
}

// MarshalJSON encodes the set as a JSON object preserving rule order.
func (s *RuleSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for name, v := range s.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++

		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// normalizeRules applies the SA-MP query conventions to a decoded rule set:
// the "ping" rule duplicates the measured round trip and is removed, and a
// numeric "weather" rule is exposed as an integer.
func normalizeRules(s *RuleSet) {
	s.Delete("ping")

	if v, ok := s.Get("weather"); ok {
		if n, err := strconv.Atoi(v.Text); err == nil {
			s.Set("weather", RuleValue{Text: v.Text, Int: n, Numeric: true})
		}
	}
}

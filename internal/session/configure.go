package session

import (
	"fmt"
	"sort"
)

// Configure applies a complete setup in one go: algorithm first (it installs
// default fields), then the expression, then each raw field value.
// An empty algorithm keeps the current one.
func (s *Session) Configure(expression, algorithm string, raw map[string]string) error {
	if algorithm != "" && algorithm != s.algorithm {
		if err := s.SetAlgorithm(algorithm); err != nil {
			return err
		}
	}
	s.SetExpression(expression)

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := s.SetHyperparameter(name, raw[name]); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

// RawParams returns the raw text of every field, keyed by name.
func (s *Session) RawParams() map[string]string {
	fields := s.form.Fields()
	raw := make(map[string]string, len(fields))
	for _, f := range fields {
		raw[f.Name] = f.Raw
	}
	return raw
}

package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Section is one titled block of a project summary.
type Section struct {
	Title string
	Body  string
}

// Summary is an ordered title -> markdown mapping. It marshals to a JSON
// object whose keys keep first-seen order.
type Summary struct {
	sections []Section
}

// NewSummary builds a Summary from sections, applying Set to each in turn.
func NewSummary(sections ...Section) Summary {
	var s Summary
	for _, sec := range sections {
		s.Set(sec.Title, sec.Body)
	}
	return s
}

// Set stores body under title. An existing title keeps its position and
// has its body replaced.
func (s *Summary) Set(title, body string) {
	for i := range s.sections {
		if s.sections[i].Title == title {
			s.sections[i].Body = body
			return
		}
	}
	s.sections = append(s.sections, Section{Title: title, Body: body})
}

// Get returns the body stored under the exact title.
func (s Summary) Get(title string) (string, bool) {
	for _, sec := range s.sections {
		if sec.Title == title {
			return sec.Body, true
		}
	}
	return "", false
}

// Lookup finds a section by name, ignoring case and a trailing colon, so
// "API Schema" matches a "API Schema:" header.
func (s Summary) Lookup(name string) (string, bool) {
	want := normalizeTitle(name)
	for _, sec := range s.sections {
		if normalizeTitle(sec.Title) == want {
			return sec.Body, true
		}
	}
	return "", false
}

func normalizeTitle(t string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), ":")))
}

// Sections returns a copy of the sections in order.
func (s Summary) Sections() []Section {
	out := make([]Section, len(s.sections))
	copy(out, s.sections)
	return out
}

// Clone returns a Summary that shares no storage with s.
func (s Summary) Clone() Summary {
	return Summary{sections: s.Sections()}
}

// Map returns the sections as an unordered map.
func (s Summary) Map() map[string]string {
	m := make(map[string]string, len(s.sections))
	for _, sec := range s.sections {
		m[sec.Title] = sec.Body
	}
	return m
}

// Len reports the number of sections.
func (s Summary) Len() int { return len(s.sections) }

func (s Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s.sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(sec.Title)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(sec.Body)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("summary: expected object, got %v", tok)
	}
	var out Summary
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		title, ok := tok.(string)
		if !ok {
			return fmt.Errorf("summary: expected string key, got %v", tok)
		}
		var body string
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("summary: section %q: %w", title, err)
		}
		out.Set(title, body)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

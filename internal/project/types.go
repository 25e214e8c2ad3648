// Package project holds the data model shared by the parser, the stage
// client and the session orchestrator.
package project

import (
	"fmt"
	"strings"
)

// Links is an ordered set of project URLs.
type Links []string

// Add appends url (trimmed) unless it is blank or already present.
// It reports whether the set changed.
func (l *Links) Add(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	for _, existing := range *l {
		if existing == url {
			return false
		}
	}
	*l = append(*l, url)
	return true
}

// RemoveAt deletes the link at index i.
func (l *Links) RemoveAt(i int) error {
	if i < 0 || i >= len(*l) {
		return fmt.Errorf("link index %d out of range (have %d)", i, len(*l))
	}
	out := make(Links, 0, len(*l)-1)
	out = append(out, (*l)[:i]...)
	out = append(out, (*l)[i+1:]...)
	*l = out
	return nil
}

// Attachment is a file blob attached to the onboarding form.
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Form is the onboarding form as submitted to the ingestion stage.
type Form struct {
	ProjectName string       `json:"project_name"`
	Links       Links        `json:"project_links"`
	Description string       `json:"description"`
	Attachments []Attachment `json:"attachments"`
}

// Endpoint is one API operation.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// String renders the endpoint the way the scenario generator expects it.
func (e Endpoint) String() string {
	return e.Method + " " + e.Path
}

// APIDetails is the base URL and endpoint list extracted from a model response.
type APIDetails struct {
	BaseURL   string     `json:"base_url"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Clone returns a deep copy.
func (d APIDetails) Clone() APIDetails {
	out := APIDetails{BaseURL: d.BaseURL, Endpoints: make([]Endpoint, len(d.Endpoints))}
	copy(out.Endpoints, d.Endpoints)
	return out
}

// EndpointStrings renders every endpoint in order.
func (d APIDetails) EndpointStrings() []string {
	out := make([]string, len(d.Endpoints))
	for i, e := range d.Endpoints {
		out[i] = e.String()
	}
	return out
}

// Suite is the ordered list of generated scenario blocks. Blocks are opaque.
type Suite []string

// Report locates a rendered test report.
type Report struct {
	URL string `json:"url"`
}

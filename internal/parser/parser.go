// Package parser turns free-text model output into structured records.
// Every function here is total: malformed input degrades to empty values.
package parser

import (
	"regexp"
	"strings"

	"github.com/visionqa/vqa/internal/project"
)

var (
	baseURLRe  = regexp.MustCompile(`(?i)base_url:\s*(https?://\S+)`)
	endpointRe = regexp.MustCompile(`\d+\.\s*(\w+)\s+(\S+)`)
)

const boldMarker = "**"

// Extractor is the extraction strategy the session layer depends on.
type Extractor interface {
	APIDetails(text string) project.APIDetails
	Sections(text string) project.Summary
}

// Regex is the pattern-matching Extractor.
type Regex struct{}

func (Regex) APIDetails(text string) project.APIDetails { return ExtractAPIDetails(text) }
func (Regex) Sections(text string) project.Summary      { return SplitMarkdownSections(text) }

// ExtractAPIDetails finds the first "base_url: <http(s) URL>" token and every
// "<N>. <METHOD> <PATH>" item, in order of appearance. Items may sit on their
// own lines or run together on one.
func ExtractAPIDetails(text string) project.APIDetails {
	details := project.APIDetails{Endpoints: []project.Endpoint{}}

	if m := baseURLRe.FindStringSubmatch(text); m != nil {
		details.BaseURL = m[1]
	}

	for _, m := range endpointRe.FindAllStringSubmatch(text, -1) {
		details.Endpoints = append(details.Endpoints, project.Endpoint{Method: m[1], Path: m[2]})
	}
	return details
}

// SplitMarkdownSections splits text on lines starting with "**". The title is
// the line without bold markers; the body is everything up to the next such
// line, trimmed. Text before the first header, and under a header with an
// empty title, is dropped. A repeated title replaces the earlier body.
func SplitMarkdownSections(text string) project.Summary {
	var (
		summary project.Summary
		title   string
		open    bool
		body    []string
	)

	flush := func() {
		if open {
			summary.Set(title, strings.TrimSpace(strings.Join(body, "\n")))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, boldMarker) {
			flush()
			title = strings.TrimSpace(strings.ReplaceAll(line, boldMarker, ""))
			open = title != ""
			body = body[:0]
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	flush()

	return summary
}

// ExtractJSONObject returns the span from the first "{" to the last "}".
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

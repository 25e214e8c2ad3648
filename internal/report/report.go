// Package report fetches a generated test report and renders it as
// markdown for terminal display.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

const maxReportSize = 8 << 20 // 8MB

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Rendered is a report converted to markdown.
type Rendered struct {
	URL      string
	Title    string
	Markdown string
}

// Renderer downloads HTML reports and converts them to markdown.
type Renderer struct {
	httpClient *http.Client
	converter  *md.Converter
}

// NewRenderer creates a Renderer. A nil client means http.DefaultClient.
func NewRenderer(hc *http.Client) *Renderer {
	if hc == nil {
		hc = http.DefaultClient
	}
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Renderer{httpClient: hc, converter: conv}
}

// Render fetches url and converts it. Non-HTML content is returned as is.
func (r *Renderer) Render(ctx context.Context, url string) (Rendered, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Rendered{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Rendered{}, fmt.Errorf("fetching report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rendered{}, fmt.Errorf("fetching report: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportSize))
	if err != nil {
		return Rendered{}, fmt.Errorf("reading report: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return Rendered{URL: url, Markdown: strings.TrimSpace(string(body))}, nil
	}
	return r.convert(url, body)
}

func (r *Renderer) convert(url string, body []byte) (Rendered, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Rendered{}, fmt.Errorf("parsing report: %w", err)
	}
	title := findTitle(doc)
	stripElements(doc, "script", "style", "noscript")

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return Rendered{}, fmt.Errorf("rendering report: %w", err)
	}
	markdown, err := r.converter.ConvertString(sb.String())
	if err != nil {
		return Rendered{}, fmt.Errorf("converting report: %w", err)
	}
	markdown = strings.TrimSpace(blankRunRe.ReplaceAllString(markdown, "\n\n"))
	return Rendered{URL: url, Title: title, Markdown: markdown}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func stripElements(n *html.Node, tags ...string) {
	var remove []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			for _, t := range tags {
				if node.Data == t {
					remove = append(remove, node)
					return
				}
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, node := range remove {
		node.Parent.RemoveChild(node)
	}
}

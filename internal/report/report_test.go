package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportHTML = `<!doctype html>
<html><head><title> Fraud Detection Report </title><style>h1{color:red}</style></head>
<body>
<h1>Results</h1>
<script>alert(1)</script>
<p>3 scenarios, <strong>2 passed</strong></p>
<table><tr><th>Scenario</th><th>Status</th></tr><tr><td>Score a transaction</td><td>passed</td></tr></table>
</body></html>`

func TestRender_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(reportHTML))
	}))
	defer srv.Close()

	got, err := NewRenderer(nil).Render(context.Background(), srv.URL+"/report.html")
	require.NoError(t, err)

	assert.Equal(t, "Fraud Detection Report", got.Title)
	assert.Equal(t, srv.URL+"/report.html", got.URL)
	assert.Contains(t, got.Markdown, "# Results")
	assert.Contains(t, got.Markdown, "**2 passed**")
	assert.Contains(t, got.Markdown, "Score a transaction")
	assert.NotContains(t, got.Markdown, "alert(1)")
	assert.NotContains(t, got.Markdown, "color:red")
}

func TestRender_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  all passed\n"))
	}))
	defer srv.Close()

	got, err := NewRenderer(srv.Client()).Render(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "all passed", got.Markdown)
	assert.Empty(t, got.Title)
}

func TestRender_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewRenderer(nil).Render(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "status 404")
}

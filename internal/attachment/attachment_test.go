package attachment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestResolve_Globs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs/b.md", []byte("b"))
	writeFile(t, dir, "docs/a.md", []byte("a"))
	writeFile(t, dir, "docs/nested/c.md", []byte("c"))
	writeFile(t, dir, "docs/skip.txt", []byte("x"))

	paths, err := Resolve([]string{filepath.Join(dir, "docs/**/*.md")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "docs/a.md"),
		filepath.Join(dir, "docs/b.md"),
		filepath.Join(dir, "docs/nested/c.md"),
	}, paths)
}

func TestResolve_PlainPathsPassThroughAndDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.md", []byte("a"))
	missing := filepath.Join(dir, "missing.pdf")

	paths, err := Resolve([]string{missing, a, filepath.Join(dir, "*.md")})
	require.NoError(t, err)
	assert.Equal(t, []string{missing, a}, paths)
}

func TestResolve_InvalidPattern(t *testing.T) {
	_, err := Resolve([]string{"docs/[a.md"})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pdfPath := writeFile(t, dir, "spec.pdf", minimalPDF())
	mdPath := writeFile(t, dir, "notes.txt", []byte("plain notes\n"))

	atts, err := Load(context.Background(), []string{pdfPath, mdPath})
	require.NoError(t, err)
	require.Len(t, atts, 2)

	assert.Equal(t, "spec.pdf", atts[0].Name)
	assert.Equal(t, "application/pdf", atts[0].ContentType)
	assert.Equal(t, pdfPath, atts[0].Path)
	assert.Equal(t, "notes.txt", atts[1].Name)
	assert.Contains(t, atts[1].ContentType, "text/plain")
	assert.Equal(t, []byte("plain notes\n"), atts[1].Data)
}

func TestLoad_BrokenPDF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf\n"))

	_, err := Load(context.Background(), []string{path})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "unreadable pdf")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), []string{filepath.Join(t.TempDir(), "nope.pdf")})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_Directory(t *testing.T) {
	_, err := Load(context.Background(), []string{t.TempDir()})
	require.ErrorIs(t, err, ErrInvalid)
}

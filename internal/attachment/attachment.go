// Package attachment loads the files attached to an onboarding form.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/visionqa/vqa/internal/project"
)

// MaxFileSize bounds a single attachment.
const MaxFileSize = 32 << 20 // 32MB

// ErrInvalid matches every *InvalidError.
var ErrInvalid = errors.New("invalid attachment")

// InvalidError reports a file that cannot be attached.
type InvalidError struct {
	Path   string
	Reason string
}

func (e *InvalidError) Error() string { return e.Path + ": " + e.Reason }

func (e *InvalidError) Is(target error) bool { return target == ErrInvalid }

// Resolve expands glob patterns into file paths. Patterns without glob
// metacharacters pass through unchanged so a missing file is reported by
// Load. Matches are sorted per pattern and duplicates dropped.
func Resolve(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// Load reads the files concurrently and returns them in path order.
// PDFs are opened to make sure they are readable.
func Load(ctx context.Context, paths []string) ([]project.Attachment, error) {
	out := make([]project.Attachment, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := loadOne(path)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadOne(path string) (project.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return project.Attachment{}, &InvalidError{Path: path, Reason: "not found"}
	}
	if info.IsDir() {
		return project.Attachment{}, &InvalidError{Path: path, Reason: "is a directory"}
	}
	if info.Size() > MaxFileSize {
		return project.Attachment{}, &InvalidError{Path: path, Reason: fmt.Sprintf("larger than %d bytes", MaxFileSize)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return project.Attachment{}, fmt.Errorf("reading %s: %w", path, err)
	}
	a, err := FromBytes(filepath.Base(path), data)
	if err != nil {
		return project.Attachment{}, err
	}
	a.Path = path
	return a, nil
}

// FromBytes builds an attachment from uploaded content, detecting its
// content type and validating PDFs.
func FromBytes(name string, data []byte) (project.Attachment, error) {
	if len(data) > MaxFileSize {
		return project.Attachment{}, &InvalidError{Path: name, Reason: fmt.Sprintf("larger than %d bytes", MaxFileSize)}
	}
	mt := mimetype.Detect(data)
	if mt.Is("application/pdf") {
		if err := checkPDF(data); err != nil {
			return project.Attachment{}, &InvalidError{Path: name, Reason: "unreadable pdf: " + err.Error()}
		}
	}
	return project.Attachment{Name: name, ContentType: mt.String(), Data: data}, nil
}

func checkPDF(data []byte) (err error) {
	// The pdf reader panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if r.NumPage() == 0 {
		return errors.New("no pages")
	}
	return nil
}

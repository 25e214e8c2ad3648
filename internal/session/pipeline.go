package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/parser"
	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/stage"
)

// Pipeline drives the summary and reports chain:
// API details -> BDD suite -> execution report, with the project summary
// feeding the execution's schema. Every derived entity is cached in the
// store and read from there first.
type Pipeline struct {
	store     kvstore.Store
	stages    Stages
	extractor parser.Extractor
	appName   string
	thread    threadSlot
	logger    *slog.Logger

	flight  singleflight.Group
	details guard
	summary guard
	bdd     guard
	run     guard

	mu    sync.Mutex
	draft *project.APIDetails
}

func newPipeline(store kvstore.Store, stages Stages, opts Options) *Pipeline {
	return &Pipeline{
		store:     store,
		stages:    stages,
		extractor: opts.Extractor,
		appName:   strings.TrimSpace(opts.AppName),
		thread:    threadSlot{store: store, key: kvstore.KeyOnboardingThread, logger: opts.Logger},
		logger:    opts.Logger,
	}
}

// ApplicationName is the configured application name, falling back to the
// onboarded project name.
func (p *Pipeline) ApplicationName() (string, error) {
	if p.appName != "" {
		return p.appName, nil
	}
	name, _ := kvstore.Load[string](p.store, kvstore.KeyProjectName)
	if name = strings.TrimSpace(name); name == "" {
		return "", precondition("application name", "no project name configured or onboarded")
	}
	return name, nil
}

// CachedAPIDetails returns the saved API details without any network call.
func (p *Pipeline) CachedAPIDetails() (project.APIDetails, bool) {
	return kvstore.Load[project.APIDetails](p.store, kvstore.KeyAPIDetails)
}

// APIDetails returns the cached API details, asking the chat stage to
// extract them on a miss.
func (p *Pipeline) APIDetails(ctx context.Context) (project.APIDetails, error) {
	if d, ok := p.CachedAPIDetails(); ok {
		p.logger.Debug("api details cache hit")
		return d, nil
	}
	app, err := p.ApplicationName()
	if err != nil {
		return project.APIDetails{}, err
	}

	v, err, _ := p.flight.Do(kvstore.KeyAPIDetails, func() (any, error) {
		if d, ok := p.CachedAPIDetails(); ok {
			return d, nil
		}
		p.logger.Debug("api details cache miss, asking chat stage")
		ticket := p.details.issue()
		text, err := ask(ctx, p.stages, p.thread, apiDetailsPrompt(app))
		if err != nil {
			return nil, err
		}
		details := p.extractor.APIDetails(text)
		current, err := p.details.settle(ticket, func() error {
			if err := p.store.Set(kvstore.KeyAPIDetailsRaw, text); err != nil {
				return fmt.Errorf("caching raw api details: %w", err)
			}
			if err := p.store.Set(kvstore.KeyAPIDetails, details); err != nil {
				return fmt.Errorf("caching api details: %w", err)
			}
			return nil
		})
		if !current {
			p.logger.Debug("discarding superseded api details", "ticket", ticket)
			return nil, ErrSuperseded
		}
		if err != nil {
			return nil, err
		}
		return details, nil
	})
	if err != nil {
		return project.APIDetails{}, err
	}
	return v.(project.APIDetails).Clone(), nil
}

// RawAPIDetails returns the unparsed extraction reply, if cached.
func (p *Pipeline) RawAPIDetails() (string, bool) {
	return kvstore.Load[string](p.store, kvstore.KeyAPIDetailsRaw)
}

// Draft returns the working copy of the API details. Edits to it only take
// effect on SaveAPIDetails.
func (p *Pipeline) Draft() (project.APIDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadDraft(); err != nil {
		return project.APIDetails{}, err
	}
	return p.draft.Clone(), nil
}

func (p *Pipeline) loadDraft() error {
	if p.draft != nil {
		return nil
	}
	d, ok := p.CachedAPIDetails()
	if !ok {
		return precondition("edit api details", "api details have not been fetched")
	}
	p.draft = &d
	return nil
}

func (p *Pipeline) editDraft(edit func(d *project.APIDetails) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadDraft(); err != nil {
		return err
	}
	next := p.draft.Clone()
	if err := edit(&next); err != nil {
		return err
	}
	p.draft = &next
	return nil
}

func indexErr(i, n int) error {
	return &ValidationError{Field: "endpoints", Reason: fmt.Sprintf("endpoint index %d out of range (have %d)", i, n)}
}

// EditBaseURL changes the draft base URL.
func (p *Pipeline) EditBaseURL(url string) error {
	return p.editDraft(func(d *project.APIDetails) error {
		d.BaseURL = strings.TrimSpace(url)
		return nil
	})
}

// EditEndpoint replaces the draft endpoint at index i.
func (p *Pipeline) EditEndpoint(i int, method, path string) error {
	return p.editDraft(func(d *project.APIDetails) error {
		if i < 0 || i >= len(d.Endpoints) {
			return indexErr(i, len(d.Endpoints))
		}
		d.Endpoints[i] = project.Endpoint{Method: strings.ToUpper(strings.TrimSpace(method)), Path: strings.TrimSpace(path)}
		return nil
	})
}

// AddEndpoint appends an endpoint to the draft.
func (p *Pipeline) AddEndpoint(method, path string) error {
	return p.editDraft(func(d *project.APIDetails) error {
		d.Endpoints = append(d.Endpoints, project.Endpoint{Method: strings.ToUpper(strings.TrimSpace(method)), Path: strings.TrimSpace(path)})
		return nil
	})
}

// RemoveEndpoint deletes the draft endpoint at index i.
func (p *Pipeline) RemoveEndpoint(i int) error {
	return p.editDraft(func(d *project.APIDetails) error {
		if i < 0 || i >= len(d.Endpoints) {
			return indexErr(i, len(d.Endpoints))
		}
		d.Endpoints = append(d.Endpoints[:i], d.Endpoints[i+1:]...)
		return nil
	})
}

// MoveEndpoint moves the draft endpoint at from to position to.
func (p *Pipeline) MoveEndpoint(from, to int) error {
	return p.editDraft(func(d *project.APIDetails) error {
		n := len(d.Endpoints)
		if from < 0 || from >= n {
			return indexErr(from, n)
		}
		if to < 0 || to >= n {
			return indexErr(to, n)
		}
		e := d.Endpoints[from]
		d.Endpoints = append(d.Endpoints[:from], d.Endpoints[from+1:]...)
		d.Endpoints = append(d.Endpoints[:to], append([]project.Endpoint{e}, d.Endpoints[to:]...)...)
		return nil
	})
}

// ReplaceDraft overwrites the whole draft.
func (p *Pipeline) ReplaceDraft(d project.APIDetails) error {
	return p.editDraft(func(cur *project.APIDetails) error {
		next := project.APIDetails{BaseURL: strings.TrimSpace(d.BaseURL), Endpoints: make([]project.Endpoint, 0, len(d.Endpoints))}
		for _, e := range d.Endpoints {
			next.Endpoints = append(next.Endpoints, project.Endpoint{Method: strings.ToUpper(strings.TrimSpace(e.Method)), Path: strings.TrimSpace(e.Path)})
		}
		*cur = next
		return nil
	})
}

// SaveAPIDetails makes the draft the authoritative API details.
func (p *Pipeline) SaveAPIDetails() (project.APIDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadDraft(); err != nil {
		return project.APIDetails{}, err
	}
	p.dropInFlight(&p.details, kvstore.KeyAPIDetails)
	if err := p.store.Set(kvstore.KeyAPIDetails, p.draft); err != nil {
		return project.APIDetails{}, fmt.Errorf("saving api details: %w", err)
	}
	return p.draft.Clone(), nil
}

// DiscardDraft drops unsaved edits.
func (p *Pipeline) DiscardDraft() {
	p.mu.Lock()
	p.draft = nil
	p.mu.Unlock()
}

// ClearAPIDetails removes the cached API details so the next read fetches
// them again. A fetch still in flight is dropped when it settles.
func (p *Pipeline) ClearAPIDetails() error {
	p.DiscardDraft()
	p.dropInFlight(&p.details, kvstore.KeyAPIDetails)
	if err := p.store.Remove(kvstore.KeyAPIDetailsRaw); err != nil {
		return err
	}
	return p.store.Remove(kvstore.KeyAPIDetails)
}

// CachedSummary returns the stored summary without any network call.
func (p *Pipeline) CachedSummary() (project.Summary, bool) {
	return kvstore.Load[project.Summary](p.store, kvstore.KeyProjectSummary)
}

// Summary returns the cached project summary, asking the chat stage for a
// structured one on a miss.
func (p *Pipeline) Summary(ctx context.Context) (project.Summary, error) {
	if s, ok := p.CachedSummary(); ok {
		p.logger.Debug("summary cache hit")
		return s, nil
	}
	app, err := p.ApplicationName()
	if err != nil {
		return project.Summary{}, err
	}

	v, err, _ := p.flight.Do(kvstore.KeyProjectSummary, func() (any, error) {
		if s, ok := p.CachedSummary(); ok {
			return s, nil
		}
		p.logger.Debug("summary cache miss, asking chat stage")
		ticket := p.summary.issue()
		text, err := ask(ctx, p.stages, p.thread, summaryPrompt(app))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, &stage.StageError{Stage: stage.StageChat, Kind: stage.KindMalformed, Cause: errors.New("empty summary")}
		}
		summary := p.extractor.Sections(text)
		current, err := p.summary.settle(ticket, func() error {
			return p.store.Set(kvstore.KeyProjectSummary, summary)
		})
		if !current {
			p.logger.Debug("discarding superseded summary", "ticket", ticket)
			return nil, ErrSuperseded
		}
		if err != nil {
			return nil, fmt.Errorf("caching summary: %w", err)
		}
		return summary, nil
	})
	if err != nil {
		return project.Summary{}, err
	}
	return v.(project.Summary).Clone(), nil
}

// ClearSummary drops the cached summary and any summary still being fetched.
func (p *Pipeline) ClearSummary() error {
	p.dropInFlight(&p.summary, kvstore.KeyProjectSummary)
	return p.store.Remove(kvstore.KeyProjectSummary)
}

// UpdateContext re-indexes the stored project links and invalidates the
// summary built from the old index.
func (p *Pipeline) UpdateContext(ctx context.Context) error {
	links, _ := kvstore.Load[project.Links](p.store, kvstore.KeyProjectLinks)
	if len(links) == 0 {
		return precondition("update context", "no project links stored")
	}
	if err := p.stages.RefreshEmbeddings(ctx, links); err != nil {
		return err
	}
	return p.ClearSummary()
}

func (p *Pipeline) suiteRequest(op string) (stage.SuiteRequest, error) {
	details, ok := p.CachedAPIDetails()
	if !ok {
		return stage.SuiteRequest{}, precondition(op, "api details have not been fetched")
	}
	if details.BaseURL == "" {
		return stage.SuiteRequest{}, precondition(op, "api details have no base url")
	}
	app, err := p.ApplicationName()
	if err != nil {
		return stage.SuiteRequest{}, err
	}
	return stage.SuiteRequest{BaseURL: details.BaseURL, Endpoints: details.Endpoints, AppName: app}, nil
}

// Suite returns the cached BDD suite.
func (p *Pipeline) Suite() (project.Suite, bool) {
	return kvstore.Load[project.Suite](p.store, kvstore.KeyBDDTests)
}

// GenerateBDD asks the scenario generator for a suite covering the saved
// API details and caches it. If another generation is started before this
// one settles, the result is dropped and ErrSuperseded returned.
func (p *Pipeline) GenerateBDD(ctx context.Context) (project.Suite, error) {
	req, err := p.suiteRequest("generate bdd")
	if err != nil {
		return nil, err
	}

	ticket := p.bdd.issue()
	suite, err := p.stages.GenerateBDD(ctx, req)
	if err != nil {
		return nil, err
	}
	current, err := p.bdd.settle(ticket, func() error {
		return p.store.Set(kvstore.KeyBDDTests, suite)
	})
	if !current {
		p.logger.Debug("discarding superseded bdd suite", "ticket", ticket)
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("caching bdd suite: %w", err)
	}
	return suite, nil
}

// Report returns the cached report locator.
func (p *Pipeline) Report() (project.Report, bool) {
	url, ok := kvstore.Load[string](p.store, kvstore.KeyReportURL)
	if !ok || url == "" {
		return project.Report{}, false
	}
	return project.Report{URL: url}, true
}

// RunBDD executes the cached suite and caches the report locator.
func (p *Pipeline) RunBDD(ctx context.Context) (project.Report, error) {
	req, err := p.suiteRequest("run bdd")
	if err != nil {
		return project.Report{}, err
	}
	suite, _ := p.Suite()
	if len(suite) == 0 {
		return project.Report{}, precondition("run bdd", "no bdd suite generated")
	}
	summary, ok := p.CachedSummary()
	if !ok {
		return project.Report{}, precondition("run bdd", "project summary has not been fetched")
	}
	section, ok := summary.Lookup(SectionAPISchema)
	if !ok {
		return project.Report{}, precondition("run bdd", "project summary has no API Schema section")
	}
	schema, ok := parser.ExtractJSONObject(section)
	if !ok {
		schema = section
	}

	ticket := p.run.issue()
	report, err := p.stages.ExecuteBDD(ctx, stage.RunRequest{SuiteRequest: req, Suite: suite, APISchema: schema})
	if err != nil {
		return project.Report{}, err
	}
	current, err := p.run.settle(ticket, func() error {
		return p.store.Set(kvstore.KeyReportURL, report.URL)
	})
	if !current {
		p.logger.Debug("discarding superseded report", "ticket", ticket)
		return project.Report{}, ErrSuperseded
	}
	if err != nil {
		return project.Report{}, fmt.Errorf("caching report: %w", err)
	}
	return report, nil
}

// dropInFlight makes outstanding fetches for key stale and detaches them
// from the singleflight group, so the next read starts a fresh one.
func (p *Pipeline) dropInFlight(g *guard, key string) {
	g.invalidate()
	p.flight.Forget(key)
}

func (p *Pipeline) forget() {
	p.DiscardDraft()
	p.dropInFlight(&p.details, kvstore.KeyAPIDetails)
	p.dropInFlight(&p.summary, kvstore.KeyProjectSummary)
	p.bdd.invalidate()
	p.run.invalidate()
}

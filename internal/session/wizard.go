package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/visionqa/vqa/internal/attachment"
	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/project"
)

// Step is one question of the onboarding wizard.
type Step int

const (
	StepProjectName Step = iota
	StepProjectLinks
	StepFiles
	StepDescription
)

// LastStep is the step Submit is issued from.
const LastStep = StepDescription

var stepNames = [...]string{"projectName", "projectLinks", "files", "description"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Phase is the wizard's state machine position.
type Phase int

const (
	PhaseAsking Phase = iota
	PhaseSubmitting
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAsking:
		return "asking"
	case PhaseSubmitting:
		return "submitting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// State is a snapshot of the wizard. Err is set in PhaseFailed.
type State struct {
	Phase Phase
	Step  Step
	Err   error
}

func (s State) String() string {
	switch s.Phase {
	case PhaseAsking:
		return fmt.Sprintf("asking(%s)", s.Step)
	case PhaseFailed:
		return fmt.Sprintf("failed: %v", s.Err)
	}
	return s.Phase.String()
}

type draft struct {
	Step        Step          `json:"step"`
	Done        bool          `json:"done,omitempty"`
	Ingested    bool          `json:"ingested,omitempty"`
	ProjectName string        `json:"project_name"`
	Links       project.Links `json:"project_links"`
	Description string        `json:"description"`
}

// Wizard collects the onboarding form one step at a time and submits it to
// the ingestion stage.
type Wizard struct {
	store  kvstore.Store
	stages Stages
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	form     project.Form
	ingested bool
}

func newWizard(store kvstore.Store, stages Stages, logger *slog.Logger) *Wizard {
	w := &Wizard{store: store, stages: stages, logger: logger}
	w.rehydrate()
	return w
}

func (w *Wizard) rehydrate() {
	d, ok := kvstore.Load[draft](w.store, kvstore.KeyOnboardingDraft)
	if !ok {
		if name, ok := kvstore.Load[string](w.store, kvstore.KeyProjectName); ok {
			w.form.ProjectName = name
		}
		if links, ok := kvstore.Load[project.Links](w.store, kvstore.KeyProjectLinks); ok {
			w.form.Links = links
		}
		return
	}

	w.form = project.Form{ProjectName: d.ProjectName, Links: d.Links, Description: d.Description}
	w.ingested = d.Ingested
	step := min(max(d.Step, StepProjectName), LastStep)
	switch {
	case d.Done:
		w.state = State{Phase: PhaseDone, Step: LastStep}
	case d.Ingested:
		w.state = State{Phase: PhaseAsking, Step: LastStep}
	case step > StepFiles:
		// Attachments are not persisted.
		w.state = State{Phase: PhaseAsking, Step: StepFiles}
	default:
		w.state = State{Phase: PhaseAsking, Step: step}
	}
}

// State returns the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Form returns a copy of the collected form.
func (w *Wizard) Form() project.Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneForm(w.form)
}

func cloneForm(f project.Form) project.Form {
	out := f
	out.Links = append(project.Links(nil), f.Links...)
	out.Attachments = append([]project.Attachment(nil), f.Attachments...)
	return out
}

// SetProjectName records and persists the project name.
func (w *Wizard) SetProjectName(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.form.ProjectName = strings.TrimSpace(name)
	if err := w.store.Set(kvstore.KeyProjectName, w.form.ProjectName); err != nil {
		return fmt.Errorf("saving project name: %w", err)
	}
	return w.saveDraft()
}

// AddLink appends a link unless it is blank or already present.
func (w *Wizard) AddLink(url string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return false, err
	}
	if !w.form.Links.Add(url) {
		return false, nil
	}
	return true, w.saveLinks()
}

// RemoveLink deletes the link at index i.
func (w *Wizard) RemoveLink(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if err := w.form.Links.RemoveAt(i); err != nil {
		return &ValidationError{Field: StepProjectLinks.String(), Reason: "cannot remove link", Err: err}
	}
	return w.saveLinks()
}

func (w *Wizard) saveLinks() error {
	if err := w.store.Set(kvstore.KeyProjectLinks, w.form.Links); err != nil {
		return fmt.Errorf("saving project links: %w", err)
	}
	return w.saveDraft()
}

// Attach adds already loaded attachments.
func (w *Wizard) Attach(atts ...project.Attachment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.form.Attachments = append(w.form.Attachments, atts...)
	return nil
}

// AttachPaths expands the glob patterns, loads the files and attaches them.
// A file that cannot be read or is not a valid document is a validation
// failure of the file step; nothing is attached in that case.
func (w *Wizard) AttachPaths(ctx context.Context, patterns ...string) error {
	paths, err := attachment.Resolve(patterns)
	if err != nil {
		return &ValidationError{Field: StepFiles.String(), Reason: "cannot resolve files", Err: err}
	}
	if len(paths) == 0 {
		return &ValidationError{Field: StepFiles.String(), Reason: "no files match " + strings.Join(patterns, ", ")}
	}
	atts, err := attachment.Load(ctx, paths)
	if err != nil {
		return &ValidationError{Field: StepFiles.String(), Reason: "cannot load files", Err: err}
	}
	return w.Attach(atts...)
}

// AttachUpload attaches uploaded file content.
func (w *Wizard) AttachUpload(name string, data []byte) error {
	a, err := attachment.FromBytes(name, data)
	if err != nil {
		return &ValidationError{Field: StepFiles.String(), Reason: "cannot attach " + name, Err: err}
	}
	return w.Attach(a)
}

// RemoveAttachment deletes the attachment at index i.
func (w *Wizard) RemoveAttachment(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.form.Attachments) {
		return &ValidationError{Field: StepFiles.String(), Reason: fmt.Sprintf("attachment index %d out of range", i)}
	}
	w.form.Attachments = append(w.form.Attachments[:i:i], w.form.Attachments[i+1:]...)
	return nil
}

// SetDescription records the project description.
func (w *Wizard) SetDescription(desc string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.form.Description = strings.TrimSpace(desc)
	return w.saveDraft()
}

// Next advances to the following step if the current one is complete.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Phase != PhaseAsking {
		return &ValidationError{Field: w.state.Step.String(), Reason: "wizard is " + w.state.Phase.String()}
	}
	if w.state.Step == LastStep {
		return &ValidationError{Field: w.state.Step.String(), Reason: "last step, submit instead"}
	}
	if err := w.validate(w.state.Step); err != nil {
		return err
	}
	w.state.Step++
	w.logger.Info("onboarding step", "step", w.state.Step.String())
	return w.saveDraft()
}

// Back returns to the previous step.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Phase != PhaseAsking && w.state.Phase != PhaseFailed {
		return &ValidationError{Field: w.state.Step.String(), Reason: "wizard is " + w.state.Phase.String()}
	}
	if w.state.Step == StepProjectName {
		return nil
	}
	w.state = State{Phase: PhaseAsking, Step: w.state.Step - 1}
	return w.saveDraft()
}

func (w *Wizard) validate(step Step) error {
	switch step {
	case StepProjectName:
		if w.form.ProjectName == "" {
			return &ValidationError{Field: step.String(), Reason: "project name is required"}
		}
	case StepFiles:
		if len(w.form.Attachments) == 0 && !w.ingested {
			return &ValidationError{Field: step.String(), Reason: "attach at least one file"}
		}
	case StepDescription:
		if w.form.Description == "" {
			return &ValidationError{Field: step.String(), Reason: "description is required"}
		}
	}
	return nil
}

// editable rejects edits while a submission is in flight or after it completed.
func (w *Wizard) editable() error {
	switch w.state.Phase {
	case PhaseSubmitting, PhaseDone:
		return &ValidationError{Field: w.state.Step.String(), Reason: "wizard is " + w.state.Phase.String()}
	}
	if w.ingested {
		return &ValidationError{Field: w.state.Step.String(), Reason: "project already ingested"}
	}
	return nil
}

// Submit sends the form to the ingestion stage and, when links were given,
// refreshes their embeddings once. On a stage failure the wizard moves to
// PhaseFailed and Submit may be called again; a retry after a successful
// ingestion only repeats the embeddings refresh.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.state.Phase != PhaseFailed && (w.state.Phase != PhaseAsking || w.state.Step != LastStep) {
		state := w.state
		w.mu.Unlock()
		return &ValidationError{Field: state.Step.String(), Reason: "cannot submit while " + state.String()}
	}
	for s := StepProjectName; s <= LastStep; s++ {
		if err := w.validate(s); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	form := cloneForm(w.form)
	ingested := w.ingested
	w.state = State{Phase: PhaseSubmitting, Step: LastStep}
	w.mu.Unlock()

	w.logger.Info("submitting onboarding", "project", form.ProjectName, "files", len(form.Attachments), "links", len(form.Links))

	if !ingested {
		if _, err := w.stages.Ingest(ctx, form); err != nil {
			return w.fail(err)
		}
		w.mu.Lock()
		w.ingested = true
		err := w.saveDraft()
		w.mu.Unlock()
		if err != nil {
			w.logger.Warn("saving onboarding draft", "error", err)
		}
	}

	if len(form.Links) > 0 {
		if err := w.stages.RefreshEmbeddings(ctx, form.Links); err != nil {
			return w.fail(err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = State{Phase: PhaseDone, Step: LastStep}
	w.logger.Info("onboarding done", "project", form.ProjectName)
	return w.saveDraft()
}

func (w *Wizard) fail(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = State{Phase: PhaseFailed, Step: LastStep, Err: err}
	w.logger.Warn("onboarding submission failed", "error", err)
	return err
}

// Reset discards the draft and starts over. Stored project name and links
// are kept.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Phase == PhaseSubmitting {
		return &ValidationError{Field: w.state.Step.String(), Reason: "submission in progress"}
	}
	if err := w.store.Remove(kvstore.KeyOnboardingDraft); err != nil {
		return fmt.Errorf("removing onboarding draft: %w", err)
	}
	w.state = State{}
	w.form = project.Form{}
	w.ingested = false
	return nil
}

// forget clears in-memory state after the store was wiped.
func (w *Wizard) forget() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = State{}
	w.form = project.Form{}
	w.ingested = false
}

func (w *Wizard) saveDraft() error {
	d := draft{
		Step:        w.state.Step,
		Done:        w.state.Phase == PhaseDone,
		Ingested:    w.ingested,
		ProjectName: w.form.ProjectName,
		Links:       w.form.Links,
		Description: w.form.Description,
	}
	if err := w.store.Set(kvstore.KeyOnboardingDraft, d); err != nil {
		return fmt.Errorf("saving onboarding draft: %w", err)
	}
	return nil
}

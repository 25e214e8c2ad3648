package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionqa/vqa/internal/attachment"
	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/stage"
)

var specPDF = project.Attachment{Name: "spec.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}

func newTestOrchestrator(t *testing.T, stages *fakeStages) (*Orchestrator, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory(0)
	return New(store, stages, Options{}), store
}

// walkToDescription fills every step up to the description.
func walkToDescription(t *testing.T, w *Wizard, links ...string) {
	t.Helper()
	require.NoError(t, w.SetProjectName("Fraud Detection"))
	require.NoError(t, w.Next())
	for _, l := range links {
		_, err := w.AddLink(l)
		require.NoError(t, err)
	}
	require.NoError(t, w.Next())
	require.NoError(t, w.Attach(specPDF))
	require.NoError(t, w.Next())
	require.Equal(t, State{Phase: PhaseAsking, Step: StepDescription}, w.State())
}

func TestWizard_StepGating(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStages{})
	w := o.Wizard()

	assert.Equal(t, State{Phase: PhaseAsking, Step: StepProjectName}, w.State())
	require.ErrorIs(t, w.Next(), ErrValidation)

	require.NoError(t, w.SetProjectName("   "))
	require.ErrorIs(t, w.Next(), ErrValidation, "blank name must not pass")

	require.NoError(t, w.SetProjectName("Fraud Detection"))
	require.NoError(t, w.Next())
	assert.Equal(t, StepProjectLinks, w.State().Step)

	// Links are optional.
	require.NoError(t, w.Next())
	assert.Equal(t, StepFiles, w.State().Step)

	err := w.Next()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "files", verr.Field)
	assert.Equal(t, StepFiles, w.State().Step, "file step must not advance without files")

	require.NoError(t, w.Attach(specPDF))
	require.NoError(t, w.Next())
	assert.Equal(t, StepDescription, w.State().Step)

	require.ErrorIs(t, w.Next(), ErrValidation, "last step advances only through Submit")
	require.ErrorIs(t, w.Submit(context.Background()), ErrValidation, "description is required")
}

func TestWizard_SubmitOnlyFromLastStep(t *testing.T) {
	stages := &fakeStages{}
	o, _ := newTestOrchestrator(t, stages)
	w := o.Wizard()
	require.NoError(t, w.SetProjectName("Fraud Detection"))

	require.ErrorIs(t, w.Submit(context.Background()), ErrValidation)
	assert.Empty(t, stages.Calls())
}

func TestWizard_EndToEnd(t *testing.T) {
	var (
		ingested  project.Form
		refreshed [][]string
	)
	stages := &fakeStages{
		ingestFn: func(_ context.Context, form project.Form) (stage.UploadAck, error) {
			ingested = form
			return stage.UploadAck{"message": "uploaded"}, nil
		},
		refreshFn: func(_ context.Context, urls []string) error {
			refreshed = append(refreshed, urls)
			return nil
		},
	}
	o, store := newTestOrchestrator(t, stages)
	w := o.Wizard()

	walkToDescription(t, w, "https://jira.example.com/PROJ")
	require.NoError(t, w.SetDescription("Scores card transactions for fraud."))
	require.NoError(t, w.Submit(context.Background()))

	assert.Equal(t, PhaseDone, w.State().Phase)
	assert.Equal(t, []string{"ingest", "refresh_embeddings"}, stages.Calls())
	assert.Equal(t, [][]string{{"https://jira.example.com/PROJ"}}, refreshed)

	assert.Equal(t, "Fraud Detection", ingested.ProjectName)
	assert.Equal(t, "Scores card transactions for fraud.", ingested.Description)
	assert.Equal(t, project.Links{"https://jira.example.com/PROJ"}, ingested.Links)
	require.Len(t, ingested.Attachments, 1)

	name, ok := kvstore.Load[string](store, kvstore.KeyProjectName)
	require.True(t, ok)
	assert.Equal(t, "Fraud Detection", name)
	links, ok := kvstore.Load[project.Links](store, kvstore.KeyProjectLinks)
	require.True(t, ok)
	assert.Equal(t, project.Links{"https://jira.example.com/PROJ"}, links)
}

func TestWizard_NoLinksSkipsEmbeddings(t *testing.T) {
	stages := &fakeStages{}
	o, _ := newTestOrchestrator(t, stages)
	w := o.Wizard()

	walkToDescription(t, w)
	require.NoError(t, w.SetDescription("desc"))
	require.NoError(t, w.Submit(context.Background()))

	assert.Equal(t, PhaseDone, w.State().Phase)
	assert.Equal(t, []string{"ingest"}, stages.Calls())
}

func TestWizard_IngestFailureIsRetryable(t *testing.T) {
	fail := true
	stages := &fakeStages{
		ingestFn: func(context.Context, project.Form) (stage.UploadAck, error) {
			if fail {
				return nil, transportError(stage.StageIngest)
			}
			return stage.UploadAck{}, nil
		},
	}
	o, _ := newTestOrchestrator(t, stages)
	w := o.Wizard()
	walkToDescription(t, w, "https://a")
	require.NoError(t, w.SetDescription("desc"))

	err := w.Submit(context.Background())
	require.ErrorIs(t, err, stage.ErrTransport)
	st := w.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.ErrorIs(t, st.Err, stage.ErrTransport)
	assert.Equal(t, []string{"ingest"}, stages.Calls(), "no embeddings refresh after a failed ingest")

	fail = false
	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, PhaseDone, w.State().Phase)
	assert.Equal(t, []string{"ingest", "ingest", "refresh_embeddings"}, stages.Calls())
}

func TestWizard_RetryAfterIngestOnlyRefreshes(t *testing.T) {
	fail := true
	stages := &fakeStages{
		refreshFn: func(context.Context, []string) error {
			if fail {
				return transportError(stage.StageRefreshEmbeddings)
			}
			return nil
		},
	}
	o, _ := newTestOrchestrator(t, stages)
	w := o.Wizard()
	walkToDescription(t, w, "https://a")
	require.NoError(t, w.SetDescription("desc"))

	require.Error(t, w.Submit(context.Background()))
	assert.Equal(t, PhaseFailed, w.State().Phase)

	fail = false
	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, PhaseDone, w.State().Phase)
	assert.Equal(t, []string{"ingest", "refresh_embeddings", "refresh_embeddings"}, stages.Calls())
}

func TestWizard_EditsRejectedWhenDone(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStages{})
	w := o.Wizard()
	walkToDescription(t, w)
	require.NoError(t, w.SetDescription("desc"))
	require.NoError(t, w.Submit(context.Background()))

	assert.ErrorIs(t, w.SetProjectName("other"), ErrValidation)
	assert.ErrorIs(t, w.Submit(context.Background()), ErrValidation)

	require.NoError(t, w.Reset())
	assert.Equal(t, State{Phase: PhaseAsking, Step: StepProjectName}, w.State())
}

func TestWizard_Links(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeStages{})
	w := o.Wizard()

	for _, l := range []string{" https://a ", "https://b", "https://a", ""} {
		_, err := w.AddLink(l)
		require.NoError(t, err)
	}
	assert.Equal(t, project.Links{"https://a", "https://b"}, w.Form().Links)

	require.NoError(t, w.RemoveLink(0))
	require.ErrorIs(t, w.RemoveLink(5), ErrValidation)

	links, ok := kvstore.Load[project.Links](store, kvstore.KeyProjectLinks)
	require.True(t, ok)
	assert.Equal(t, project.Links{"https://b"}, links)
}

func TestWizard_DraftResumesAtFileStep(t *testing.T) {
	stages := &fakeStages{}
	o, store := newTestOrchestrator(t, stages)
	walkToDescription(t, o.Wizard(), "https://a")
	require.NoError(t, o.Wizard().SetDescription("desc"))

	again := New(store, stages, Options{}).Wizard()
	st := again.State()
	assert.Equal(t, State{Phase: PhaseAsking, Step: StepFiles}, st)
	form := again.Form()
	assert.Equal(t, "Fraud Detection", form.ProjectName)
	assert.Equal(t, project.Links{"https://a"}, form.Links)
	assert.Equal(t, "desc", form.Description)
	assert.Empty(t, form.Attachments)
}

func TestWizard_DraftAfterIngestSkipsFiles(t *testing.T) {
	stages := &fakeStages{
		refreshFn: func(context.Context, []string) error { return transportError(stage.StageRefreshEmbeddings) },
	}
	o, store := newTestOrchestrator(t, stages)
	walkToDescription(t, o.Wizard(), "https://a")
	require.NoError(t, o.Wizard().SetDescription("desc"))
	require.Error(t, o.Wizard().Submit(context.Background()))

	stages.refreshFn = nil
	again := New(store, stages, Options{}).Wizard()
	assert.Equal(t, State{Phase: PhaseAsking, Step: StepDescription}, again.State())
	require.NoError(t, again.Submit(context.Background()))
	assert.Equal(t, []string{"ingest", "refresh_embeddings", "refresh_embeddings"}, stages.Calls())
}

func TestWizard_AttachPaths(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStages{})
	w := o.Wizard()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\n"), 0o644))

	require.NoError(t, w.AttachPaths(context.Background(), filepath.Join(dir, "*.md")))
	atts := w.Form().Attachments
	require.Len(t, atts, 1)
	assert.Equal(t, "notes.md", atts[0].Name)

	err := w.AttachPaths(context.Background(), filepath.Join(dir, "missing.pdf"))
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, attachment.ErrInvalid)

	require.ErrorIs(t, w.AttachPaths(context.Background(), filepath.Join(dir, "*.pdf")), ErrValidation)
	assert.Len(t, w.Form().Attachments, 1)

	require.NoError(t, w.RemoveAttachment(0))
	assert.Empty(t, w.Form().Attachments)
}

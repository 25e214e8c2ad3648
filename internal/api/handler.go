package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visionqa/vqa/internal/project"
	"github.com/visionqa/vqa/internal/session"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 64 << 20 // 64MB
)

// Deps holds what the HTTP surface needs.
type Deps struct {
	Session *session.Orchestrator
	Token   string
}

// NewHandler returns the local HTTP API a presentation layer drives the
// session through. Everything except /health and /metrics needs the bearer
// token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token, "/health", "/metrics"))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/onboarding", func(r chi.Router) {
		r.Get("/", handleOnboardingState(deps))
		r.Post("/", handleOnboardingUpdate(deps))
		r.Delete("/", handleOnboardingReset(deps))
		r.Post("/links", handleAddLink(deps))
		r.Delete("/links/{index}", handleRemoveLink(deps))
		r.Post("/files", handleUploadFiles(deps))
		r.Post("/next", handleOnboardingNext(deps))
		r.Post("/back", handleOnboardingBack(deps))
		r.Post("/submit", handleOnboardingSubmit(deps))
	})

	r.Get("/chat", handleChatHistory(deps))
	r.Post("/chat", handleChatSend(deps))
	r.Delete("/chat", handleChatReset(deps))

	r.Get("/summary", handleSummary(deps))
	r.Delete("/summary", handleSummaryClear(deps))
	r.Post("/summary/refresh", handleUpdateContext(deps))

	r.Get("/api-details", handleAPIDetails(deps))
	r.Delete("/api-details", handleAPIDetailsClear(deps))
	r.Get("/api-details/draft", handleDraft(deps))
	r.Put("/api-details/draft", handleReplaceDraft(deps))
	r.Post("/api-details/save", handleSaveAPIDetails(deps))

	r.Get("/bdd", handleSuite(deps))
	r.Post("/bdd", handleGenerateBDD(deps))

	r.Get("/reports", handleReport(deps))
	r.Post("/reports", handleRunBDD(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// --- onboarding ---

type attachmentView struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type onboardingView struct {
	Phase       string           `json:"phase"`
	Step        string           `json:"step"`
	Error       string           `json:"error,omitempty"`
	ProjectName string           `json:"project_name"`
	Links       project.Links    `json:"project_links"`
	Description string           `json:"description"`
	Files       []attachmentView `json:"files"`
}

func onboardingState(w *session.Wizard) onboardingView {
	st := w.State()
	form := w.Form()
	v := onboardingView{
		Phase:       st.Phase.String(),
		Step:        st.Step.String(),
		ProjectName: form.ProjectName,
		Links:       form.Links,
		Description: form.Description,
		Files:       make([]attachmentView, 0, len(form.Attachments)),
	}
	if v.Links == nil {
		v.Links = project.Links{}
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	for _, a := range form.Attachments {
		v.Files = append(v.Files, attachmentView{Name: a.Name, ContentType: a.ContentType, Size: len(a.Data)})
	}
	return v
}

func handleOnboardingState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, onboardingState(deps.Session.Wizard()))
	}
}

type onboardingUpdate struct {
	ProjectName *string `json:"project_name"`
	Description *string `json:"description"`
}

func handleOnboardingUpdate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req onboardingUpdate
		if !decodeBody(w, r, &req) {
			return
		}
		wiz := deps.Session.Wizard()
		if req.ProjectName != nil {
			if err := wiz.SetProjectName(*req.ProjectName); err != nil {
				writeErr(w, err)
				return
			}
		}
		if req.Description != nil {
			if err := wiz.SetDescription(*req.Description); err != nil {
				writeErr(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleOnboardingReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wiz := deps.Session.Wizard()
		if err := wiz.Reset(); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleAddLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		wiz := deps.Session.Wizard()
		added, err := wiz.AddLink(req.URL)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"added": added, "project_links": wiz.Form().Links})
	}
}

func handleRemoveLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid link index")
			return
		}
		wiz := deps.Session.Wizard()
		if err := wiz.RemoveLink(i); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleUploadFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no file parts")
			return
		}

		wiz := deps.Session.Wizard()
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "opening %s: %v", fh.Filename, err)
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", fh.Filename, err)
				return
			}
			if err := wiz.AttachUpload(fh.Filename, data); err != nil {
				writeErr(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleOnboardingNext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wiz := deps.Session.Wizard()
		if err := wiz.Next(); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleOnboardingBack(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wiz := deps.Session.Wizard()
		if err := wiz.Back(); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

func handleOnboardingSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wiz := deps.Session.Wizard()
		if err := wiz.Submit(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, onboardingState(wiz))
	}
}

// --- chat ---

func handleChatHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id": deps.Session.Chat.ThreadID(),
			"turns":     deps.Session.Chat.Snapshot(),
		})
	}
}

func handleChatSend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		turn, ok, _ := deps.Session.Chat.Send(r.Context(), req.Message)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		writeJSON(w, http.StatusOK, turn)
	}
}

func handleChatReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.Chat.Reset(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- summary ---

func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Session.Pipeline.Summary(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleSummaryClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.Pipeline.ClearSummary(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUpdateContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.Pipeline.UpdateContext(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

// --- api details ---

func handleAPIDetails(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Session.Pipeline.APIDetails(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleAPIDetailsClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.Pipeline.ClearAPIDetails(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Session.Pipeline.Draft()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleReplaceDraft(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req project.APIDetails
		if !decodeBody(w, r, &req) {
			return
		}
		p := deps.Session.Pipeline
		if err := p.ReplaceDraft(req); err != nil {
			writeErr(w, err)
			return
		}
		d, err := p.Draft()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleSaveAPIDetails(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Session.Pipeline.SaveAPIDetails()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// --- bdd & reports ---

func handleSuite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suite, ok := deps.Session.Pipeline.Suite()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no bdd suite generated")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suite": suite})
	}
}

func handleGenerateBDD(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suite, err := deps.Session.Pipeline.GenerateBDD(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suite": suite})
	}
}

func handleReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := deps.Session.Pipeline.Report()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no report generated")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleRunBDD(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Session.Pipeline.RunBDD(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

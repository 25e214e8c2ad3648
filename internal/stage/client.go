// Package stage is the client for the remote pipeline services. Each method
// performs exactly one HTTP call and never touches local state.
package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/visionqa/vqa/internal/project"
)

const maxResponseSize = 16 << 20 // 16MB

// Endpoints holds the base URLs of the two upstream services.
type Endpoints struct {
	IngestURL string // multipart upload service
	AgentURL  string // chat, embeddings, BDD generation and execution
}

// Client talks to the ingestion and agent services over HTTP.
type Client struct {
	ingestURL  string
	agentURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client. Requests carry no client-side timeout; callers
// bound them with their context.
func New(ep Endpoints, opts ...Option) *Client {
	c := &Client{
		ingestURL:  strings.TrimRight(ep.IngestURL, "/"),
		agentURL:   strings.TrimRight(ep.AgentURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadAck is the ingestion service's acknowledgement object.
type UploadAck map[string]any

// ChatReply is the chat service's answer.
type ChatReply struct {
	Response string
	ThreadID string
}

// SuiteRequest describes the API the scenario generator should cover.
type SuiteRequest struct {
	BaseURL   string
	Endpoints []project.Endpoint
	AppName   string
}

// RunRequest asks the execution service to run a suite.
type RunRequest struct {
	SuiteRequest
	Suite     project.Suite
	APISchema string
}

// Ingest uploads the onboarding form as multipart/form-data.
func (c *Client) Ingest(ctx context.Context, form project.Form) (ack UploadAck, err error) {
	start := time.Now()
	defer func() { observe(StageIngest, start, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeForm(mw, form); err != nil {
		return nil, transportErr(StageIngest, 0, fmt.Errorf("building multipart body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ingestURL+"/upload/", &buf)
	if err != nil {
		return nil, transportErr(StageIngest, 0, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.send(StageIngest, req)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, &ack); err != nil || ack == nil {
		return nil, malformedErr(StageIngest, "expected JSON object acknowledgement")
	}
	return ack, nil
}

func writeForm(mw *multipart.Writer, form project.Form) error {
	if err := mw.WriteField("projectName", form.ProjectName); err != nil {
		return err
	}
	if err := mw.WriteField("description", form.Description); err != nil {
		return err
	}
	for _, a := range form.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Name))
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := w.Write(a.Data); err != nil {
			return err
		}
	}
	for _, link := range form.Links {
		if err := mw.WriteField("projectLinks", link); err != nil {
			return err
		}
	}
	return mw.Close()
}

type embeddingsRequest struct {
	URLs []string `json:"urls"`
}

// RefreshEmbeddings asks the agent service to (re)index the given links.
func (c *Client) RefreshEmbeddings(ctx context.Context, urls []string) (err error) {
	start := time.Now()
	defer func() { observe(StageRefreshEmbeddings, start, err) }()

	_, err = c.postJSON(ctx, StageRefreshEmbeddings, "/post_embeddings", embeddingsRequest{URLs: urls})
	return err
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

type chatResponse struct {
	Response *string `json:"response"`
	ThreadID *string `json:"thread_id"`
}

// Chat sends one message. threadID may be empty to start a new thread; the
// reply always carries the thread the backend used.
func (c *Client) Chat(ctx context.Context, message, threadID string) (reply ChatReply, err error) {
	start := time.Now()
	defer func() { observe(StageChat, start, err) }()

	body, err := c.postJSON(ctx, StageChat, "/chat", chatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		return ChatReply{}, err
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return ChatReply{}, malformedErr(StageChat, "decoding body: %v", err)
	}
	if result.Response == nil {
		return ChatReply{}, malformedErr(StageChat, "missing response field")
	}
	if result.ThreadID == nil || *result.ThreadID == "" {
		return ChatReply{}, malformedErr(StageChat, "missing thread_id field")
	}
	return ChatReply{Response: *result.Response, ThreadID: *result.ThreadID}, nil
}

type suiteBody struct {
	Endpoints       []string `json:"endpoints"`
	BaseURL         string   `json:"base_url"`
	ApplicationName string   `json:"application_name"`
}

func newSuiteBody(r SuiteRequest) suiteBody {
	return suiteBody{
		Endpoints:       project.APIDetails{Endpoints: r.Endpoints}.EndpointStrings(),
		BaseURL:         strings.TrimSuffix(r.BaseURL, "/"),
		ApplicationName: r.AppName,
	}
}

type suiteResponse struct {
	Response *[]string `json:"response"`
}

// GenerateBDD asks the scenario generator for a suite covering the endpoints.
func (c *Client) GenerateBDD(ctx context.Context, r SuiteRequest) (suite project.Suite, err error) {
	start := time.Now()
	defer func() { observe(StageGenerateBDD, start, err) }()

	body, err := c.postJSON(ctx, StageGenerateBDD, "/generate_bdd", newSuiteBody(r))
	if err != nil {
		return nil, err
	}

	var result suiteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, malformedErr(StageGenerateBDD, "decoding body: %v", err)
	}
	if result.Response == nil {
		return nil, malformedErr(StageGenerateBDD, "missing response field")
	}
	return project.Suite(*result.Response), nil
}

type runBody struct {
	suiteBody
	BDDList   []string `json:"bdd_list"`
	APISchema string   `json:"api_schema"`
}

// ExecuteBDD runs the suite and returns the report locator.
func (c *Client) ExecuteBDD(ctx context.Context, r RunRequest) (report project.Report, err error) {
	start := time.Now()
	defer func() { observe(StageExecuteBDD, start, err) }()

	suite := r.Suite
	if suite == nil {
		suite = project.Suite{}
	}
	body, err := c.postJSON(ctx, StageExecuteBDD, "/generate_reports", runBody{
		suiteBody: newSuiteBody(r.SuiteRequest),
		BDDList:   suite,
		APISchema: r.APISchema,
	})
	if err != nil {
		return project.Report{}, err
	}

	url, err := decodeLocator(body)
	if err != nil {
		return project.Report{}, malformedErr(StageExecuteBDD, "%v", err)
	}
	return project.Report{URL: url}, nil
}

// decodeLocator accepts a bare JSON string or an object with a url field.
func decodeLocator(body []byte) (string, error) {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty report locator")
		}
		return s, nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("decoding body: %v", err)
	}
	if obj.URL == "" {
		return "", fmt.Errorf("missing report locator")
	}
	return obj.URL, nil
}

// Service names an upstream for Ping.
type Service string

const (
	ServiceIngest Service = "ingest"
	ServiceAgent  Service = "agent"
)

// Ping reports whether the service answers HTTP at all.
func (c *Client) Ping(ctx context.Context, svc Service) error {
	base := c.agentURL
	if svc == ServiceIngest {
		base = c.ingestURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s service unreachable: %w", svc, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) postJSON(ctx context.Context, stage Name, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, transportErr(stage, 0, fmt.Errorf("marshalling request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, transportErr(stage, 0, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(stage, req)
}

// send performs the request and returns the body of a 2xx response.
func (c *Client) send(stage Name, req *http.Request) ([]byte, error) {
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("stage request failed", "stage", stage, "request_id", reqID, "error", err)
		return nil, transportErr(stage, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.logger.Debug("stage response",
		"stage", stage,
		"request_id", reqID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		c.logger.Warn("stage returned error status", "stage", stage, "status", resp.StatusCode)
		return nil, transportErr(stage, resp.StatusCode, fmt.Errorf("unexpected status: %s", detail))
	}
	if err != nil {
		return nil, transportErr(stage, resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

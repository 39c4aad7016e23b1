// Package replicate submits image transformation jobs to the Replicate
// predictions API and reads back their status.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	defaultModel        = "black-forest-labs/flux-kontext-pro"
	defaultOutputFormat = "jpg"
	maxResponseBytes    = 1 << 20
)

// TokenSource supplies the API token when it is not configured statically.
type TokenSource interface {
	Token(ctx context.Context, provider string) (string, error)
}

// CallObserver records the outcome of each remote call.
type CallObserver interface {
	ObserveJobCall(operation, outcome string, elapsed time.Duration)
}

// Options configures the Replicate client.
type Options struct {
	APIToken       string
	Tokens         TokenSource
	BaseURL        string
	Model          string
	OutputFormat   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	Observer       CallObserver
	RequestTimeout time.Duration
}

// Client performs single-shot calls against the predictions API. It never loops.
type Client struct {
	apiToken     string
	tokens       TokenSource
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
	logger       *infra.Logger
	observer     CallObserver
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	InputImage   string `json:"input_image"`
	Prompt       string `json:"prompt"`
	OutputFormat string `json:"output_format"`
}

type prediction struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output"`
	Error     json.RawMessage `json:"error"`
	CreatedAt string          `json:"created_at"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with defaults filled in.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.Trim(strings.TrimSpace(opts.Model), "/")
	if model == "" {
		model = defaultModel
	}
	if strings.Count(model, "/") != 1 {
		return nil, fmt.Errorf("replicate: model must be owner/name, got %q", model)
	}
	format := strings.TrimSpace(opts.OutputFormat)
	if format == "" {
		format = defaultOutputFormat
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiToken:     strings.TrimSpace(opts.APIToken),
		tokens:       opts.Tokens,
		baseURL:      baseURL,
		model:        model,
		outputFormat: format,
		httpClient:   httpClient,
		logger:       logger,
		observer:     opts.Observer,
	}, nil
}

// Model returns the configured owner/name model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit starts a prediction for the source image and prompt.
func (c *Client) Submit(ctx context.Context, sourceImageURL, prompt string) (domain.Job, error) {
	sourceImageURL = strings.TrimSpace(sourceImageURL)
	prompt = strings.TrimSpace(prompt)
	if sourceImageURL == "" || prompt == "" {
		return domain.Job{}, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, "replicate: source image and prompt are required", nil)
	}
	body, err := json.Marshal(predictionRequest{Input: predictionInput{
		InputImage:   sourceImageURL,
		Prompt:       prompt,
		OutputFormat: c.outputFormat,
	}})
	if err != nil {
		return domain.Job{}, fmt.Errorf("replicate: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, c.model)
	job, err := c.do(ctx, "submit", http.MethodPost, endpoint, body)
	if err != nil {
		return domain.Job{}, err
	}
	c.logger.Info().
		Str("job_id", job.ID).
		Str("model", c.model).
		Str("status", string(job.Status)).
		Msg("replicate: prediction submitted")
	return job, nil
}

// Poll reads the current status of a prediction once.
func (c *Client) Poll(ctx context.Context, jobID string) (domain.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.Job{}, domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, "replicate: job id is required", nil)
	}
	endpoint := fmt.Sprintf("%s/predictions/%s", c.baseURL, jobID)
	job, err := c.do(ctx, "poll", http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Job{}, err
	}
	c.logger.Debug().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Str("url", job.OutputURL).
		Msg("replicate: prediction polled")
	return job, nil
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, body []byte) (job domain.Job, err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveJobCall(operation, outcome(err), time.Since(started))
		}
	}()

	token, err := c.token(ctx)
	if err != nil {
		return domain.Job{}, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return domain.Job{}, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Job{}, transportError(operation, err)
	}
	defer resp.Body.Close()

	raw, err := infra.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		if infra.IsResponseTooLarge(err) {
			return domain.Job{}, domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, "replicate: "+operation+" response too large", err)
		}
		return domain.Job{}, transportError(operation, err)
	}
	if err := statusError(operation, resp, raw); err != nil {
		return domain.Job{}, err
	}
	return decodePrediction(operation, raw)
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.apiToken != "" {
		return c.apiToken, nil
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx, "replicate")
		if err != nil {
			return "", domain.NewError(domain.KindStorage, domain.CodeStorageUnavailable, "replicate: load api token", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	return "", domain.NewError(domain.KindAuthentication, domain.CodeAuthentication, "replicate: api token is not configured", nil)
}

func statusError(operation string, resp *http.Response, raw []byte) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg := fmt.Sprintf("replicate: %s status %d", operation, resp.StatusCode)
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		msg = fmt.Sprintf("replicate: %s: %s", operation, detail.Detail)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.NewError(domain.KindAuthentication, domain.CodeAuthentication, msg, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := domain.NewError(domain.KindRateLimited, domain.CodeRateLimited, msg, nil)
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return e
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		return domain.NewError(domain.KindTransient, domain.CodeTransientNetwork, msg, nil)
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewError(domain.KindNotFound, domain.CodeRecordNotFound, msg, nil)
	default:
		return domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, msg, nil)
	}
}

func decodePrediction(operation string, raw []byte) (domain.Job, error) {
	var p prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Job{}, domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, "replicate: decode "+operation+" response", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return domain.Job{}, domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, "replicate: "+operation+" response missing id", nil)
	}
	status, err := normalizeStatus(p.Status)
	if err != nil {
		return domain.Job{}, err
	}
	job := domain.Job{
		ID:        p.ID,
		Status:    status,
		OutputURL: firstOutputURL(p.Output),
		Error:     errorText(p.Error),
	}
	if strings.EqualFold(p.Status, "canceled") && job.Error == "" {
		job.Error = "canceled"
	}
	if status == domain.JobStatusFailed && job.Error == "" {
		job.Error = "generation failed"
	}
	if t, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
		job.CreatedAt = t
	}
	return job, nil
}

func normalizeStatus(raw string) (domain.JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting":
		return domain.JobStatusStarting, nil
	case "processing":
		return domain.JobStatusProcessing, nil
	case "succeeded":
		return domain.JobStatusSucceeded, nil
	case "failed", "canceled":
		return domain.JobStatusFailed, nil
	default:
		return "", domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, fmt.Sprintf("replicate: unknown prediction status %q", raw), nil)
	}
}

// firstOutputURL accepts either a single URL or a list of URLs.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, u := range list {
			if u = strings.TrimSpace(u); u != "" {
				return u
			}
		}
	}
	return ""
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func transportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	msg := "replicate: " + operation + " request failed"
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "replicate: " + operation + " timed out"
	}
	return domain.NewError(domain.KindTransient, domain.CodeTransientNetwork, msg, err)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

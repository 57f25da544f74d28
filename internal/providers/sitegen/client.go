package sitegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
)

const (
	defaultBaseURL  = "http://localhost:8000"
	generatePath    = "/api/generate-website"
	websitesPath    = "/api/websites/"
	maxErrorBodyLen = 512
)

// Config controls the website generation backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.Generator and ports.WebsiteStore over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrDiscard(logger),
	}
}

// Generate posts the description and inspiration images as a multipart form.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("description", req.Description); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("write description field: %w", err)
	}
	for i, img := range req.Images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("inspiration-%d", i+1)
		}
		fw, err := mw.CreateFormFile("inspiration_images", name)
		if err != nil {
			return domain.GenerationResult{}, fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(img.Data); err != nil {
			return domain.GenerationResult{}, fmt.Errorf("copy image data: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	c.logger.Info("requesting website generation", "description_len", len(req.Description), "images", len(req.Images))

	var payload struct {
		HTML *string `json:"html"`
	}
	if err := c.do(ctx, http.MethodPost, generatePath, &body, mw.FormDataContentType(), &payload); err != nil {
		return domain.GenerationResult{}, err
	}
	if payload.HTML == nil || *payload.HTML == "" {
		return domain.GenerationResult{}, fmt.Errorf("%w: no HTML content received from server", domain.ErrMalformedResponse)
	}

	c.logger.Info("website generated", "html_len", len(*payload.HTML))
	return domain.GenerationResult{HTML: *payload.HTML}, nil
}

// List returns saved websites in the order the service returns them.
func (c *Client) List(ctx context.Context) ([]domain.SavedWebsite, error) {
	var sites []domain.SavedWebsite
	if err := c.do(ctx, http.MethodGet, websitesPath, nil, "", &sites); err != nil {
		return nil, err
	}
	if sites == nil {
		sites = []domain.SavedWebsite{}
	}
	return sites, nil
}

// Create saves a generated website and returns the stored record.
func (c *Client) Create(ctx context.Context, draft domain.WebsiteDraft) (domain.SavedWebsite, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := []struct{ key, value string }{
		{"title", draft.Title},
		{"description", draft.Description},
		{"html_content", draft.HTMLContent},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return domain.SavedWebsite{}, fmt.Errorf("write %s field: %w", f.key, err)
		}
	}
	if err := mw.Close(); err != nil {
		return domain.SavedWebsite{}, fmt.Errorf("close multipart writer: %w", err)
	}

	c.logger.Info("saving website", "title", draft.Title)

	var site domain.SavedWebsite
	if err := c.do(ctx, http.MethodPost, websitesPath, &body, mw.FormDataContentType(), &site); err != nil {
		return domain.SavedWebsite{}, err
	}
	if site.PermanentURL == "" {
		return domain.SavedWebsite{}, fmt.Errorf("%w: save response is missing permanent_url", domain.ErrMalformedResponse)
	}
	if site.Title == "" {
		site.Title = draft.Title
	}
	if site.Description == "" {
		site.Description = draft.Description
	}
	return site, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		c.logger.Warn("upstream error", "method", method, "path", path, "status", resp.StatusCode)
		return &domain.UpstreamError{
			Op:     method + " " + path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrMalformedResponse, path, err)
	}
	return nil
}

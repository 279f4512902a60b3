package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/werkpilot/cost-model-service/config"
)

// ExtractionInput carries the specification document plus everything already
// known about the article that helps the model ground its answer.
type ExtractionInput struct {
	ArticleName      string
	Document         []byte
	Filename         string
	Description      string
	Comment          string
	UnitWeightKg     *float64
	LatestOrderPrice *float64
	SimilarArticles  []string
}

// ExtractedIndexQuantity is one raw material mapped to a price index name
// with its mass per produced unit.
type ExtractedIndexQuantity struct {
	IndexName     string  `json:"index_name"`
	QuantityGrams float64 `json:"quantity_grams"`
}

// ExtractionResult is the structured cost model returned by the model.
type ExtractionResult struct {
	Indices                    []ExtractedIndexQuantity `json:"indices"`
	TotalWeightGrams           float64                  `json:"total_weight_grams"`
	LaborCostEUR               *float64                 `json:"labor_cost_eur"`
	ElectricityCostEUR         *float64                 `json:"electricity_cost_eur"`
	OtherManufacturingCostsEUR *float64                 `json:"other_manufacturing_costs_eur"`
}

// ExtractionClient extracts structured cost models from specification
// documents and answers free-text estimation prompts.
type ExtractionClient interface {
	ExtractCostModel(ctx context.Context, in ExtractionInput) (*ExtractionResult, error)
	EstimateText(ctx context.Context, prompt string) (string, error)
}

// OpenAIError is returned for non-2xx API responses so callers can tell
// upstream outages apart from rejected requests.
type OpenAIError struct {
	StatusCode int
	Body       string
}

func (e *OpenAIError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

// IsUpstreamError reports whether err points at the model API being
// unavailable (rate limited, server error, or unreachable) rather than at a
// request the API rejected.
func IsUpstreamError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *OpenAIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

const extractionSystemPrompt = "You are a manufacturing cost analyst. Read the attached product " +
	"specification and report the raw material composition by mass together with the direct labor, " +
	"electricity and other manufacturing costs of producing one unit. Report masses in grams. Only " +
	"use index names from the provided list. Leave cost fields null when the document gives no basis " +
	"for them."

const estimateSystemPrompt = "You are a cost modeling assistant."

// OpenAIClient talks to the OpenAI files and responses APIs.
type OpenAIClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	MaxRetries int

	// IndexNames constrains the index_name field of extraction results.
	IndexNames []string
}

func NewOpenAIClient(cfg config.OpenAIConfig, indexNames []string) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &OpenAIClient{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: retries,
		IndexNames: indexNames,
	}
}

type responsesMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesTextFormat struct {
	Format map[string]any `json:"format"`
}

type responsesRequest struct {
	Model       string               `json:"model"`
	Input       []responsesMessage   `json:"input"`
	Text        *responsesTextFormat `json:"text,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" && c.Text != "" {
				out.WriteString(c.Text)
			}
		}
	}
	return out.String()
}

// ExtractCostModel uploads the specification document and asks the model for
// a schema-constrained cost model. Malformed or empty answers are errors,
// never a zeroed result.
func (c *OpenAIClient) ExtractCostModel(ctx context.Context, in ExtractionInput) (*ExtractionResult, error) {
	if c.APIKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if len(in.Document) == 0 {
		return nil, errors.New("specification document is empty")
	}

	fileID, err := c.uploadFile(ctx, in.Document, in.Filename)
	if err != nil {
		return nil, fmt.Errorf("upload specification: %w", err)
	}

	content := []map[string]any{
		{"type": "input_file", "file_id": fileID},
		{"type": "input_text", "text": buildExtractionPrompt(in)},
	}
	req := responsesRequest{
		Model: c.Model,
		Input: []responsesMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: content},
		},
		Text: &responsesTextFormat{Format: map[string]any{
			"type":   "json_schema",
			"name":   "cost_model_extraction",
			"schema": c.extractionSchema(),
			"strict": true,
		}},
		Temperature: 0.2,
	}

	var resp responsesResponse
	if err := c.postJSON(ctx, "/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := strings.TrimSpace(extractOutputText(resp))
	if text == "" {
		return nil, errors.New("no output_text in model response")
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse model JSON: %w", err)
	}
	if len(result.Indices) == 0 && result.TotalWeightGrams <= 0 &&
		result.LaborCostEUR == nil && result.ElectricityCostEUR == nil &&
		result.OtherManufacturingCostsEUR == nil {
		return nil, errors.New("model returned an empty cost model")
	}
	return &result, nil
}

// EstimateText answers a free-text estimation prompt. The raw model answer is
// returned verbatim; an empty answer is an error.
func (c *OpenAIClient) EstimateText(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("openai api key not configured")
	}

	req := responsesRequest{
		Model: c.Model,
		Input: []responsesMessage{
			{Role: "system", Content: estimateSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}

	var resp responsesResponse
	if err := c.postJSON(ctx, "/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := strings.TrimSpace(extractOutputText(resp))
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

func buildExtractionPrompt(in ExtractionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article: %s\n", in.ArticleName)
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Description)
	}
	if in.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", in.Comment)
	}
	if in.UnitWeightKg != nil && *in.UnitWeightKg > 0 {
		fmt.Fprintf(&b, "Known unit weight: %.3f kg\n", *in.UnitWeightKg)
	}
	if in.LatestOrderPrice != nil {
		fmt.Fprintf(&b, "Most recent purchase price: %.2f EUR per unit\n", *in.LatestOrderPrice)
	}
	if len(in.SimilarArticles) > 0 {
		b.WriteString("Comparable articles from past orders:\n")
		for _, line := range in.SimilarArticles {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	b.WriteString("Extract the cost model for one unit of this article from the attached specification.")
	return b.String()
}

func (c *OpenAIClient) extractionSchema() map[string]any {
	indexName := map[string]any{"type": "string"}
	if len(c.IndexNames) > 0 {
		indexName["enum"] = c.IndexNames
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"indices": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index_name":     indexName,
						"quantity_grams": map[string]any{"type": "number"},
					},
					"required":             []string{"index_name", "quantity_grams"},
					"additionalProperties": false,
				},
			},
			"total_weight_grams":            map[string]any{"type": "number"},
			"labor_cost_eur":                map[string]any{"type": []string{"number", "null"}},
			"electricity_cost_eur":          map[string]any{"type": []string{"number", "null"}},
			"other_manufacturing_costs_eur": map[string]any{"type": []string{"number", "null"}},
		},
		"required": []string{
			"indices", "total_weight_grams", "labor_cost_eur",
			"electricity_cost_eur", "other_manufacturing_costs_eur",
		},
		"additionalProperties": false,
	}
}

type openAIFileResponse struct {
	ID string `json:"id"`
}

// uploadFile stores the document with purpose user_data and returns its id
// for referencing from a responses call.
func (c *OpenAIClient) uploadFile(ctx context.Context, document []byte, filename string) (string, error) {
	if filename == "" {
		filename = "specification.pdf"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("purpose", "user_data"); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(document); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	var out openAIFileResponse
	if err := c.do(ctx, http.MethodPost, "/files", writer.FormDataContentType(), body.Bytes(), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("file upload returned no id")
	}
	return out.ID, nil
}

func (c *OpenAIClient) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, "application/json", payload, out)
}

// do performs one API call with exponential backoff on rate limits, server
// errors and transport failures.
func (c *OpenAIClient) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.doOnce(ctx, method, path, contentType, body, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == c.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func (c *OpenAIClient) doOnce(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OpenAIError{StatusCode: resp.StatusCode, Body: truncateErrorBody(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *OpenAIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	// Transport-level failures may be transient.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func truncateErrorBody(raw []byte) string {
	const max = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max]
	}
	return s
}

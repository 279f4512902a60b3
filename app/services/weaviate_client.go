package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/werkpilot/cost-model-service/config"
)

// SimilarityClient stores specification documents in a vector database and
// looks up comparable articles. Both operations are best effort: failures are
// reported as false or an empty result, never as an error, so the processing
// pipeline keeps going without similarity context.
type SimilarityClient interface {
	Ingest(ctx context.Context, articleID uint, articleName string, document []byte, filename string) bool
	FindSimilar(ctx context.Context, articleID uint, topK int, threshold float64) []int64
}

// WeaviateClient talks to a Weaviate instance over its REST and GraphQL
// endpoints. Objects are vectorized server-side by the text2vec-openai module
// from the extracted document text.
type WeaviateClient struct {
	BaseURL    string
	APIKey     string
	OpenAIKey  string
	Collection string
	Enabled    bool
	HTTPClient *http.Client

	logger *log.Logger

	mu          sync.Mutex
	schemaReady bool
}

func NewWeaviateClient(cfg config.WeaviateConfig, openAIKey string, logger *log.Logger) *WeaviateClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "ArticleDocument"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WeaviateClient{
		BaseURL:    strings.TrimRight(cfg.URL, "/"),
		APIKey:     cfg.APIKey,
		OpenAIKey:  openAIKey,
		Collection: collection,
		Enabled:    cfg.Enabled && cfg.URL != "",
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// objectID derives the Weaviate object id from the article id, so
// re-ingesting a document replaces the stored vector instead of accumulating
// duplicates.
func (c *WeaviateClient) objectID(articleID uint) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("article-%d", articleID))).String()
}

// Ingest extracts text from the document and upserts it into the collection.
func (c *WeaviateClient) Ingest(ctx context.Context, articleID uint, articleName string, document []byte, filename string) bool {
	if !c.Enabled {
		return false
	}
	text := extractDocumentText(document)
	if text == "" {
		c.logger.Printf("weaviate: no extractable text in %q for article id=%d", filename, articleID)
		return false
	}
	if !c.ensureCollection(ctx) {
		return false
	}

	obj := map[string]any{
		"class": c.Collection,
		"id":    c.objectID(articleID),
		"properties": map[string]any{
			"article_id":    int64(articleID),
			"article_name":  articleName,
			"filename":      filename,
			"document_text": text,
		},
	}

	status, _, err := c.doJSON(ctx, http.MethodPost, "/v1/objects", obj)
	if err != nil {
		c.logger.Printf("weaviate: ingest failed for article id=%d: %v", articleID, err)
		return false
	}
	if status == http.StatusUnprocessableEntity {
		// An object for this article already exists; replace it.
		path := "/v1/objects/" + c.Collection + "/" + c.objectID(articleID)
		status, _, err = c.doJSON(ctx, http.MethodPut, path, obj)
		if err != nil {
			c.logger.Printf("weaviate: replace failed for article id=%d: %v", articleID, err)
			return false
		}
	}
	if status < 200 || status >= 300 {
		c.logger.Printf("weaviate: ingest returned http %d for article id=%d", status, articleID)
		return false
	}
	c.logger.Printf("weaviate: ingested document for article id=%d", articleID)
	return true
}

// FindSimilar returns the ids of up to topK articles whose documents sit
// within the similarity threshold of this article's document.
func (c *WeaviateClient) FindSimilar(ctx context.Context, articleID uint, topK int, threshold float64) []int64 {
	if !c.Enabled || topK <= 0 {
		return nil
	}
	if !c.ensureCollection(ctx) {
		return nil
	}

	// Fetch one extra so the source document itself can be dropped.
	query := fmt.Sprintf(
		`{ Get { %s(nearObject: {id: %q}, limit: %d) { article_id _additional { distance } } } }`,
		c.Collection, c.objectID(articleID), topK+1,
	)
	status, raw, err := c.doJSON(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": query})
	if err != nil {
		c.logger.Printf("weaviate: similarity query failed for article id=%d: %v", articleID, err)
		return nil
	}
	if status < 200 || status >= 300 {
		c.logger.Printf("weaviate: similarity query returned http %d for article id=%d", status, articleID)
		return nil
	}

	var out struct {
		Data map[string]map[string][]struct {
			ArticleID  int64 `json:"article_id"`
			Additional struct {
				Distance float64 `json:"distance"`
			} `json:"_additional"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Printf("weaviate: similarity response parse failed for article id=%d: %v", articleID, err)
		return nil
	}
	if len(out.Errors) > 0 {
		c.logger.Printf("weaviate: similarity query error for article id=%d: %s", articleID, out.Errors[0].Message)
		return nil
	}

	var ids []int64
	for _, obj := range out.Data["Get"][c.Collection] {
		if obj.ArticleID == 0 || obj.ArticleID == int64(articleID) {
			continue
		}
		similarity := 1.0 - obj.Additional.Distance
		if similarity < threshold {
			continue
		}
		ids = append(ids, obj.ArticleID)
		if len(ids) >= topK {
			break
		}
	}
	return ids
}

// ensureCollection creates the collection schema on first use.
func (c *WeaviateClient) ensureCollection(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schemaReady {
		return true
	}

	status, _, err := c.doJSON(ctx, http.MethodGet, "/v1/schema/"+c.Collection, nil)
	if err != nil {
		c.logger.Printf("weaviate: schema check failed: %v", err)
		return false
	}
	if status == http.StatusOK {
		c.schemaReady = true
		return true
	}
	if status != http.StatusNotFound {
		c.logger.Printf("weaviate: schema check returned http %d", status)
		return false
	}

	classDef := map[string]any{
		"class":       c.Collection,
		"description": "Product specification documents for similarity search",
		"vectorizer":  "text2vec-openai",
		"properties": []map[string]any{
			{"name": "article_id", "dataType": []string{"int"}},
			{"name": "article_name", "dataType": []string{"text"}},
			{"name": "filename", "dataType": []string{"text"}},
			{"name": "document_text", "dataType": []string{"text"}},
		},
	}
	status, _, err = c.doJSON(ctx, http.MethodPost, "/v1/schema", classDef)
	if err != nil {
		c.logger.Printf("weaviate: schema create failed: %v", err)
		return false
	}
	// 422 means another instance created the class first.
	if (status < 200 || status >= 300) && status != http.StatusUnprocessableEntity {
		c.logger.Printf("weaviate: schema create returned http %d", status)
		return false
	}
	c.logger.Printf("weaviate: collection %s ready", c.Collection)
	c.schemaReady = true
	return true
}

func (c *WeaviateClient) doJSON(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.OpenAIKey != "" {
		req.Header.Set("X-OpenAI-Api-Key", c.OpenAIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// extractDocumentText pulls indexable text out of an uploaded document.
// Plain-text documents pass through whole; binary formats like PDF fall back
// to harvesting printable runs, which is enough for the vectorizer to key on
// part names, materials and dimensions.
func extractDocumentText(document []byte) string {
	if len(document) == 0 {
		return ""
	}
	const minRun = 4
	const maxText = 100000

	var b strings.Builder
	var run []rune
	flush := func() {
		if len(run) >= minRun {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			for _, r := range run {
				b.WriteRune(r)
			}
		}
		run = run[:0]
	}

	for i := 0; i < len(document) && b.Len() < maxText; {
		r, size := utf8.DecodeRune(document[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			flush()
			continue
		}
		if unicode.IsPrint(r) {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()
	return strings.TrimSpace(b.String())
}

package dto

import (
	"time"
)

// CreateArticleRequest represents the request to create a new article
type CreateArticleRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=10000"`
	Comment     *string  `json:"comment,omitempty" validate:"omitempty,max=10000"`
	UnitWeight  *float64 `json:"unit_weight,omitempty" validate:"omitempty,gt=0"`
}

// UpdateArticleRequest represents a partial update of an existing article
type UpdateArticleRequest struct {
	ID          uint     `json:"-"`
	Name        *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=10000"`
	Comment     *string  `json:"comment,omitempty" validate:"omitempty,max=10000"`
	UnitWeight  *float64 `json:"unit_weight,omitempty" validate:"omitempty,gt=0"`
}

// ArticleDTO represents article data for API responses
type ArticleDTO struct {
	ID                    uint       `json:"id"`
	UUID                  string     `json:"uuid"`
	Name                  string     `json:"name"`
	Description           *string    `json:"description,omitempty"`
	Comment               *string    `json:"comment,omitempty"`
	UnitWeight            *float64   `json:"unit_weight,omitempty"`
	SpecFilename          *string    `json:"spec_filename,omitempty"`
	DrawingFilename       *string    `json:"drawing_filename,omitempty"`
	ProcessingStatus      string     `json:"processing_status"`
	ProcessingErrorKind   *string    `json:"processing_error_kind,omitempty"`
	ProcessingError       *string    `json:"processing_error,omitempty"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	SimilarArticles       []int64    `json:"similar_articles,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// CreateArticleResponse represents the response after creating an article
type CreateArticleResponse struct {
	Message string     `json:"message"`
	Article ArticleDTO `json:"article"`
}

// ListArticlesRequest represents a paginated list request for articles
type ListArticlesRequest struct {
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// ListArticlesResponse represents a paginated list of articles
type ListArticlesResponse struct {
	Message    string         `json:"message"`
	Items      []ArticleDTO   `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// ArticleStatusResponse is a lightweight response for polling background processing
type ArticleStatusResponse struct {
	ArticleID             uint       `json:"article_id"`
	ProcessingStatus      string     `json:"processing_status"`
	ProcessingErrorKind   *string    `json:"processing_error_kind,omitempty"`
	ProcessingError       *string    `json:"processing_error,omitempty"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	SimilarArticles       []int64    `json:"similar_articles,omitempty"`
}

// AnalyzeArticleRequest carries the multipart analyze payload after parsing.
// Handlers populate it from form fields and uploaded files.
type AnalyzeArticleRequest struct {
	ArticleName     string   `json:"article_name" validate:"required,max=255"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,max=10000"`
	Comment         *string  `json:"comment,omitempty" validate:"omitempty,max=10000"`
	UnitWeight      *float64 `json:"unit_weight,omitempty" validate:"omitempty,gt=0"`
	SpecFile        []byte   `json:"-" validate:"required"`
	SpecFilename    string   `json:"spec_filename,omitempty"`
	DrawingFile     []byte   `json:"-"`
	DrawingFilename string   `json:"drawing_filename,omitempty"`
}

// AnalyzeArticleResponse acknowledges a scheduled processing run. Created
// distinguishes a freshly registered article from a re-analyzed one.
type AnalyzeArticleResponse struct {
	Message          string `json:"message"`
	ArticleID        uint   `json:"article_id"`
	ProcessingStatus string `json:"processing_status"`
	Created          bool   `json:"created"`
}

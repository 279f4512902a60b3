package dto

// CostEstimateRequest represents the request for a free-text cost estimate
type CostEstimateRequest struct {
	ArticleID uint   `json:"article_id" validate:"required"`
	Context   string `json:"context,omitempty" validate:"omitempty,max=10000"`
}

// CostEstimateResponse carries the model's free-text estimate together with
// the prompt it was given
type CostEstimateResponse struct {
	ArticleID   uint    `json:"article_id"`
	Prompt      string  `json:"prompt"`
	RawResponse *string `json:"raw_response,omitempty"`
}

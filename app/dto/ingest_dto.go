package dto

// UploadReportResponse summarizes the outcome of a bulk ingestion run.
// Errors lists inputs that could not be processed at all, such as a
// workbook sheet with no usable price column.
type UploadReportResponse struct {
	Message string   `json:"message"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

package models

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     Error  `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type PaginationInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// ImportRunResponse wraps a single run
type ImportRunResponse struct {
	Success bool       `json:"success"`
	Data    *ImportRun `json:"data"`
	Message *string    `json:"message,omitempty"`
}

// ImportRunListResponse wraps a page of runs
type ImportRunListResponse struct {
	Success    bool            `json:"success"`
	Data       []ImportRun     `json:"data"`
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// RowErrorListResponse wraps the row errors of one attempt
type RowErrorListResponse struct {
	Success bool       `json:"success"`
	Attempt int        `json:"attempt"`
	Data    []RowError `json:"data"`
}

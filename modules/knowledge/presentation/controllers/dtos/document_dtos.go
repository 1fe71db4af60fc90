package dtos

import "time"

const (
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeDocumentNotFound = "DOCUMENT_NOT_FOUND"
	ErrorCodeInternalServer   = "INTERNAL_SERVER_ERROR"
)

type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
}

type DocumentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

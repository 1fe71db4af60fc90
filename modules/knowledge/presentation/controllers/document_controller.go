package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/presentation/controllers/dtos"
	knowledgeServices "github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/composables"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type DocumentControllerConfig struct {
	BasePath    string
	App         application.Application
	Middlewares []mux.MiddlewareFunc
}

type DocumentController struct {
	basePath    string
	app         application.Application
	middlewares []mux.MiddlewareFunc
}

func NewDocumentController(cfg DocumentControllerConfig) application.Controller {
	return &DocumentController{
		basePath:    cfg.BasePath,
		app:         cfg.App,
		middlewares: cfg.Middlewares,
	}
}

func (c *DocumentController) Key() string {
	return "KnowledgeDocumentController"
}

func (c *DocumentController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	for _, mw := range c.middlewares {
		router.Use(mw)
	}

	router.HandleFunc("", c.createDocument).Methods(http.MethodPost)
	router.HandleFunc("", c.listDocuments).Methods(http.MethodGet)
	router.HandleFunc("/{document_id}", c.getDocument).Methods(http.MethodGet)
	router.HandleFunc("/{document_id}", c.deleteDocument).Methods(http.MethodDelete)
	router.HandleFunc("/{document_id}/process", c.processDocument).Methods(http.MethodPost)
}

func (c *DocumentController) documentService() *knowledgeServices.DocumentService {
	return c.app.Service(knowledgeServices.DocumentService{}).(*knowledgeServices.DocumentService)
}

func (c *DocumentController) createDocument(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	var req dtos.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", dtos.ErrorCodeInvalidRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), dtos.ErrorCodeInvalidRequest)
		return
	}

	doc, err := c.documentService().Create(r.Context(), knowledgeServices.CreateDocumentDTO{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create document")
		if errors.Is(err, document.ErrEmptyContent) {
			writeJSONError(w, http.StatusBadRequest, "document content is empty", dtos.ErrorCodeInvalidRequest)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to create document", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSONStatus(w, http.StatusCreated, toDocumentResponse(doc))
}

func (c *DocumentController) listDocuments(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	docs, err := c.documentService().List(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to list documents")
		writeJSONError(w, http.StatusInternalServerError, "failed to list documents", dtos.ErrorCodeInternalServer)
		return
	}

	resp := dtos.DocumentListResponse{Documents: make([]dtos.DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	writeJSON(w, resp)
}

func (c *DocumentController) getDocument(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	documentID, err := uuid.Parse(mux.Vars(r)["document_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid document ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	doc, err := c.documentService().GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, document.ErrDocumentNotFound) {
			writeJSONError(w, http.StatusNotFound, "document not found", dtos.ErrorCodeDocumentNotFound)
			return
		}
		logger.WithError(err).Error("failed to get document")
		writeJSONError(w, http.StatusInternalServerError, "failed to get document", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSON(w, toDocumentResponse(doc))
}

func (c *DocumentController) deleteDocument(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	documentID, err := uuid.Parse(mux.Vars(r)["document_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid document ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	if err := c.documentService().Delete(r.Context(), documentID); err != nil {
		logger.WithError(err).Error("failed to delete document")
		writeJSONError(w, http.StatusInternalServerError, "failed to delete document", dtos.ErrorCodeInternalServer)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *DocumentController) processDocument(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	documentID, err := uuid.Parse(mux.Vars(r)["document_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid document ID", dtos.ErrorCodeInvalidRequest)
		return
	}
	regenerate := r.URL.Query().Get("regenerate") == "true"

	if err := c.documentService().Process(r.Context(), documentID, regenerate); err != nil {
		switch {
		case errors.Is(err, document.ErrDocumentNotFound):
			writeJSONError(w, http.StatusNotFound, "document not found", dtos.ErrorCodeDocumentNotFound)
		case errors.Is(err, document.ErrEmbeddingExists):
			writeJSONError(w, http.StatusConflict, err.Error(), document.ErrEmbeddingExists.Code)
		case errors.Is(err, document.ErrDimensionMismatch):
			writeJSONError(w, http.StatusConflict, err.Error(), document.ErrDimensionMismatch.Code)
		default:
			logger.WithError(err).Error("failed to process document")
			writeJSONError(w, http.StatusInternalServerError, "failed to process document", dtos.ErrorCodeInternalServer)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func toDocumentResponse(doc document.Document) dtos.DocumentResponse {
	return dtos.DocumentResponse{
		ID:        doc.ID().String(),
		Title:     doc.Title(),
		Status:    string(doc.Status()),
		CreatedAt: doc.CreatedAt(),
		UpdatedAt: doc.UpdatedAt(),
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONStatus(w, http.StatusOK, payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	writeJSONStatus(w, status, dtos.ErrorResponse{Error: message, Code: code})
}

package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/platform"
	"github.com/talkbase/talkbase/modules/messaging/presentation/controllers/dtos"
	messagingServices "github.com/talkbase/talkbase/modules/messaging/services"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/composables"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ConversationControllerConfig struct {
	BasePath    string
	App         application.Application
	Middlewares []mux.MiddlewareFunc
}

type ConversationController struct {
	basePath    string
	app         application.Application
	middlewares []mux.MiddlewareFunc
}

func NewConversationController(cfg ConversationControllerConfig) application.Controller {
	return &ConversationController{
		basePath:    cfg.BasePath,
		app:         cfg.App,
		middlewares: cfg.Middlewares,
	}
}

func (c *ConversationController) Key() string {
	return "MessagingConversationController"
}

func (c *ConversationController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	for _, mw := range c.middlewares {
		router.Use(mw)
	}

	router.HandleFunc("", c.createConversation).Methods(http.MethodPost)
	router.HandleFunc("", c.listConversations).Methods(http.MethodGet)
	router.HandleFunc("/{conversation_id}", c.getConversation).Methods(http.MethodGet)
	router.HandleFunc("/{conversation_id}/messages", c.listMessages).Methods(http.MethodGet)
	router.HandleFunc("/{conversation_id}/messages", c.postMessage).Methods(http.MethodPost)
	router.HandleFunc("/{conversation_id}/handover", c.executeHandover).Methods(http.MethodPost)
	router.HandleFunc("/{conversation_id}/resolve", c.resolveConversation).Methods(http.MethodPost)
}

func (c *ConversationController) conversationService() *messagingServices.ConversationService {
	return c.app.Service(messagingServices.ConversationService{}).(*messagingServices.ConversationService)
}

func (c *ConversationController) orchestratorService() *messagingServices.OrchestratorService {
	return c.app.Service(messagingServices.OrchestratorService{}).(*messagingServices.OrchestratorService)
}

func (c *ConversationController) handoverService() *messagingServices.HandoverService {
	return c.app.Service(messagingServices.HandoverService{}).(*messagingServices.HandoverService)
}

func (c *ConversationController) createConversation(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	var req dtos.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", dtos.ErrorCodeInvalidRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), dtos.ErrorCodeInvalidRequest)
		return
	}

	conv, err := c.conversationService().Create(r.Context(), req.CustomerExternalID, req.Platform)
	if err != nil {
		logger.WithError(err).Error("failed to create conversation")
		writeJSONError(w, http.StatusInternalServerError, "failed to create conversation", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSONStatus(w, http.StatusCreated, toConversationResponse(conv))
}

func (c *ConversationController) listConversations(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	convs, err := c.conversationService().List(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to list conversations")
		writeJSONError(w, http.StatusInternalServerError, "failed to list conversations", dtos.ErrorCodeInternalServer)
		return
	}

	resp := dtos.ConversationListResponse{Conversations: make([]dtos.ConversationResponse, 0, len(convs))}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, toConversationResponse(conv))
	}
	writeJSON(w, resp)
}

func (c *ConversationController) getConversation(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	conversationID, err := uuid.Parse(mux.Vars(r)["conversation_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	conv, err := c.conversationService().GetByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found", dtos.ErrorCodeConversationNotFound)
			return
		}
		logger.WithError(err).Error("failed to get conversation")
		writeJSONError(w, http.StatusInternalServerError, "failed to get conversation", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSON(w, toConversationResponse(conv))
}

func (c *ConversationController) listMessages(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	conversationID, err := uuid.Parse(mux.Vars(r)["conversation_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	msgs, err := c.conversationService().Messages(r.Context(), conversationID, 50)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found", dtos.ErrorCodeConversationNotFound)
			return
		}
		logger.WithError(err).Error("failed to list messages")
		writeJSONError(w, http.StatusInternalServerError, "failed to list messages", dtos.ErrorCodeInternalServer)
		return
	}

	resp := dtos.MessageListResponse{Messages: make([]dtos.MessageResponse, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(msg))
	}
	writeJSON(w, resp)
}

func (c *ConversationController) postMessage(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	conversationID, err := uuid.Parse(mux.Vars(r)["conversation_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	var req dtos.InboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", dtos.ErrorCodeInvalidRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), dtos.ErrorCodeInvalidRequest)
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = platform.Dashboard
	}
	result, err := c.orchestratorService().ProcessInbound(r.Context(), messagingServices.InboundMessage{
		ConversationID:    conversationID,
		Text:              req.Text,
		SenderExternalID:  req.SenderExternalID,
		PlatformMessageID: req.PlatformMessageID,
		Timestamp:         req.Timestamp,
		Origin:            origin,
	})
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrConversationNotFound):
			writeJSONError(w, http.StatusNotFound, "conversation not found", dtos.ErrorCodeConversationNotFound)
		case errors.Is(err, conversation.ErrDuplicateMessage):
			writeJSONError(w, http.StatusConflict, err.Error(), dtos.ErrorCodeDuplicateMessage)
		case errors.Is(err, messagingServices.ErrGenerationFailed):
			logger.WithError(err).Error("generation failed")
			writeJSONError(w, http.StatusBadGateway, "AI response generation failed", dtos.ErrorCodeGenerationFailed)
		default:
			logger.WithError(err).Error("failed to process message")
			writeJSONError(w, http.StatusInternalServerError, "failed to process message", dtos.ErrorCodeInternalServer)
		}
		return
	}

	resp := dtos.OrchestrationResponse{
		Conversation:   toConversationResponse(result.Conversation),
		Message:        toMessageResponse(result.InboundMessage),
		HandedOver:     result.HandedOver,
		HandoverReason: result.HandoverReason,
		FromCache:      result.FromCache,
	}
	if result.AIMessage != nil {
		aiResp := toMessageResponse(result.AIMessage)
		resp.AIMessage = &aiResp
	}
	if result.Retrieval != nil {
		resp.ChunksUsed = len(result.Retrieval.Matches)
	}
	writeJSONStatus(w, http.StatusCreated, resp)
}

func (c *ConversationController) executeHandover(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	conversationID, err := uuid.Parse(mux.Vars(r)["conversation_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	var req dtos.HandoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", dtos.ErrorCodeInvalidRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), dtos.ErrorCodeInvalidRequest)
		return
	}

	agentID := uuid.Nil
	if req.AgentID != "" {
		agentID, _ = uuid.Parse(req.AgentID)
	}
	conv, err := c.handoverService().Execute(r.Context(), conversationID, agentID, uuid.Nil, req.Reason)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found", dtos.ErrorCodeConversationNotFound)
			return
		}
		logger.WithError(err).Error("failed to execute handover")
		writeJSONError(w, http.StatusInternalServerError, "failed to execute handover", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSON(w, toConversationResponse(conv))
}

func (c *ConversationController) resolveConversation(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	conversationID, err := uuid.Parse(mux.Vars(r)["conversation_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation ID", dtos.ErrorCodeInvalidRequest)
		return
	}

	conv, err := c.conversationService().Resolve(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found", dtos.ErrorCodeConversationNotFound)
			return
		}
		logger.WithError(err).Error("failed to resolve conversation")
		writeJSONError(w, http.StatusInternalServerError, "failed to resolve conversation", dtos.ErrorCodeInternalServer)
		return
	}
	writeJSON(w, toConversationResponse(conv))
}

func toConversationResponse(conv conversation.Conversation) dtos.ConversationResponse {
	resp := dtos.ConversationResponse{
		ID:                 conv.ID().String(),
		CustomerExternalID: conv.CustomerExternalID(),
		Platform:           conv.Platform(),
		HandlerType:        string(conv.HandlerType()),
		AIEnabled:          conv.AIEnabled(),
		Status:             string(conv.Status()),
		Priority:           string(conv.Priority()),
		SentimentScore:     conv.SentimentScore(),
		CreatedAt:          conv.CreatedAt(),
		UpdatedAt:          conv.UpdatedAt(),
	}
	if conv.AssignedAgentID() != uuid.Nil {
		resp.AssignedAgentID = conv.AssignedAgentID().String()
	}
	if !conv.LastMessageAt().IsZero() {
		at := conv.LastMessageAt()
		resp.LastMessageAt = &at
	}
	return resp
}

func toMessageResponse(msg conversation.Message) dtos.MessageResponse {
	annotations := msg.Annotations()
	return dtos.MessageResponse{
		ID:             msg.ID().String(),
		ConversationID: msg.ConversationID().String(),
		Direction:      string(msg.Direction()),
		Sender:         string(msg.Sender()),
		Content:        msg.Content(),
		Intent:         annotations.Intent,
		Sentiment:      annotations.Sentiment,
		Confidence:     annotations.Confidence,
		DeliveryStatus: string(msg.DeliveryStatus()),
		CreatedAt:      msg.CreatedAt(),
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

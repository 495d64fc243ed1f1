package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"tradeacademy.io/support-desk/internal/auth"
	"tradeacademy.io/support-desk/internal/core"
	"tradeacademy.io/support-desk/internal/store"
)

type APIHandler struct {
	support   *core.SupportService
	knowledge *core.KnowledgeService
	chatbot   *core.Chatbot
}

func NewAPIHandler(support *core.SupportService, knowledge *core.KnowledgeService, chatbot *core.Chatbot) *APIHandler {
	return &APIHandler{support: support, knowledge: knowledge, chatbot: chatbot}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

// Conversations

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.support.ActiveConversations(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *APIHandler) StartChatHandler(w http.ResponseWriter, r *http.Request) {
	var req StartChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := h.support.StartConversation(r.Context(), req.CustomerID, req.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Customer not found", "")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) TransferChatHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := h.support.TransferConversation(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	h.writeConversation(w, r, conv, err)
}

func (h *APIHandler) ChatStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, err := h.support.SetConversationStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	h.writeConversation(w, r, conv, err)
}

func (h *APIHandler) writeConversation(w http.ResponseWriter, r *http.Request, conv *store.Conversation, err error) {
	if err != nil {
		serverError(w, r, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found", "")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Messages

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg := &store.Message{
		ConversationID: req.ConversationID,
		SenderType:     req.SenderType,
		SenderID:       req.SenderID,
		Message:        req.Message,
	}
	if err := h.support.PostMessage(r.Context(), msg); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.support.History(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// Tickets

func (h *APIHandler) CreateTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket := &store.Ticket{
		CustomerID:  req.CustomerID,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
	}
	if err := h.support.OpenTicket(r.Context(), ticket); err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *APIHandler) ListTicketsHandler(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.support.ListTickets(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// UpdateTicketHandler answers a JSON null when the id matches nothing.
func (h *APIHandler) UpdateTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, err := h.support.UpdateTicketStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// Customers

func (h *APIHandler) ListCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := h.support.ListCustomers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *APIHandler) CustomerStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.support.CustomerStats(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := h.support.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serverError(w, r, err)
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "Customer not found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (h *APIHandler) CreateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	customer := &store.Customer{
		UniqueID:    strings.TrimSpace(req.UniqueID),
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       req.Phone,
		AccountType: req.AccountType,
	}
	err := h.support.CreateCustomer(r.Context(), customer)
	if errors.Is(err, store.ErrDuplicateEmail) || errors.Is(err, store.ErrDuplicateUniqueID) {
		writeError(w, http.StatusBadRequest, "Customer already exists", "")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Customer created successfully"})
}

func (h *APIHandler) UpdateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.support.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), store.CustomerUpdate{
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       req.Phone,
		AccountType: req.AccountType,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "Customer already exists", "")
	case err != nil:
		serverError(w, r, err)
	case !updated:
		writeError(w, http.StatusNotFound, "Customer not found", "")
	default:
		writeJSON(w, http.StatusOK, MessageResponse{Msg: "Customer updated successfully"})
	}
}

// DeleteCustomerHandler matches the external unique id, not the internal id.
func (h *APIHandler) DeleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.support.DeleteCustomer(r.Context(), chi.URLParam(r, "uniqueID"))
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Customer not found", "")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Customer removed"})
}

func (h *APIHandler) AddScreenshotHandler(w http.ResponseWriter, r *http.Request) {
	var req ScreenshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sc := &store.Screenshot{CustomerID: chi.URLParam(r, "id"), URL: req.URL, Description: req.Description}
	if err := h.support.AddScreenshot(r.Context(), sc); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (h *APIHandler) AddQuestionnaireHandler(w http.ResponseWriter, r *http.Request) {
	var req QuestionnaireRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q := &store.QuestionnaireResponse{CustomerID: chi.URLParam(r, "id"), Questionnaire: req.Questionnaire, Answers: req.Answers}
	if err := h.support.AddQuestionnaireResponse(r.Context(), q); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *APIHandler) SaveRiskPlanHandler(w http.ResponseWriter, r *http.Request) {
	var req RiskPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan := &store.RiskManagementPlan{
		CustomerID:      chi.URLParam(r, "id"),
		MaxRiskPerTrade: req.MaxRiskPerTrade,
		MaxDailyLoss:    req.MaxDailyLoss,
		RiskRewardRatio: req.RiskRewardRatio,
		Notes:           req.Notes,
	}
	if err := h.support.SaveRiskPlan(r.Context(), plan); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *APIHandler) SaveDashboardHandler(w http.ResponseWriter, r *http.Request) {
	var req DashboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dash := &store.DashboardData{CustomerID: chi.URLParam(r, "id"), Fields: req.Fields}
	if err := h.support.SaveDashboardData(r.Context(), dash); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// Activity, signals, knowledge base

func (h *APIHandler) LogActivityHandler(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	activity := &store.Activity{
		CustomerID: req.CustomerID,
		Type:       req.Type,
		Details:    req.Details,
		IPAddress:  clientIP(r),
	}
	if err := h.support.LogActivity(r.Context(), activity); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

func (h *APIHandler) BroadcastSignalHandler(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sig := &core.Signal{
		Pair:       strings.ToUpper(req.Pair),
		Direction:  req.Direction,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Note:       req.Note,
	}
	if agent, ok := auth.AgentFromContext(r.Context()); ok {
		sig.IssuedBy = agent.ID
	}
	if err := h.support.BroadcastSignal(r.Context(), sig); err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Signal broadcasted successfully"})
}

func (h *APIHandler) SearchKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required", "")
		return
	}
	results, err := h.knowledge.Search(r.Context(), query, core.DefaultSearchLimit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *APIHandler) ChatbotHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatbotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := h.chatbot.Reply(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// writeServiceError maps service sentinels to 400/404 and anything else to 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Customer not found", "")
	default:
		serverError(w, r, err)
	}
}

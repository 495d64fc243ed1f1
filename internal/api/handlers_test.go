package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeacademy.io/support-desk/internal/auth"
	"tradeacademy.io/support-desk/internal/config"
	"tradeacademy.io/support-desk/internal/core"
	"tradeacademy.io/support-desk/internal/relay"
	"tradeacademy.io/support-desk/internal/store"
)

const testKnowledge = `| title | keywords | answer |
|---|---|---|
| Withdrawals | withdraw, payout | Withdrawals are processed within 2 business days. |
| Deposit fees | deposit, fee | We charge no deposit fees. |
`

type sentEvent struct {
	target  string
	event   string
	payload any
}

type recordingRegistry struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingRegistry) Join(string, string)  {}
func (r *recordingRegistry) Leave(string, string) {}

func (r *recordingRegistry) Broadcast(target, event string, payload any, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{target, event, payload})
	return nil
}

func (r *recordingRegistry) sent() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEvent(nil), r.events...)
}

type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

type testAPI struct {
	handler  http.Handler
	registry *recordingRegistry
	token    string
}

func newTestAPI(t *testing.T, opts RouterOptions) *testAPI {
	t.Helper()
	prev := config.AppConfig.JWTSecret
	config.AppConfig.JWTSecret = "api-test-secret"
	t.Cleanup(func() { config.AppConfig.JWTSecret = prev })

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(t.TempDir(), "knowledge.md")
	require.NoError(t, os.WriteFile(path, []byte(testKnowledge), 0o644))
	knowledge := core.NewKnowledgeService(st)
	_, err = knowledge.IngestFile(context.Background(), path)
	require.NoError(t, err)

	reg := &recordingRegistry{}
	h := NewAPIHandler(core.NewSupportService(st, reg), knowledge, core.NewChatbot(knowledge, st, reg, nil))

	token, err := auth.GenerateJWT(auth.Agent{ID: "agent-1", Name: "Alex"}, time.Hour)
	require.NoError(t, err)

	return &testAPI{handler: NewRouter(h, opts), registry: reg, token: token}
}

// do sends body as JSON unless it is already a string. An empty token
// sends the request unauthenticated.
func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.HeaderToken, token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) authed(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, method, path, body, a.token)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) createCustomer(t *testing.T, name, email string) store.Customer {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/customers", CustomerRequest{Name: name, Email: email}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := a.authed(t, http.MethodGet, "/api/customers?search="+email, nil)
	require.Equal(t, http.StatusOK, list.Code)
	body := decode[struct{ Customers []store.Customer }](t, list)
	require.Len(t, body.Customers, 1)
	return body.Customers[0]
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAuthMiddleware(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.do(t, http.MethodGet, "/api/tickets", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "NO_TOKEN", decode[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/tickets", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrorResponse{Msg: "Token is not valid", Code: "INVALID_TOKEN"}, decode[ErrorResponse](t, rec))

	rec = api.do(t, http.MethodGet, "/api/tickets", nil, api.token)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+api.token)
	bearer := httptest.NewRecorder()
	api.handler.ServeHTTP(bearer, req)
	assert.Equal(t, http.StatusOK, bearer.Code)

	query := httptest.NewRecorder()
	api.handler.ServeHTTP(query, httptest.NewRequest(http.MethodGet, "/api/tickets?token="+api.token, nil))
	assert.Equal(t, http.StatusOK, query.Code)
}

func TestCreateCustomerRejectsDuplicateEmail(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	jane := `{"name":"Jane Doe","email":"jane@x.com","phone":"555","account_type":"standard"}`

	rec := api.do(t, http.MethodPost, "/api/customers", jane, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Customer created successfully", decode[MessageResponse](t, rec).Msg)

	rec = api.do(t, http.MethodPost, "/api/customers", jane, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Customer already exists", decode[ErrorResponse](t, rec).Msg)

	rec = api.do(t, http.MethodPost, "/api/customers", CustomerRequest{Name: "Jane Again", Email: "JANE@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := api.authed(t, http.MethodGet, "/api/customers?search=jane@x.com", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[struct{ Customers []store.Customer }](t, list).Customers, 1)
}

func TestCreateCustomerRejectsDuplicateUniqueID(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.do(t, http.MethodPost, "/api/customers", CustomerRequest{UniqueID: "CUST-1", Name: "A", Email: "a@x.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/customers", CustomerRequest{UniqueID: "CUST-1", Name: "B", Email: "b@x.com"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Customer already exists", decode[ErrorResponse](t, rec).Msg)

	list := api.authed(t, http.MethodGet, "/api/customers?search=b@x.com", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[struct{ Customers []store.Customer }](t, list).Customers)
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		wantMsg string
	}{
		{"missing fields", http.MethodPost, "/api/customers", `{"phone":"123"}`, "email, name required"},
		{"bad email", http.MethodPost, "/api/customers", CustomerRequest{Name: "X", Email: "not-an-email"}, "email is not a valid address"},
		{"unknown field", http.MethodPost, "/api/customers", `{"name":"X","email":"x@example.com","admin":true}`, "Invalid request body"},
		{"empty body", http.MethodPost, "/api/tickets", nil, "Request body is required"},
		{"trailing data", http.MethodPost, "/api/chatbot", `{"message":"hi"}{}`, "single JSON object"},
		{"ticket priority", http.MethodPost, "/api/tickets", CreateTicketRequest{CustomerID: "c", Subject: "s", Priority: "asap"}, "priority must be one of"},
		{"ticket status", http.MethodPut, "/api/tickets/t1", UpdateTicketRequest{Status: "done"}, "status must be one of"},
		{"sender type", http.MethodPost, "/api/messages", CreateMessageRequest{ConversationID: "c", SenderType: "bot", SenderID: "b", Message: "m"}, "sender_type must be"},
		{"signal direction", http.MethodPost, "/api/signals", SignalRequest{Pair: "EURUSD", Direction: "hold", EntryPrice: 1}, "direction must be buy or sell"},
		{"screenshot url", http.MethodPost, "/api/customers/c1/screenshots", ScreenshotRequest{URL: "/relative.png"}, "absolute URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.authed(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[ErrorResponse](t, rec).Msg, tt.wantMsg)
		})
	}
}

func TestCustomerLifecycle(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})
	c := api.createCustomer(t, "Erin", "erin@example.com")
	api.createCustomer(t, "Finn", "finn@example.com")

	rec := api.authed(t, http.MethodGet, "/api/customers/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct{ Customer store.CustomerDetail }](t, rec)
	assert.Equal(t, "Erin", detail.Customer.Name)
	assert.Equal(t, store.StatusActive, detail.Customer.Status)

	rec = api.authed(t, http.MethodPut, "/api/customers/"+c.ID, UpdateCustomerRequest{Name: "Erin B", Email: "erin.b@example.com", AccountType: "pro"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Customer updated successfully", decode[MessageResponse](t, rec).Msg)

	rec = api.authed(t, http.MethodPut, "/api/customers/"+c.ID, UpdateCustomerRequest{Name: "Erin B", Email: "finn@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.authed(t, http.MethodPut, "/api/customers/missing", UpdateCustomerRequest{Name: "N", Email: "n@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.authed(t, http.MethodGet, "/api/customers/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Customer not found", decode[ErrorResponse](t, rec).Msg)

	rec = api.authed(t, http.MethodGet, "/api/customers/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.CustomerStats{TotalCustomers: 2, NewCustomers: 2}, decode[core.CustomerStats](t, rec))

	rec = api.authed(t, http.MethodDelete, "/api/customers/"+c.UniqueID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Customer removed", decode[MessageResponse](t, rec).Msg)

	rec = api.authed(t, http.MethodDelete, "/api/customers/"+c.UniqueID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomerRecords(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})
	c := api.createCustomer(t, "Gale", "gale@example.com")
	base := "/api/customers/" + c.ID

	rec := api.authed(t, http.MethodPost, base+"/screenshots", ScreenshotRequest{URL: "https://cdn.example.com/chart.png", Description: "EURUSD"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.authed(t, http.MethodPost, base+"/questionnaire-responses", QuestionnaireRequest{Questionnaire: "onboarding", Answers: map[string]string{"experience": "2y"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.authed(t, http.MethodPut, base+"/risk-plan", RiskPlanRequest{MaxRiskPerTrade: 1, MaxDailyLoss: 3, RiskRewardRatio: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.authed(t, http.MethodPut, base+"/dashboard", map[string]any{"fields": map[string]any{"layout": `{"cols":2}`}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decode[store.DashboardData](t, rec)
	assert.Equal(t, map[string]any{"cols": float64(2)}, dash.Fields["layout"])

	rec = api.authed(t, http.MethodPost, "/api/activity", ActivityRequest{CustomerID: c.ID, Type: "login"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "192.0.2.1", decode[store.Activity](t, rec).IPAddress)

	rec = api.authed(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct{ Customer store.CustomerDetail }](t, rec).Customer
	assert.Len(t, detail.Screenshots, 1)
	assert.Len(t, detail.QuestionnaireResponses, 1)
	assert.Len(t, detail.Activities, 1)
	require.NotNil(t, detail.RiskManagementPlan)
	assert.Equal(t, 2.0, detail.RiskManagementPlan.RiskRewardRatio)
	require.NotNil(t, detail.LastActive)

	rec = api.authed(t, http.MethodPost, "/api/customers/missing/screenshots", ScreenshotRequest{URL: "https://cdn.example.com/x.png"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.authed(t, http.MethodPost, "/api/activity", ActivityRequest{CustomerID: "missing", Type: "login"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketEndpoints(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.authed(t, http.MethodPost, "/api/tickets", CreateTicketRequest{CustomerID: "c1", Subject: "Cannot log in"})
	require.Equal(t, http.StatusCreated, rec.Code)
	ticket := decode[store.Ticket](t, rec)
	assert.Equal(t, "open", ticket.Status)
	assert.Equal(t, "normal", ticket.Priority)

	rec = api.authed(t, http.MethodPut, "/api/tickets/"+ticket.ID, UpdateTicketRequest{Status: "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "resolved", decode[store.Ticket](t, rec).Status)

	rec = api.authed(t, http.MethodPut, "/api/tickets/does-not-exist", UpdateTicketRequest{Status: "closed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = api.authed(t, http.MethodGet, "/api/tickets?status=resolved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Ticket](t, rec), 1)

	rec = api.authed(t, http.MethodGet, "/api/tickets?status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]store.Ticket](t, rec))

	rec = api.authed(t, http.MethodGet, "/api/tickets?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAndMessageEndpoints(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})
	c := api.createCustomer(t, "Hana", "hana@example.com")

	rec := api.authed(t, http.MethodPost, "/api/chats", StartChatRequest{CustomerID: "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Customer not found", decode[ErrorResponse](t, rec).Msg)

	rec = api.authed(t, http.MethodPost, "/api/chats", StartChatRequest{CustomerID: c.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[store.Conversation](t, rec)
	assert.Equal(t, store.StatusActive, conv.Status)
	assert.Nil(t, conv.AgentID)

	rec = api.authed(t, http.MethodGet, "/api/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chats := decode[[]store.ConversationWithCustomer](t, rec)
	require.Len(t, chats, 1)
	require.NotNil(t, chats[0].Customer)
	assert.Equal(t, "Hana", chats[0].Customer.Name)

	rec = api.authed(t, http.MethodPut, "/api/chats/"+conv.ID+"/transfer", TransferChatRequest{AgentID: "agent-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	transferred := decode[store.Conversation](t, rec)
	require.NotNil(t, transferred.AgentID)
	assert.Equal(t, "agent-2", *transferred.AgentID)

	rec = api.authed(t, http.MethodPut, "/api/chats/missing/transfer", TransferChatRequest{AgentID: "agent-2"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decode[ErrorResponse](t, rec).Msg)

	for _, text := range []string{"Hello", "How can I help?"} {
		rec = api.authed(t, http.MethodPost, "/api/messages", CreateMessageRequest{ConversationID: conv.ID, SenderType: store.SenderAgent, SenderID: "agent-2", Message: text})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = api.authed(t, http.MethodGet, "/api/messages/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[[]store.Message](t, rec)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello", messages[0].Message)
	assert.Equal(t, "How can I help?", messages[1].Message)

	rec = api.authed(t, http.MethodPut, "/api/chats/"+conv.ID+"/status", StatusRequest{Status: "Closed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.authed(t, http.MethodGet, "/api/chats", nil)
	assert.Empty(t, decode[[]store.ConversationWithCustomer](t, rec))
}

func TestBroadcastSignal(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.authed(t, http.MethodPost, "/api/signals", SignalRequest{Pair: "eurusd", Direction: "buy", EntryPrice: 1.0842, StopLoss: 1.08})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Signal broadcasted successfully", decode[map[string]string](t, rec)["message"])

	sent := api.registry.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, relay.Everyone, sent[0].target)
	assert.Equal(t, relay.EventNewSignal, sent[0].event)
	sig, ok := sent[0].payload.(*core.Signal)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", sig.Pair)
	assert.Equal(t, "agent-1", sig.IssuedBy)
	assert.NotEmpty(t, sig.ID)
}

func TestKnowledgeSearchEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.authed(t, http.MethodGet, "/api/knowledge-base/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.authed(t, http.MethodGet, "/api/knowledge-base/search?q=how+do+I+withdraw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct{ Results []core.SearchResult }](t, rec)
	require.NotEmpty(t, body.Results)
	assert.Equal(t, "Withdrawals", body.Results[0].Title)
}

func TestChatbotEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.do(t, http.MethodPost, "/api/chatbot", ChatbotRequest{Message: "Is there a deposit fee?"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[core.ChatbotReply](t, rec)
	assert.Equal(t, core.SourceKnowledgeBase, reply.Source)
	assert.Equal(t, "We charge no deposit fees.", reply.Reply)
	assert.Nil(t, reply.Message)
}

func TestChatbotOnlyWritesToActiveConversations(t *testing.T) {
	api := newTestAPI(t, RouterOptions{})

	rec := api.do(t, http.MethodPost, "/api/chatbot", ChatbotRequest{Message: "withdraw", ConversationID: "someone-elses-chat"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[core.ChatbotReply](t, rec).Message)

	rec = api.authed(t, http.MethodGet, "/api/messages/someone-elses-chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]store.Message](t, rec))
	assert.Empty(t, api.registry.sent())

	c := api.createCustomer(t, "Lee", "lee@example.com")
	rec = api.authed(t, http.MethodPost, "/api/chats", StartChatRequest{CustomerID: c.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	conv := decode[store.Conversation](t, rec)

	rec = api.do(t, http.MethodPost, "/api/chatbot", ChatbotRequest{Message: "withdraw", ConversationID: conv.ID}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[core.ChatbotReply](t, rec)
	require.NotNil(t, reply.Message)
	assert.Equal(t, conv.ID, reply.Message.ConversationID)

	sent := api.registry.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, conv.ID, sent[0].target)
	assert.Equal(t, relay.EventReceiveMessage, sent[0].event)
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	lim := &countingLimiter{}
	api := newTestAPI(t, RouterOptions{Limiter: lim, SignupLimit: 1})

	rec := api.do(t, http.MethodPost, "/api/customers", CustomerRequest{Name: "Ira", Email: "ira@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/customers", CustomerRequest{Name: "Jo", Email: "jo@example.com"}, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Buckets are independent.
	rec = api.do(t, http.MethodPost, "/api/chatbot", ChatbotRequest{Message: "withdraw"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterFailureLetsRequestsThrough(t *testing.T) {
	api := newTestAPI(t, RouterOptions{Limiter: &countingLimiter{err: errors.New("redis down")}, SignupLimit: 1})

	for _, email := range []string{"k1@example.com", "k2@example.com"} {
		rec := api.do(t, http.MethodPost, "/api/customers", CustomerRequest{Name: "K", Email: email}, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

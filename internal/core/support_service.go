package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"tradeacademy.io/support-desk/internal/relay"
	"tradeacademy.io/support-desk/internal/store"
)

// ErrInvalidInput marks a request rejected by a business rule. Handlers
// answer it with 400.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// StatsWindow is how far back "new" and "active" customer counts look.
const StatsWindow = 30 * 24 * time.Hour

type CustomerStats struct {
	TotalCustomers  int64 `json:"totalCustomers"`
	NewCustomers    int64 `json:"newCustomers"`
	ActiveCustomers int64 `json:"activeCustomers"`
}

// Signal is a trading signal pushed to every relay connection.
type Signal struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	Direction  string    `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Note       string    `json:"note,omitempty"`
	IssuedBy   string    `json:"issued_by,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// SupportService applies the desk's business rules over a Store and pushes
// server-originated events through the relay Registry.
type SupportService struct {
	store store.Store
	relay relay.Registry
	now   func() time.Time
}

func NewSupportService(st store.Store, registry relay.Registry) *SupportService {
	return &SupportService{
		store: st,
		relay: registry,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Customers

func (s *SupportService) CreateCustomer(ctx context.Context, c *store.Customer) error {
	return s.store.CreateCustomer(ctx, c)
}

// GetCustomer returns the customer with every owned record, or nil.
func (s *SupportService) GetCustomer(ctx context.Context, id string) (*store.CustomerDetail, error) {
	detail, err := s.store.GetCustomerDetail(ctx, id)
	if err != nil || detail == nil {
		return nil, err
	}
	detail.DashboardData.DecodeStringFields()
	return detail, nil
}

func (s *SupportService) ListCustomers(ctx context.Context, search string) ([]store.Customer, error) {
	return s.store.ListCustomers(ctx, strings.TrimSpace(search))
}

func (s *SupportService) UpdateCustomer(ctx context.Context, id string, upd store.CustomerUpdate) (bool, error) {
	return s.store.UpdateCustomer(ctx, id, upd)
}

// DeleteCustomer removes a customer by its external unique id.
func (s *SupportService) DeleteCustomer(ctx context.Context, uniqueID string) (bool, error) {
	return s.store.DeleteCustomerByUniqueID(ctx, uniqueID)
}

func (s *SupportService) CustomerStats(ctx context.Context) (*CustomerStats, error) {
	since := s.now().Add(-StatsWindow)

	total, err := s.store.CountCustomers(ctx)
	if err != nil {
		return nil, err
	}
	joined, err := s.store.CountCustomersJoinedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	active, err := s.store.CountCustomersActiveSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return &CustomerStats{TotalCustomers: total, NewCustomers: joined, ActiveCustomers: active}, nil
}

func (s *SupportService) LogActivity(ctx context.Context, a *store.Activity) error {
	return s.store.LogActivity(ctx, a)
}

func (s *SupportService) AddScreenshot(ctx context.Context, sc *store.Screenshot) error {
	return s.store.AddScreenshot(ctx, sc)
}

func (s *SupportService) AddQuestionnaireResponse(ctx context.Context, q *store.QuestionnaireResponse) error {
	return s.store.AddQuestionnaireResponse(ctx, q)
}

func (s *SupportService) SaveRiskPlan(ctx context.Context, p *store.RiskManagementPlan) error {
	return s.store.UpsertRiskPlan(ctx, p)
}

func (s *SupportService) SaveDashboardData(ctx context.Context, d *store.DashboardData) error {
	if err := s.store.UpsertDashboardData(ctx, d); err != nil {
		return err
	}
	d.DecodeStringFields()
	return nil
}

// Conversations and messages

// StartConversation opens an Active conversation for an existing customer.
func (s *SupportService) StartConversation(ctx context.Context, customerID string, agentID *string) (*store.Conversation, error) {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, store.ErrNotFound
	}
	conv := &store.Conversation{CustomerID: customerID, AgentID: agentID, Status: store.StatusActive}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SupportService) ActiveConversations(ctx context.Context) ([]store.ConversationWithCustomer, error) {
	return s.store.ListConversationsByStatus(ctx, store.StatusActive)
}

// TransferConversation reassigns the agent; nil means no such conversation.
func (s *SupportService) TransferConversation(ctx context.Context, id, agentID string) (*store.Conversation, error) {
	return s.store.AssignAgent(ctx, id, agentID)
}

func (s *SupportService) SetConversationStatus(ctx context.Context, id, status string) (*store.Conversation, error) {
	return s.store.UpdateConversationStatus(ctx, id, status)
}

func (s *SupportService) PostMessage(ctx context.Context, m *store.Message) error {
	switch m.SenderType {
	case store.SenderCustomer, store.SenderAgent, store.SenderSystem:
	default:
		return invalid("sender_type must be customer, agent or system")
	}
	return s.store.CreateMessage(ctx, m)
}

func (s *SupportService) History(ctx context.Context, conversationID string) ([]store.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// Tickets

func validTicketStatus(status string) bool {
	return slices.Contains(store.TicketStatuses, status)
}

// OpenTicket stores t with status open and priority defaulting to normal.
func (s *SupportService) OpenTicket(ctx context.Context, t *store.Ticket) error {
	t.Status = "open"
	if t.Priority == "" {
		t.Priority = "normal"
	}
	return s.store.CreateTicket(ctx, t)
}

func (s *SupportService) ListTickets(ctx context.Context, status string) ([]store.Ticket, error) {
	if status != "" && !validTicketStatus(status) {
		return nil, invalid("unknown ticket status %q", status)
	}
	return s.store.ListTickets(ctx, status)
}

// UpdateTicketStatus sets status unconditionally. A nil ticket with a nil
// error means the id matched nothing.
func (s *SupportService) UpdateTicketStatus(ctx context.Context, id, status string) (*store.Ticket, error) {
	if !validTicketStatus(status) {
		return nil, invalid("unknown ticket status %q", status)
	}
	return s.store.UpdateTicketStatus(ctx, id, status)
}

// Signals

// BroadcastSignal stamps sig and pushes it to every relay connection.
// Nothing is persisted.
func (s *SupportService) BroadcastSignal(ctx context.Context, sig *Signal) error {
	sig.ID = uuid.NewString()
	sig.IssuedAt = s.now()
	return s.relay.Broadcast(relay.Everyone, relay.EventNewSignal, sig, "")
}

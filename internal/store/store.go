// Package store persists customers, conversations, messages, tickets and
// knowledge-base articles. Two backends implement Store: SQLiteStore for
// single-node deployments and tests, MongoStore for document storage.
//
// Lookups that find nothing return (nil, nil); mutations that need an
// existing parent return ErrNotFound.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateEmail    = errors.New("customer email already exists")
	ErrDuplicateUniqueID = errors.New("customer unique id already exists")
	ErrNotFound          = errors.New("record not found")
)

type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetCustomerDetail(ctx context.Context, id string) (*CustomerDetail, error)
	ListCustomers(ctx context.Context, search string) ([]Customer, error)
	UpdateCustomer(ctx context.Context, id string, upd CustomerUpdate) (bool, error)
	DeleteCustomerByUniqueID(ctx context.Context, uniqueID string) (bool, error)
	CountCustomers(ctx context.Context) (int64, error)
	CountCustomersJoinedSince(ctx context.Context, since time.Time) (int64, error)
	CountCustomersActiveSince(ctx context.Context, since time.Time) (int64, error)

	// LogActivity inserts a, links it to its customer and bumps the
	// customer's last_active, all or nothing.
	LogActivity(ctx context.Context, a *Activity) error
	AddScreenshot(ctx context.Context, s *Screenshot) error
	AddQuestionnaireResponse(ctx context.Context, q *QuestionnaireResponse) error
	UpsertRiskPlan(ctx context.Context, p *RiskManagementPlan) error
	UpsertDashboardData(ctx context.Context, d *DashboardData) error

	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsByStatus(ctx context.Context, status string) ([]ConversationWithCustomer, error)
	AssignAgent(ctx context.Context, id, agentID string) (*Conversation, error)
	UpdateConversationStatus(ctx context.Context, id, status string) (*Conversation, error)

	CreateMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	CreateTicket(ctx context.Context, t *Ticket) error
	ListTickets(ctx context.Context, status string) ([]Ticket, error)
	UpdateTicketStatus(ctx context.Context, id, status string) (*Ticket, error)

	ReplaceKnowledgeArticles(ctx context.Context, articles []KnowledgeArticle) (int, error)
	ListKnowledgeArticles(ctx context.Context) ([]KnowledgeArticle, error)

	Close() error
}

// NewUniqueID returns an external customer identifier.
func NewUniqueID() string {
	return "CUST-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func now() time.Time {
	return time.Now().UTC()
}

// prepareCustomer fills server-assigned customer fields.
func prepareCustomer(c *Customer) {
	c.ID = uuid.NewString()
	if c.UniqueID == "" {
		c.UniqueID = NewUniqueID()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.JoinDate.IsZero() {
		c.JoinDate = now()
	}
	c.JoinDate = c.JoinDate.UTC()
	c.Email = NormalizeEmail(c.Email)
}

// NormalizeEmail is applied before every write so the unique constraint
// compares emails case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package store

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	StatusActive = "Active" // conversation and customer default status

	SenderCustomer = "customer"
	SenderAgent    = "agent"
	SenderSystem   = "system"
)

var TicketStatuses = []string{"open", "pending", "in_progress", "resolved", "closed"}

type Customer struct {
	ID          string     `json:"id" bson:"_id"`
	UniqueID    string     `json:"unique_id" bson:"unique_id"`
	Name        string     `json:"name" bson:"name"`
	Email       string     `json:"email" bson:"email"`
	Phone       string     `json:"phone" bson:"phone"`
	AccountType string     `json:"account_type" bson:"account_type"`
	Status      string     `json:"status" bson:"status"`
	JoinDate    time.Time  `json:"join_date" bson:"join_date"`
	LastActive  *time.Time `json:"last_active" bson:"last_active,omitempty"`

	// Ownership links. The SQLite backend derives them from foreign keys;
	// the Mongo backend keeps them on the customer document.
	ActivityIDs []string `json:"-" bson:"activity_ids,omitempty"`
}

// CustomerUpdate is the full replacement set of mutable customer fields.
type CustomerUpdate struct {
	Name        string
	Email       string
	Phone       string
	AccountType string
}

// CustomerDetail is a customer with every owned sub-collection populated.
type CustomerDetail struct {
	Customer
	Activities             []Activity              `json:"activities"`
	Screenshots            []Screenshot            `json:"screenshots"`
	QuestionnaireResponses []QuestionnaireResponse `json:"questionnaire_responses"`
	RiskManagementPlan     *RiskManagementPlan     `json:"risk_management_plan"`
	DashboardData          *DashboardData          `json:"dashboard_data"`
}

type Activity struct {
	ID         string    `json:"id" bson:"_id"`
	CustomerID string    `json:"customer_id" bson:"customer_id"`
	Type       string    `json:"type" bson:"type"`
	Details    string    `json:"details" bson:"details"`
	IPAddress  string    `json:"ip_address" bson:"ip_address"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

type Screenshot struct {
	ID          string    `json:"id" bson:"_id"`
	CustomerID  string    `json:"customer_id" bson:"customer_id"`
	URL         string    `json:"url" bson:"url"`
	Description string    `json:"description" bson:"description"`
	UploadedAt  time.Time `json:"uploaded_at" bson:"uploaded_at"`
}

type QuestionnaireResponse struct {
	ID            string            `json:"id" bson:"_id"`
	CustomerID    string            `json:"customer_id" bson:"customer_id"`
	Questionnaire string            `json:"questionnaire" bson:"questionnaire"`
	Answers       map[string]string `json:"answers" bson:"answers"`
	SubmittedAt   time.Time         `json:"submitted_at" bson:"submitted_at"`
}

type RiskManagementPlan struct {
	ID              string    `json:"id" bson:"_id"`
	CustomerID      string    `json:"customer_id" bson:"customer_id"`
	MaxRiskPerTrade float64   `json:"max_risk_per_trade" bson:"max_risk_per_trade"`
	MaxDailyLoss    float64   `json:"max_daily_loss" bson:"max_daily_loss"`
	RiskRewardRatio float64   `json:"risk_reward_ratio" bson:"risk_reward_ratio"`
	Notes           string    `json:"notes" bson:"notes"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

type DashboardData struct {
	ID         string         `json:"id" bson:"_id"`
	CustomerID string         `json:"customer_id" bson:"customer_id"`
	Fields     map[string]any `json:"fields" bson:"fields"`
	UpdatedAt  time.Time      `json:"updated_at" bson:"updated_at"`
}

// DecodeStringFields replaces every field whose value is a string holding a
// JSON object or array with the decoded value. Older clients stored some
// widgets double-encoded.
func (d *DashboardData) DecodeStringFields() {
	if d == nil {
		return
	}
	for key, value := range d.Fields {
		s, ok := value.(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(s)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			d.Fields[key] = decoded
		}
	}
}

type Conversation struct {
	ID         string    `json:"id" bson:"_id"`
	CustomerID string    `json:"customer_id" bson:"customer_id"`
	AgentID    *string   `json:"agent_id" bson:"agent_id"`
	Status     string    `json:"status" bson:"status"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// CustomerSummary is the slice of a customer joined into conversation listings.
type CustomerSummary struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}

type ConversationWithCustomer struct {
	Conversation
	Customer *CustomerSummary `json:"customer"`
}

type Message struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	SenderType     string    `json:"sender_type" bson:"sender_type"`
	SenderID       string    `json:"sender_id" bson:"sender_id"`
	Message        string    `json:"message" bson:"message"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`

	// Seq breaks timestamp ties where the backend has no rowid.
	Seq int64 `json:"-" bson:"seq,omitempty"`
}

type Ticket struct {
	ID          string    `json:"id" bson:"_id"`
	CustomerID  string    `json:"customer_id" bson:"customer_id"`
	Subject     string    `json:"subject" bson:"subject"`
	Description string    `json:"description" bson:"description"`
	Status      string    `json:"status" bson:"status"`
	Priority    string    `json:"priority" bson:"priority"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

type KnowledgeArticle struct {
	ID       string   `json:"id" bson:"_id"`
	Title    string   `json:"title" bson:"title"`
	Keywords []string `json:"keywords" bson:"keywords"`
	Answer   string   `json:"answer" bson:"answer"`
}

package api

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"tradeacademy.io/support-desk/internal/store"
)

var ticketPriorities = []string{"low", "normal", "high", "urgent"}

func required(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%s required", strings.Join(missing, ", "))
}

func validEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email is not a valid address")
	}
	return nil
}

type CustomerRequest struct {
	UniqueID    string `json:"unique_id,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	AccountType string `json:"account_type"`
}

func (r *CustomerRequest) Validate() error {
	if err := required(map[string]string{"name": r.Name, "email": r.Email}); err != nil {
		return err
	}
	return validEmail(strings.TrimSpace(r.Email))
}

// UpdateCustomerRequest replaces every mutable field.
type UpdateCustomerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	AccountType string `json:"account_type"`
}

func (r *UpdateCustomerRequest) Validate() error {
	if err := required(map[string]string{"name": r.Name, "email": r.Email}); err != nil {
		return err
	}
	return validEmail(strings.TrimSpace(r.Email))
}

type StartChatRequest struct {
	CustomerID string  `json:"customer_id"`
	AgentID    *string `json:"agent_id,omitempty"`
}

func (r *StartChatRequest) Validate() error {
	return required(map[string]string{"customer_id": r.CustomerID})
}

type TransferChatRequest struct {
	AgentID string `json:"agent_id"`
}

func (r *TransferChatRequest) Validate() error {
	return required(map[string]string{"agent_id": r.AgentID})
}

type StatusRequest struct {
	Status string `json:"status"`
}

func (r *StatusRequest) Validate() error {
	return required(map[string]string{"status": r.Status})
}

type CreateMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderType     string `json:"sender_type"`
	SenderID       string `json:"sender_id"`
	Message        string `json:"message"`
}

func (r *CreateMessageRequest) Validate() error {
	if err := required(map[string]string{
		"conversation_id": r.ConversationID,
		"sender_type":     r.SenderType,
		"sender_id":       r.SenderID,
		"message":         r.Message,
	}); err != nil {
		return err
	}
	switch r.SenderType {
	case store.SenderCustomer, store.SenderAgent, store.SenderSystem:
		return nil
	}
	return errors.New("sender_type must be customer, agent or system")
}

type CreateTicketRequest struct {
	CustomerID  string `json:"customer_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

func (r *CreateTicketRequest) Validate() error {
	if err := required(map[string]string{"customer_id": r.CustomerID, "subject": r.Subject}); err != nil {
		return err
	}
	if r.Priority != "" && !slices.Contains(ticketPriorities, r.Priority) {
		return fmt.Errorf("priority must be one of %s", strings.Join(ticketPriorities, ", "))
	}
	return nil
}

type UpdateTicketRequest struct {
	Status string `json:"status"`
}

func (r *UpdateTicketRequest) Validate() error {
	if !slices.Contains(store.TicketStatuses, r.Status) {
		return fmt.Errorf("status must be one of %s", strings.Join(store.TicketStatuses, ", "))
	}
	return nil
}

type ActivityRequest struct {
	CustomerID string `json:"customer_id"`
	Type       string `json:"type"`
	Details    string `json:"details"`
}

func (r *ActivityRequest) Validate() error {
	return required(map[string]string{"customer_id": r.CustomerID, "type": r.Type})
}

type ScreenshotRequest struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (r *ScreenshotRequest) Validate() error {
	if err := required(map[string]string{"url": r.URL}); err != nil {
		return err
	}
	if u, err := url.ParseRequestURI(r.URL); err != nil || u.Host == "" {
		return errors.New("url must be an absolute URL")
	}
	return nil
}

type QuestionnaireRequest struct {
	Questionnaire string            `json:"questionnaire"`
	Answers       map[string]string `json:"answers"`
}

func (r *QuestionnaireRequest) Validate() error {
	if err := required(map[string]string{"questionnaire": r.Questionnaire}); err != nil {
		return err
	}
	if len(r.Answers) == 0 {
		return errors.New("answers required")
	}
	return nil
}

type RiskPlanRequest struct {
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
	MaxDailyLoss    float64 `json:"max_daily_loss"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
	Notes           string  `json:"notes"`
}

func (r *RiskPlanRequest) Validate() error {
	if r.MaxRiskPerTrade < 0 || r.MaxDailyLoss < 0 || r.RiskRewardRatio < 0 {
		return errors.New("risk values must not be negative")
	}
	return nil
}

type DashboardRequest struct {
	Fields map[string]any `json:"fields"`
}

func (r *DashboardRequest) Validate() error {
	if r.Fields == nil {
		return errors.New("fields required")
	}
	return nil
}

type SignalRequest struct {
	Pair       string  `json:"pair"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Note       string  `json:"note,omitempty"`
}

func (r *SignalRequest) Validate() error {
	if err := required(map[string]string{"pair": r.Pair, "direction": r.Direction}); err != nil {
		return err
	}
	if r.Direction != "buy" && r.Direction != "sell" {
		return errors.New("direction must be buy or sell")
	}
	if r.EntryPrice <= 0 {
		return errors.New("entry_price must be positive")
	}
	if r.StopLoss < 0 || r.TakeProfit < 0 {
		return errors.New("stop_loss and take_profit must not be negative")
	}
	return nil
}

type ChatbotRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (r *ChatbotRequest) Validate() error {
	return required(map[string]string{"message": r.Message})
}

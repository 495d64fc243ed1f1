package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

// driverName is go-sqlite3 with a Unicode-aware casefold() SQL function.
// The built-in lower() and LIKE only fold ASCII.
const driverName = "sqlite3_casefold"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", strings.ToLower, true)
		},
	})
}

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and transactions
	// must not interleave with pooled connections.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_foreign_keys=on&_busy_timeout=5000"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS customers (
        id TEXT PRIMARY KEY,
        unique_id TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL,
        email TEXT UNIQUE NOT NULL,
        phone TEXT NOT NULL DEFAULT '',
        account_type TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'Active',
        join_date DATETIME NOT NULL,
        last_active DATETIME
    );

    CREATE TABLE IF NOT EXISTS activities (
        id TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        type TEXT NOT NULL,
        details TEXT NOT NULL DEFAULT '',
        ip_address TEXT NOT NULL DEFAULT '',
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS screenshots (
        id TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        url TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        uploaded_at DATETIME NOT NULL,
        FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS questionnaire_responses (
        id TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        questionnaire TEXT NOT NULL,
        answers_json TEXT NOT NULL,
        submitted_at DATETIME NOT NULL,
        FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS risk_management_plans (
        id TEXT PRIMARY KEY,
        customer_id TEXT UNIQUE NOT NULL,
        max_risk_per_trade REAL NOT NULL DEFAULT 0,
        max_daily_loss REAL NOT NULL DEFAULT 0,
        risk_reward_ratio REAL NOT NULL DEFAULT 0,
        notes TEXT NOT NULL DEFAULT '',
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS dashboard_data (
        id TEXT PRIMARY KEY,
        customer_id TEXT UNIQUE NOT NULL,
        fields_json TEXT NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        agent_id TEXT,
        status TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        conversation_id TEXT NOT NULL,
        sender_type TEXT NOT NULL CHECK (sender_type IN ('customer', 'agent', 'system')),
        sender_id TEXT NOT NULL,
        message TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, timestamp);

    CREATE TABLE IF NOT EXISTS tickets (
        id TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        subject TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        priority TEXT NOT NULL DEFAULT 'normal',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS knowledge_articles (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        keywords_json TEXT NOT NULL,
        answer TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return column == "" || strings.Contains(sqliteErr.Error(), column)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Customer methods

const customerColumns = "id, unique_id, name, email, phone, account_type, status, join_date, last_active"

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	var lastActive sql.NullTime
	if err := row.Scan(&c.ID, &c.UniqueID, &c.Name, &c.Email, &c.Phone, &c.AccountType, &c.Status, &c.JoinDate, &lastActive); err != nil {
		return nil, err
	}
	if lastActive.Valid {
		t := lastActive.Time
		c.LastActive = &t
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *Customer) error {
	prepareCustomer(c)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO customers ("+customerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.UniqueID, c.Name, c.Email, c.Phone, c.AccountType, c.Status, c.JoinDate, c.LastActive)
	if err != nil {
		switch {
		case isUniqueViolation(err, "customers.email"):
			return ErrDuplicateEmail
		case isUniqueViolation(err, "customers.unique_id"):
			return ErrDuplicateUniqueID
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return s.getCustomer(ctx, s.db, id)
}

func (s *SQLiteStore) getCustomer(ctx context.Context, q queryer, id string) (*Customer, error) {
	c, err := scanCustomer(q.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Customer not found
		}
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetCustomerDetail(ctx context.Context, id string) (*CustomerDetail, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	detail := &CustomerDetail{Customer: *c}

	if detail.Activities, err = s.listActivities(ctx, id); err != nil {
		return nil, err
	}
	if detail.Screenshots, err = s.listScreenshots(ctx, id); err != nil {
		return nil, err
	}
	if detail.QuestionnaireResponses, err = s.listQuestionnaireResponses(ctx, id); err != nil {
		return nil, err
	}
	if detail.RiskManagementPlan, err = s.getRiskPlan(ctx, id); err != nil {
		return nil, err
	}
	if detail.DashboardData, err = s.getDashboardData(ctx, id); err != nil {
		return nil, err
	}
	for _, a := range detail.Activities {
		detail.ActivityIDs = append(detail.ActivityIDs, a.ID)
	}
	return detail, nil
}

func (s *SQLiteStore) ListCustomers(ctx context.Context, search string) ([]Customer, error) {
	query := "SELECT " + customerColumns + " FROM customers"
	var args []any
	if search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query += ` WHERE casefold(name) LIKE ? ESCAPE '\' OR casefold(email) LIKE ? ESCAPE '\' OR casefold(unique_id) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern, pattern)
	}
	query += " ORDER BY join_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *SQLiteStore) UpdateCustomer(ctx context.Context, id string, upd CustomerUpdate) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE customers SET name = ?, email = ?, phone = ?, account_type = ? WHERE id = ?",
		upd.Name, NormalizeEmail(upd.Email), upd.Phone, upd.AccountType, id)
	if err != nil {
		if isUniqueViolation(err, "customers.email") {
			return false, ErrDuplicateEmail
		}
		return false, fmt.Errorf("failed to update customer: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) DeleteCustomerByUniqueID(ctx context.Context, uniqueID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM customers WHERE unique_id = ?", uniqueID)
	if err != nil {
		return false, fmt.Errorf("failed to delete customer: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) CountCustomers(ctx context.Context) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM customers")
}

func (s *SQLiteStore) CountCustomersJoinedSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM customers WHERE join_date >= ?", since.UTC())
}

func (s *SQLiteStore) CountCustomersActiveSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM customers WHERE last_active IS NOT NULL AND last_active >= ?", since.UTC())
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

// Activity and other customer-owned records

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) LogActivity(ctx context.Context, a *Activity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activity transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := s.getCustomer(ctx, tx, a.CustomerID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}

	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = now()
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO activities (id, customer_id, type, details, ip_address, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.CustomerID, a.Type, a.Details, a.IPAddress, a.Timestamp); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE customers SET last_active = ? WHERE id = ?", a.Timestamp, a.CustomerID); err != nil {
		return fmt.Errorf("failed to update customer last_active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listActivities(ctx context.Context, customerID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, customer_id, type, details, ip_address, timestamp FROM activities WHERE customer_id = ? ORDER BY timestamp ASC, rowid ASC", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Type, &a.Details, &a.IPAddress, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// requireCustomer returns ErrNotFound when customerID does not exist.
func (s *SQLiteStore) requireCustomer(ctx context.Context, customerID string) error {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AddScreenshot(ctx context.Context, sc *Screenshot) error {
	if err := s.requireCustomer(ctx, sc.CustomerID); err != nil {
		return err
	}
	sc.ID = uuid.NewString()
	sc.UploadedAt = now()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO screenshots (id, customer_id, url, description, uploaded_at) VALUES (?, ?, ?, ?, ?)",
		sc.ID, sc.CustomerID, sc.URL, sc.Description, sc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert screenshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listScreenshots(ctx context.Context, customerID string) ([]Screenshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, customer_id, url, description, uploaded_at FROM screenshots WHERE customer_id = ? ORDER BY uploaded_at ASC, rowid ASC", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screenshots: %w", err)
	}
	defer rows.Close()

	screenshots := []Screenshot{}
	for rows.Next() {
		var sc Screenshot
		if err := rows.Scan(&sc.ID, &sc.CustomerID, &sc.URL, &sc.Description, &sc.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan screenshot row: %w", err)
		}
		screenshots = append(screenshots, sc)
	}
	return screenshots, rows.Err()
}

func (s *SQLiteStore) AddQuestionnaireResponse(ctx context.Context, q *QuestionnaireResponse) error {
	if err := s.requireCustomer(ctx, q.CustomerID); err != nil {
		return err
	}
	if q.Answers == nil {
		q.Answers = map[string]string{}
	}
	answersJSON, err := json.Marshal(q.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	q.ID = uuid.NewString()
	q.SubmittedAt = now()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO questionnaire_responses (id, customer_id, questionnaire, answers_json, submitted_at) VALUES (?, ?, ?, ?, ?)",
		q.ID, q.CustomerID, q.Questionnaire, string(answersJSON), q.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert questionnaire response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listQuestionnaireResponses(ctx context.Context, customerID string) ([]QuestionnaireResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, customer_id, questionnaire, answers_json, submitted_at FROM questionnaire_responses WHERE customer_id = ? ORDER BY submitted_at ASC, rowid ASC", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questionnaire responses: %w", err)
	}
	defer rows.Close()

	responses := []QuestionnaireResponse{}
	for rows.Next() {
		var q QuestionnaireResponse
		var answersJSON string
		if err := rows.Scan(&q.ID, &q.CustomerID, &q.Questionnaire, &answersJSON, &q.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire response row: %w", err)
		}
		if err := json.Unmarshal([]byte(answersJSON), &q.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers for response %s: %w", q.ID, err)
		}
		responses = append(responses, q)
	}
	return responses, rows.Err()
}

func (s *SQLiteStore) UpsertRiskPlan(ctx context.Context, p *RiskManagementPlan) error {
	if err := s.requireCustomer(ctx, p.CustomerID); err != nil {
		return err
	}
	p.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO risk_management_plans (id, customer_id, max_risk_per_trade, max_daily_loss, risk_reward_ratio, notes, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (customer_id) DO UPDATE SET
            max_risk_per_trade = excluded.max_risk_per_trade,
            max_daily_loss = excluded.max_daily_loss,
            risk_reward_ratio = excluded.risk_reward_ratio,
            notes = excluded.notes,
            updated_at = excluded.updated_at`,
		uuid.NewString(), p.CustomerID, p.MaxRiskPerTrade, p.MaxDailyLoss, p.RiskRewardRatio, p.Notes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert risk plan: %w", err)
	}
	stored, err := s.getRiskPlan(ctx, p.CustomerID)
	if err != nil {
		return err
	}
	p.ID = stored.ID
	return nil
}

func (s *SQLiteStore) getRiskPlan(ctx context.Context, customerID string) (*RiskManagementPlan, error) {
	var p RiskManagementPlan
	err := s.db.QueryRowContext(ctx,
		"SELECT id, customer_id, max_risk_per_trade, max_daily_loss, risk_reward_ratio, notes, updated_at FROM risk_management_plans WHERE customer_id = ?", customerID).
		Scan(&p.ID, &p.CustomerID, &p.MaxRiskPerTrade, &p.MaxDailyLoss, &p.RiskRewardRatio, &p.Notes, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query risk plan: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertDashboardData(ctx context.Context, d *DashboardData) error {
	if err := s.requireCustomer(ctx, d.CustomerID); err != nil {
		return err
	}
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard fields: %w", err)
	}
	d.UpdatedAt = now()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO dashboard_data (id, customer_id, fields_json, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (customer_id) DO UPDATE SET fields_json = excluded.fields_json, updated_at = excluded.updated_at`,
		uuid.NewString(), d.CustomerID, string(fieldsJSON), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert dashboard data: %w", err)
	}
	stored, err := s.getDashboardData(ctx, d.CustomerID)
	if err != nil {
		return err
	}
	d.ID = stored.ID
	return nil
}

func (s *SQLiteStore) getDashboardData(ctx context.Context, customerID string) (*DashboardData, error) {
	var d DashboardData
	var fieldsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, customer_id, fields_json, updated_at FROM dashboard_data WHERE customer_id = ?", customerID).
		Scan(&d.ID, &d.CustomerID, &fieldsJSON, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query dashboard data: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &d.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode dashboard fields: %w", err)
	}
	return &d, nil
}

// Conversation methods

const conversationColumns = "id, customer_id, agent_id, status, created_at"

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var agentID sql.NullString
	if err := row.Scan(&c.ID, &c.CustomerID, &agentID, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	if agentID.Valid {
		c.AgentID = &agentID.String
	}
	return &c, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *Conversation) error {
	c.ID = uuid.NewString()
	c.CreatedAt = now()
	if c.Status == "" {
		c.Status = StatusActive
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?, ?)",
		c.ID, c.CustomerID, c.AgentID, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConversationsByStatus(ctx context.Context, status string) ([]ConversationWithCustomer, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT c.id, c.customer_id, c.agent_id, c.status, c.created_at, cu.name, cu.email
        FROM conversations c
        LEFT JOIN customers cu ON cu.id = c.customer_id
        WHERE c.status = ?
        ORDER BY c.created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []ConversationWithCustomer{}
	for rows.Next() {
		var c ConversationWithCustomer
		var agentID, name, email sql.NullString
		if err := rows.Scan(&c.ID, &c.CustomerID, &agentID, &c.Status, &c.CreatedAt, &name, &email); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if agentID.Valid {
			c.AgentID = &agentID.String
		}
		if name.Valid || email.Valid {
			c.Customer = &CustomerSummary{Name: name.String, Email: email.String}
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) AssignAgent(ctx context.Context, id, agentID string) (*Conversation, error) {
	return s.updateConversation(ctx, "UPDATE conversations SET agent_id = ? WHERE id = ?", agentID, id)
}

func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id, status string) (*Conversation, error) {
	return s.updateConversation(ctx, "UPDATE conversations SET status = ? WHERE id = ?", status, id)
}

func (s *SQLiteStore) updateConversation(ctx context.Context, query, value, id string) (*Conversation, error) {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, nil
	}
	return s.GetConversation(ctx, id)
}

// Message methods

func (s *SQLiteStore) CreateMessage(ctx context.Context, m *Message) error {
	m.ID = uuid.NewString()
	m.Timestamp = now()

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO messages (id, conversation_id, sender_type, sender_id, message, timestamp) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, m.ID, m.ConversationID, m.SenderType, m.SenderID, m.Message, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, sender_type, sender_id, message, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, rowid ASC", conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderType, &m.SenderID, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Ticket methods

const ticketColumns = "id, customer_id, subject, description, status, priority, created_at, updated_at"

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	if err := row.Scan(&t.ID, &t.CustomerID, &t.Subject, &t.Description, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, t *Ticket) error {
	t.ID = uuid.NewString()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tickets ("+ticketColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.CustomerID, t.Subject, t.Description, t.Status, t.Priority, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTickets(ctx context.Context, status string) ([]Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) UpdateTicketStatus(ctx context.Context, id, status string) (*Ticket, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?", status, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, nil
	}
	t, err := scanTicket(s.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload ticket: %w", err)
	}
	return t, nil
}

// Knowledge base methods

func (s *SQLiteStore) ReplaceKnowledgeArticles(ctx context.Context, articles []KnowledgeArticle) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin knowledge import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_articles"); err != nil {
		return 0, fmt.Errorf("failed to clear knowledge articles: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO knowledge_articles (id, title, keywords_json, answer) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare knowledge insert: %w", err)
	}
	defer stmt.Close()

	for i := range articles {
		keywordsJSON, err := json.Marshal(articles[i].Keywords)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal keywords: %w", err)
		}
		articles[i].ID = uuid.NewString()
		if _, err := stmt.ExecContext(ctx, articles[i].ID, articles[i].Title, string(keywordsJSON), articles[i].Answer); err != nil {
			return 0, fmt.Errorf("failed to insert knowledge article %q: %w", articles[i].Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit knowledge import: %w", err)
	}
	return len(articles), nil
}

func (s *SQLiteStore) ListKnowledgeArticles(ctx context.Context) ([]KnowledgeArticle, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, keywords_json, answer FROM knowledge_articles ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge articles: %w", err)
	}
	defer rows.Close()

	articles := []KnowledgeArticle{}
	for rows.Next() {
		var a KnowledgeArticle
		var keywordsJSON string
		if err := rows.Scan(&a.ID, &a.Title, &keywordsJSON, &a.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge article row: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &a.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords for article %s: %w", a.ID, err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	customersCollection      = "customers"
	activitiesCollection     = "activities"
	screenshotsCollection    = "screenshots"
	questionnairesCollection = "questionnaire_responses"
	riskPlansCollection      = "risk_management_plans"
	dashboardCollection      = "dashboard_data"
	conversationsCollection  = "conversations"
	messagesCollection       = "messages"
	ticketsCollection        = "tickets"
	knowledgeCollection      = "knowledge_articles"
)

// MongoStore keeps every record type in its own collection. Activity
// logging and knowledge imports use multi-document transactions, so the
// server must run as a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		customersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "unique_id", Value: 1}}, Options: unique},
		},
		riskPlansCollection: {{Keys: bson.D{{Key: "customer_id", Value: 1}}, Options: unique}},
		dashboardCollection: {{Keys: bson.D{{Key: "customer_id", Value: 1}}, Options: unique}},
		activitiesCollection: {{Keys: bson.D{{Key: "customer_id", Value: 1}}}},
		messagesCollection: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}}},
		},
		conversationsCollection: {{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}}},
		ticketsCollection:       {{Keys: bson.D{{Key: "status", Value: 1}}}},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// duplicateCustomerKey tells the two unique customer indexes apart by the
// index name the server reports ("unique_id_1" or "email_1").
func duplicateCustomerKey(err error) error {
	if strings.Contains(err.Error(), "unique_id_1") {
		return ErrDuplicateUniqueID
	}
	return ErrDuplicateEmail
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// findOne decodes the first match into out and reports whether one existed.
func findOne(ctx context.Context, c *mongo.Collection, filter any, out any) (bool, error) {
	err := c.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Customer methods

func (s *MongoStore) CreateCustomer(ctx context.Context, c *Customer) error {
	prepareCustomer(c)
	_, err := s.coll(customersCollection).InsertOne(ctx, c)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateCustomerKey(err)
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (s *MongoStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	found, err := findOne(ctx, s.coll(customersCollection), bson.M{"_id": id}, &c)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (s *MongoStore) GetCustomerDetail(ctx context.Context, id string) (*CustomerDetail, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	detail := &CustomerDetail{Customer: *c}
	owned := bson.M{"customer_id": id}

	activities, err := findAll[Activity](ctx, s.coll(activitiesCollection), bson.M{"_id": bson.M{"$in": nonNil(c.ActivityIDs)}})
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	detail.Activities = orderByIDs(activities, c.ActivityIDs)

	if detail.Screenshots, err = findAll[Screenshot](ctx, s.coll(screenshotsCollection), owned,
		options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: 1}})); err != nil {
		return nil, fmt.Errorf("failed to query screenshots: %w", err)
	}
	if detail.QuestionnaireResponses, err = findAll[QuestionnaireResponse](ctx, s.coll(questionnairesCollection), owned,
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}})); err != nil {
		return nil, fmt.Errorf("failed to query questionnaire responses: %w", err)
	}

	var plan RiskManagementPlan
	if found, err := findOne(ctx, s.coll(riskPlansCollection), owned, &plan); err != nil {
		return nil, fmt.Errorf("failed to query risk plan: %w", err)
	} else if found {
		detail.RiskManagementPlan = &plan
	}
	var dash DashboardData
	if found, err := findOne(ctx, s.coll(dashboardCollection), owned, &dash); err != nil {
		return nil, fmt.Errorf("failed to query dashboard data: %w", err)
	} else if found {
		detail.DashboardData = &dash
	}
	return detail, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// orderByIDs returns activities in the order their ids were linked.
func orderByIDs(activities []Activity, ids []string) []Activity {
	byID := make(map[string]Activity, len(activities))
	for _, a := range activities {
		byID[a.ID] = a
	}
	ordered := make([]Activity, 0, len(activities))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

func (s *MongoStore) ListCustomers(ctx context.Context, search string) ([]Customer, error) {
	filter := bson.M{}
	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"unique_id": pattern},
		}}
	}
	customers, err := findAll[Customer](ctx, s.coll(customersCollection), filter,
		options.Find().SetSort(bson.D{{Key: "join_date", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	return customers, nil
}

func (s *MongoStore) UpdateCustomer(ctx context.Context, id string, upd CustomerUpdate) (bool, error) {
	res, err := s.coll(customersCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"name":         upd.Name,
		"email":        NormalizeEmail(upd.Email),
		"phone":        upd.Phone,
		"account_type": upd.AccountType,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrDuplicateEmail
		}
		return false, fmt.Errorf("failed to update customer: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteCustomerByUniqueID(ctx context.Context, uniqueID string) (bool, error) {
	var c Customer
	found, err := findOne(ctx, s.coll(customersCollection), bson.M{"unique_id": uniqueID}, &c)
	if err != nil {
		return false, fmt.Errorf("failed to query customer: %w", err)
	}
	if !found {
		return false, nil
	}
	res, err := s.coll(customersCollection).DeleteOne(ctx, bson.M{"_id": c.ID})
	if err != nil {
		return false, fmt.Errorf("failed to delete customer: %w", err)
	}
	owned := bson.M{"customer_id": c.ID}
	for _, name := range []string{activitiesCollection, screenshotsCollection, questionnairesCollection, riskPlansCollection, dashboardCollection} {
		if _, err := s.coll(name).DeleteMany(ctx, owned); err != nil {
			return true, fmt.Errorf("failed to delete %s for customer %s: %w", name, c.ID, err)
		}
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) CountCustomers(ctx context.Context) (int64, error) {
	return s.countCustomers(ctx, bson.M{})
}

func (s *MongoStore) CountCustomersJoinedSince(ctx context.Context, since time.Time) (int64, error) {
	return s.countCustomers(ctx, bson.M{"join_date": bson.M{"$gte": since.UTC()}})
}

func (s *MongoStore) CountCustomersActiveSince(ctx context.Context, since time.Time) (int64, error) {
	return s.countCustomers(ctx, bson.M{"last_active": bson.M{"$gte": since.UTC()}})
}

func (s *MongoStore) countCustomers(ctx context.Context, filter bson.M) (int64, error) {
	n, err := s.coll(customersCollection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

// Activity and other customer-owned records

func (s *MongoStore) LogActivity(ctx context.Context, a *Activity) error {
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = now()
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.coll(customersCollection).UpdateOne(sc, bson.M{"_id": a.CustomerID}, bson.M{
			"$push": bson.M{"activity_ids": a.ID},
			"$set":  bson.M{"last_active": a.Timestamp},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to link activity: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		if _, err := s.coll(activitiesCollection).InsertOne(sc, a); err != nil {
			return nil, fmt.Errorf("failed to insert activity: %w", err)
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) requireCustomer(ctx context.Context, customerID string) error {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AddScreenshot(ctx context.Context, sc *Screenshot) error {
	if err := s.requireCustomer(ctx, sc.CustomerID); err != nil {
		return err
	}
	sc.ID = uuid.NewString()
	sc.UploadedAt = now()
	if _, err := s.coll(screenshotsCollection).InsertOne(ctx, sc); err != nil {
		return fmt.Errorf("failed to insert screenshot: %w", err)
	}
	return nil
}

func (s *MongoStore) AddQuestionnaireResponse(ctx context.Context, q *QuestionnaireResponse) error {
	if err := s.requireCustomer(ctx, q.CustomerID); err != nil {
		return err
	}
	if q.Answers == nil {
		q.Answers = map[string]string{}
	}
	q.ID = uuid.NewString()
	q.SubmittedAt = now()
	if _, err := s.coll(questionnairesCollection).InsertOne(ctx, q); err != nil {
		return fmt.Errorf("failed to insert questionnaire response: %w", err)
	}
	return nil
}

// upsertOwned writes set onto the single document owned by customerID and
// returns the document's id.
func (s *MongoStore) upsertOwned(ctx context.Context, collection, customerID string, set bson.M) (string, error) {
	var doc struct {
		ID string `bson:"_id"`
	}
	err := s.coll(collection).FindOneAndUpdate(ctx,
		bson.M{"customer_id": customerID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"_id": uuid.NewString()}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s: %w", collection, err)
	}
	return doc.ID, nil
}

func (s *MongoStore) UpsertRiskPlan(ctx context.Context, p *RiskManagementPlan) error {
	if err := s.requireCustomer(ctx, p.CustomerID); err != nil {
		return err
	}
	p.UpdatedAt = now()
	id, err := s.upsertOwned(ctx, riskPlansCollection, p.CustomerID, bson.M{
		"max_risk_per_trade": p.MaxRiskPerTrade,
		"max_daily_loss":     p.MaxDailyLoss,
		"risk_reward_ratio":  p.RiskRewardRatio,
		"notes":              p.Notes,
		"updated_at":         p.UpdatedAt,
	})
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *MongoStore) UpsertDashboardData(ctx context.Context, d *DashboardData) error {
	if err := s.requireCustomer(ctx, d.CustomerID); err != nil {
		return err
	}
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	d.UpdatedAt = now()
	id, err := s.upsertOwned(ctx, dashboardCollection, d.CustomerID, bson.M{
		"fields":     d.Fields,
		"updated_at": d.UpdatedAt,
	})
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// Conversation methods

func (s *MongoStore) CreateConversation(ctx context.Context, c *Conversation) error {
	c.ID = uuid.NewString()
	c.CreatedAt = now()
	if c.Status == "" {
		c.Status = StatusActive
	}
	if _, err := s.coll(conversationsCollection).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	found, err := findOne(ctx, s.coll(conversationsCollection), bson.M{"_id": id}, &c)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

type conversationRow struct {
	Conversation `bson:",inline"`
	Customers    []CustomerSummary `bson:"customers"`
}

func (s *MongoStore) ListConversationsByStatus(ctx context.Context, status string) ([]ConversationWithCustomer, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "status", Value: status}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: customersCollection},
			{Key: "localField", Value: "customer_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "customers"},
		}}},
	}
	cursor, err := s.coll(conversationsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []conversationRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	conversations := make([]ConversationWithCustomer, 0, len(rows))
	for _, row := range rows {
		cv := ConversationWithCustomer{Conversation: row.Conversation}
		if len(row.Customers) > 0 {
			summary := row.Customers[0]
			cv.Customer = &summary
		}
		conversations = append(conversations, cv)
	}
	return conversations, nil
}

func (s *MongoStore) AssignAgent(ctx context.Context, id, agentID string) (*Conversation, error) {
	return s.updateConversation(ctx, id, bson.M{"agent_id": agentID})
}

func (s *MongoStore) UpdateConversationStatus(ctx context.Context, id, status string) (*Conversation, error) {
	return s.updateConversation(ctx, id, bson.M{"status": status})
}

func (s *MongoStore) updateConversation(ctx context.Context, id string, set bson.M) (*Conversation, error) {
	var c Conversation
	err := s.coll(conversationsCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return &c, nil
}

// Message methods

func (s *MongoStore) CreateMessage(ctx context.Context, m *Message) error {
	switch m.SenderType {
	case SenderCustomer, SenderAgent, SenderSystem:
	default:
		return fmt.Errorf("invalid sender type %q", m.SenderType)
	}
	m.ID = uuid.NewString()
	m.Timestamp = now()
	m.Seq = m.Timestamp.UnixNano()
	if _, err := s.coll(messagesCollection).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	messages, err := findAll[Message](ctx, s.coll(messagesCollection), bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}

// Ticket methods

func (s *MongoStore) CreateTicket(ctx context.Context, t *Ticket) error {
	t.ID = uuid.NewString()
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	if _, err := s.coll(ticketsCollection).InsertOne(ctx, t); err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTickets(ctx context.Context, status string) ([]Ticket, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	tickets, err := findAll[Ticket](ctx, s.coll(ticketsCollection), filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	return tickets, nil
}

func (s *MongoStore) UpdateTicketStatus(ctx context.Context, id, status string) (*Ticket, error) {
	var t Ticket
	err := s.coll(ticketsCollection).FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	return &t, nil
}

// Knowledge base methods

func (s *MongoStore) ReplaceKnowledgeArticles(ctx context.Context, articles []KnowledgeArticle) (int, error) {
	docs := make([]interface{}, len(articles))
	for i := range articles {
		articles[i].ID = uuid.NewString()
		docs[i] = articles[i]
	}

	session, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.coll(knowledgeCollection).DeleteMany(sc, bson.M{}); err != nil {
			return nil, fmt.Errorf("failed to clear knowledge articles: %w", err)
		}
		if len(docs) == 0 {
			return nil, nil
		}
		if _, err := s.coll(knowledgeCollection).InsertMany(sc, docs); err != nil {
			return nil, fmt.Errorf("failed to insert knowledge articles: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return len(articles), nil
}

func (s *MongoStore) ListKnowledgeArticles(ctx context.Context) ([]KnowledgeArticle, error) {
	articles, err := findAll[KnowledgeArticle](ctx, s.coll(knowledgeCollection), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge articles: %w", err)
	}
	return articles, nil
}

// Package dynamo implements the backing store on a single DynamoDB table.
//
// Item layout:
//
//	PK                  SK          EntityType
//	THOUGHT#<id>        THOUGHT     thought
//	CONNECTION#<id>     CONNECTION  connection
//	CLUSTER#<category>  CLUSTER     cluster
//	SESSION#<id>        SESSION     session
//	META                VERSION     (counters: ThoughtSeq, ConnectionSeq, ThoughtCount)
//
// Every write bumps a sequence counter on the META item, which plays the role
// of SQLite's rowid in the version token.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// DBClient is the subset of the DynamoDB API the store uses. The concrete
// *dynamodb.Client satisfies it.
type DBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

const (
	entityThought    = "thought"
	entityConnection = "connection"
	entityCluster    = "cluster"
	entitySession    = "session"

	metaPK = "META"
	metaSK = "VERSION"
)

type ddbThought struct {
	PK             string  `dynamodbav:"PK"`
	SK             string  `dynamodbav:"SK"`
	EntityType     string  `dynamodbav:"EntityType"`
	Seq            int64   `dynamodbav:"Seq"`
	ThoughtID      string  `dynamodbav:"ThoughtID"`
	Content        string  `dynamodbav:"Content"`
	ContentLower   string  `dynamodbav:"ContentLower"`
	Role           string  `dynamodbav:"Role,omitempty"`
	Category       string  `dynamodbav:"Category"`
	Importance     float64 `dynamodbav:"Importance"`
	PosX           float64 `dynamodbav:"PosX"`
	PosY           float64 `dynamodbav:"PosY"`
	PosZ           float64 `dynamodbav:"PosZ"`
	CreatedAt      string  `dynamodbav:"CreatedAt"`
	LastReferenced string  `dynamodbav:"LastReferenced"`
}

type ddbConnection struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	EntityType   string  `dynamodbav:"EntityType"`
	Seq          int64   `dynamodbav:"Seq"`
	ConnectionID string  `dynamodbav:"ConnectionID"`
	FromThought  string  `dynamodbav:"FromThought"`
	ToThought    string  `dynamodbav:"ToThought"`
	Strength     float64 `dynamodbav:"Strength"`
	Reason       string  `dynamodbav:"Reason,omitempty"`
	CreatedAt    string  `dynamodbav:"CreatedAt"`
}

type ddbCluster struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	EntityType   string  `dynamodbav:"EntityType"`
	ClusterID    string  `dynamodbav:"ClusterID"`
	Name         string  `dynamodbav:"Name"`
	Category     string  `dynamodbav:"Category"`
	CenterX      float64 `dynamodbav:"CenterX"`
	CenterY      float64 `dynamodbav:"CenterY"`
	CenterZ      float64 `dynamodbav:"CenterZ"`
	ThoughtCount int     `dynamodbav:"ThoughtCount"`
	CreatedAt    string  `dynamodbav:"CreatedAt"`
}

type ddbSession struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	SessionID  string `dynamodbav:"SessionID"`
	Title      string `dynamodbav:"Title"`
	Summary    string `dynamodbav:"Summary"`
	StartedAt  string `dynamodbav:"StartedAt"`
	EndedAt    string `dynamodbav:"EndedAt"`
}

type ddbMeta struct {
	ThoughtSeq    int64 `dynamodbav:"ThoughtSeq"`
	ConnectionSeq int64 `dynamodbav:"ConnectionSeq"`
	ThoughtCount  int64 `dynamodbav:"ThoughtCount"`
}

// Store is a store.Repository on DynamoDB.
type Store struct {
	client    DBClient
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ store.Repository = (*Store)(nil)

// New creates a DynamoDB store on tableName.
func New(client DBClient, tableName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, tableName: tableName, logger: logger, now: time.Now}
}

func (s *Store) metaKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: metaPK},
		"SK": &types.AttributeValueMemberS{Value: metaSK},
	}
}

func (s *Store) readMeta(ctx context.Context, op string) (ddbMeta, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.metaKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ddbMeta{}, classify(op, err)
	}
	var meta ddbMeta
	if out.Item == nil {
		return meta, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, &meta); err != nil {
		return ddbMeta{}, pkgerrors.NewSchemaMismatchError(op, err)
	}
	return meta, nil
}

func (s *Store) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	meta, err := s.readMeta(ctx, store.OpGetVersion)
	if err != nil {
		return domain.VersionToken{}, err
	}
	return domain.VersionToken{MaxThoughtID: meta.ThoughtSeq, MaxConnectionID: meta.ConnectionSeq}, nil
}

func (s *Store) GetThoughtCount(ctx context.Context) (int, error) {
	meta, err := s.readMeta(ctx, store.OpGetThoughtCount)
	if err != nil {
		return 0, err
	}
	return int(meta.ThoughtCount), nil
}

// nextSeq atomically increments a META counter and returns its new value.
func (s *Store) nextSeq(ctx context.Context, op, attr string) (int64, error) {
	update := expression.Add(expression.Name(attr), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, pkgerrors.NewInternalError("failed to build update expression").WithCause(err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.metaKey(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, classify(op, err)
	}

	var seq int64
	if av, ok := out.Attributes[attr]; ok {
		if err := attributevalue.Unmarshal(av, &seq); err != nil {
			return 0, pkgerrors.NewSchemaMismatchError(op, err)
		}
	}
	return seq, nil
}

// scanEntities pages through every item of one entity type matching filter.
func (s *Store) scanEntities(ctx context.Context, op, entity string, filter *expression.ConditionBuilder) ([]map[string]types.AttributeValue, error) {
	cond := expression.Name("EntityType").Equal(expression.Value(entity))
	if filter != nil {
		cond = cond.And(*filter)
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to build filter expression").WithCause(err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(op, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (s *Store) scanThoughts(ctx context.Context, op string, filter *expression.ConditionBuilder) ([]domain.Thought, error) {
	items, err := s.scanEntities(ctx, op, entityThought, filter)
	if err != nil {
		return nil, err
	}
	var rows []ddbThought
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewSchemaMismatchError(op, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	thoughts := make([]domain.Thought, len(rows))
	for i, r := range rows {
		thoughts[i] = r.toDomain()
	}
	return thoughts, nil
}

func (s *Store) scanConnections(ctx context.Context, op string) ([]domain.Connection, error) {
	items, err := s.scanEntities(ctx, op, entityConnection, nil)
	if err != nil {
		return nil, err
	}
	var rows []ddbConnection
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewSchemaMismatchError(op, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	conns := make([]domain.Connection, len(rows))
	for i, r := range rows {
		conns[i] = r.toDomain()
	}
	return conns, nil
}

func (s *Store) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	return s.scanThoughts(ctx, store.OpGetAllThoughts, nil)
}

func (s *Store) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	return s.scanConnections(ctx, store.OpGetAllConnections)
}

func (s *Store) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	items, err := s.scanEntities(ctx, store.OpGetAllClusters, entityCluster, nil)
	if err != nil {
		return nil, err
	}
	var rows []ddbCluster
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewSchemaMismatchError(store.OpGetAllClusters, err)
	}
	clusters := make([]domain.Cluster, len(rows))
	for i, r := range rows {
		clusters[i] = r.toDomain()
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Category < clusters[j].Category })
	return clusters, nil
}

// GetThoughtsNear narrows the scan to the bounding cube server-side, then
// applies the exact sphere test, ordering and limit locally.
func (s *Store) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	box := expression.Name("PosX").Between(expression.Value(center.X-radius), expression.Value(center.X+radius)).
		And(expression.Name("PosY").Between(expression.Value(center.Y-radius), expression.Value(center.Y+radius))).
		And(expression.Name("PosZ").Between(expression.Value(center.Z-radius), expression.Value(center.Z+radius)))

	candidates, err := s.scanThoughts(ctx, store.OpGetThoughtsNear, &box)
	if err != nil {
		return nil, err
	}

	radiusSq := radius * radius
	near := candidates[:0]
	for _, t := range candidates {
		if t.Position.DistanceSquaredTo(center) <= radiusSq {
			near = append(near, t)
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		di, dj := near[i].Position.DistanceSquaredTo(center), near[j].Position.DistanceSquaredTo(center)
		if di != dj {
			return di < dj
		}
		return near[i].ID < near[j].ID
	})
	if limit >= 0 && len(near) > limit {
		near = near[:limit]
	}
	return near, nil
}

// GetConnectionsForThoughts filters locally; a window holds more ids than a
// DynamoDB IN clause accepts.
func (s *Store) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := s.scanConnections(ctx, store.OpGetConnectionsForThoughts)
	if err != nil {
		return nil, err
	}
	set := store.IDSet(ids)
	out := all[:0]
	for _, c := range all {
		_, from := set[c.From]
		_, to := set[c.To]
		if from && to {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) AddThought(ctx context.Context, t domain.Thought) error {
	if t.ID == "" {
		return pkgerrors.NewValidationError("thought id is required")
	}
	seq, err := s.nextSeq(ctx, store.OpAddThought, "ThoughtSeq")
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(fromThought(t, seq))
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal thought").WithCause(err)
	}
	out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:    aws.String(s.tableName),
		Item:         item,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return classify(store.OpAddThought, err)
	}

	// Replacements keep the count.
	if len(out.Attributes) == 0 {
		if _, err := s.nextSeq(ctx, store.OpAddThought, "ThoughtCount"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddConnection(ctx context.Context, c domain.Connection) error {
	if c.ID == "" {
		return pkgerrors.NewValidationError("connection id is required")
	}
	seq, err := s.nextSeq(ctx, store.OpAddConnection, "ConnectionSeq")
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(ddbConnection{
		PK:           "CONNECTION#" + c.ID,
		SK:           "CONNECTION",
		EntityType:   entityConnection,
		Seq:          seq,
		ConnectionID: c.ID,
		FromThought:  c.From,
		ToThought:    c.To,
		Strength:     c.Strength,
		Reason:       c.Reason,
		CreatedAt:    formatTime(c.CreatedAt),
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal connection").WithCause(err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return classify(store.OpAddConnection, err)
	}
	return nil
}

func (s *Store) SearchThoughts(ctx context.Context, query string) ([]domain.Thought, error) {
	filter := expression.Name("ContentLower").Contains(strings.ToLower(query))
	matches, err := s.scanThoughts(ctx, store.OpSearchThoughts, &filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Importance != matches[j].Importance {
			return matches[i].Importance > matches[j].Importance
		}
		return matches[i].LastReferenced.After(matches[j].LastReferenced)
	})
	if len(matches) > store.SearchLimit {
		matches = matches[:store.SearchLimit]
	}
	return matches, nil
}

func (s *Store) RecomputeClusters(ctx context.Context) ([]domain.Cluster, error) {
	thoughts, err := s.scanThoughts(ctx, store.OpRecomputeClusters, nil)
	if err != nil {
		return nil, err
	}
	clusters := store.ComputeClusters(thoughts, s.now().UTC())

	existing, err := s.GetAllClusters(ctx)
	if err != nil {
		return nil, err
	}
	keep := make(map[domain.Category]struct{}, len(clusters))
	for _, c := range clusters {
		keep[c.Category] = struct{}{}
		item, err := attributevalue.MarshalMap(fromCluster(c))
		if err != nil {
			return nil, pkgerrors.NewInternalError("failed to marshal cluster").WithCause(err)
		}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		}); err != nil {
			return nil, classify(store.OpRecomputeClusters, err)
		}
	}
	for _, c := range existing {
		if _, ok := keep[c.Category]; ok {
			continue
		}
		if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: "CLUSTER#" + string(c.Category)},
				"SK": &types.AttributeValueMemberS{Value: "CLUSTER"},
			},
		}); err != nil {
			return nil, classify(store.OpRecomputeClusters, err)
		}
	}
	return clusters, nil
}

func (s *Store) AddSession(ctx context.Context, session domain.Session) error {
	if session.ID == "" {
		return pkgerrors.NewValidationError("session id is required")
	}
	item, err := attributevalue.MarshalMap(ddbSession{
		PK:         "SESSION#" + session.ID,
		SK:         "SESSION",
		EntityType: entitySession,
		SessionID:  session.ID,
		Title:      session.Title,
		Summary:    session.Summary,
		StartedAt:  formatTime(session.StartedAt),
		EndedAt:    formatTime(session.EndedAt),
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to marshal session").WithCause(err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return classify(store.OpAddSession, err)
	}
	return nil
}

func (s *Store) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	items, err := s.scanEntities(ctx, store.OpGetAllSessions, entitySession, nil)
	if err != nil {
		return nil, err
	}
	var rows []ddbSession
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, pkgerrors.NewSchemaMismatchError(store.OpGetAllSessions, err)
	}
	sessions := make([]domain.Session, len(rows))
	for i, r := range rows {
		sessions[i] = domain.Session{
			ID:        r.SessionID,
			Title:     r.Title,
			Summary:   r.Summary,
			StartedAt: parseTime(r.StartedAt),
			EndedAt:   parseTime(r.EndedAt),
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.After(sessions[j].StartedAt) })
	return sessions, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

func fromThought(t domain.Thought, seq int64) ddbThought {
	last := t.LastReferenced
	if last.IsZero() {
		last = t.CreatedAt
	}
	return ddbThought{
		PK:             "THOUGHT#" + t.ID,
		SK:             "THOUGHT",
		EntityType:     entityThought,
		Seq:            seq,
		ThoughtID:      t.ID,
		Content:        t.Content,
		ContentLower:   strings.ToLower(t.Content),
		Role:           t.Role,
		Category:       string(t.Category),
		Importance:     t.Importance,
		PosX:           t.Position.X,
		PosY:           t.Position.Y,
		PosZ:           t.Position.Z,
		CreatedAt:      formatTime(t.CreatedAt),
		LastReferenced: formatTime(last),
	}
}

func (r ddbThought) toDomain() domain.Thought {
	return domain.Thought{
		ID:             r.ThoughtID,
		Content:        r.Content,
		Role:           r.Role,
		Category:       domain.Category(r.Category),
		Importance:     r.Importance,
		Position:       domain.Position{X: r.PosX, Y: r.PosY, Z: r.PosZ},
		CreatedAt:      parseTime(r.CreatedAt),
		LastReferenced: parseTime(r.LastReferenced),
	}
}

func (r ddbConnection) toDomain() domain.Connection {
	return domain.Connection{
		ID:        r.ConnectionID,
		From:      r.FromThought,
		To:        r.ToThought,
		Strength:  r.Strength,
		Reason:    r.Reason,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

func fromCluster(c domain.Cluster) ddbCluster {
	return ddbCluster{
		PK:           "CLUSTER#" + string(c.Category),
		SK:           "CLUSTER",
		EntityType:   entityCluster,
		ClusterID:    c.ID,
		Name:         c.Name,
		Category:     string(c.Category),
		CenterX:      c.Center.X,
		CenterY:      c.Center.Y,
		CenterZ:      c.Center.Z,
		ThoughtCount: c.ThoughtCount,
		CreatedAt:    formatTime(c.CreatedAt),
	}
}

func (r ddbCluster) toDomain() domain.Cluster {
	return domain.Cluster{
		ID:           r.ClusterID,
		Name:         r.Name,
		Category:     domain.Category(r.Category),
		Center:       domain.Position{X: r.CenterX, Y: r.CenterY, Z: r.CenterZ},
		ThoughtCount: r.ThoughtCount,
		CreatedAt:    parseTime(r.CreatedAt),
	}
}

// classify maps SDK errors onto the store error taxonomy. A missing table or
// a rejected expression means the deployment predates this schema.
func classify(op string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return pkgerrors.NewSchemaMismatchError(op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return pkgerrors.NewSchemaMismatchError(op, err)
	}
	return pkgerrors.NewTransientQueryError(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// String describes the store for logs.
func (s *Store) String() string {
	return fmt.Sprintf("dynamodb(%s)", s.tableName)
}

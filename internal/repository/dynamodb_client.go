package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"energy-agent/internal/domain"
)

const (
	chatTTL      = 30 * 24 * time.Hour
	keySeparator = "#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Client stores every collection in a single DynamoDB table. Plain
// collections use the collection name as partition key and the document id
// as sort key; per-user series (audits, chats) are partitioned by user.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func seriesPK(collection, userID string) string {
	return collection + keySeparator + userID
}

// seriesSK sorts lexically by time; the suffix keeps keys unique.
func seriesSK(ts time.Time, suffix string) string {
	return ts.UTC().Format(time.RFC3339Nano) + keySeparator + suffix
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// Ping verifies the table is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
	if err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

// GetDocument reads one document by id. Missing documents yield
// domain.ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	if collection == "" || strings.TrimSpace(id) == "" {
		return nil, errors.New("repository: GetDocument: collection and id are required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            keyOf(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetDocument get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, domain.ErrNotFound
	}
	doc, err := docAttr(out.Item, "doc")
	if err != nil {
		return nil, fmt.Errorf("repository: GetDocument decode: %w", err)
	}
	return doc, nil
}

// PutDocument writes or replaces a whole document under a fixed id.
func (c *Client) PutDocument(ctx context.Context, collection, id string, doc domain.Document) error {
	if collection == "" || strings.TrimSpace(id) == "" {
		return errors.New("repository: PutDocument: collection and id are required")
	}
	body, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("repository: PutDocument encode: %w", err)
	}
	item := keyOf(collection, id)
	item["collection"] = &types.AttributeValueMemberS{Value: collection}
	item["doc"] = body
	item["updatedAt"] = &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutDocument: %w", err)
	}
	return nil
}

// ListDocuments returns every document in a collection ordered by id.
func (c *Client) ListDocuments(ctx context.Context, collection string) ([]domain.Document, error) {
	if collection == "" {
		return nil, errors.New("repository: ListDocuments: collection is required")
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
	}

	var docs []domain.Document
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListDocuments query: %w", err)
		}
		for _, item := range out.Items {
			doc, err := docAttr(item, "doc")
			if err != nil {
				return nil, fmt.Errorf("repository: ListDocuments decode: %w", err)
			}
			docs = append(docs, doc)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return docs, nil
}

// PutAudit stores a new audit. ID and Timestamp are assigned when empty.
func (c *Client) PutAudit(ctx context.Context, audit domain.Audit) (domain.Audit, error) {
	if strings.TrimSpace(audit.UserID) == "" {
		return domain.Audit{}, errors.New("repository: PutAudit: user id is required")
	}
	if audit.Timestamp.IsZero() {
		audit.Timestamp = c.now().UTC()
	}
	if audit.ID == "" {
		audit.ID = ulid.Make().String()
	}
	answers, err := marshalDocument(audit.Answers)
	if err != nil {
		return domain.Audit{}, fmt.Errorf("repository: PutAudit encode: %w", err)
	}

	item := keyOf(seriesPK(domain.CollectionAudits, audit.UserID), seriesSK(audit.Timestamp, audit.ID))
	item["id"] = &types.AttributeValueMemberS{Value: audit.ID}
	item["userId"] = &types.AttributeValueMemberS{Value: audit.UserID}
	item["timestamp"] = &types.AttributeValueMemberS{Value: audit.Timestamp.UTC().Format(time.RFC3339Nano)}
	item["answers"] = answers

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Audit{}, fmt.Errorf("repository: PutAudit: %w", err)
	}
	return audit, nil
}

// LatestAudit returns the user's most recent audit or domain.ErrNotFound.
func (c *Client) LatestAudit(ctx context.Context, userID string) (domain.Audit, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: seriesPK(domain.CollectionAudits, userID)},
		},
		// Newest first; only the head is needed.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return domain.Audit{}, fmt.Errorf("repository: LatestAudit query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.Audit{}, domain.ErrNotFound
	}
	audit, err := itemToAudit(out.Items[0])
	if err != nil {
		return domain.Audit{}, fmt.Errorf("repository: LatestAudit decode: %w", err)
	}
	return audit, nil
}

// SaveChatTurn appends a transcript entry that expires after 30 days.
func (c *Client) SaveChatTurn(ctx context.Context, turn domain.ChatTurn) error {
	if turn.UserID == "" || turn.RequestID == "" {
		return errors.New("repository: SaveChatTurn: user id and request id are required")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = c.now().UTC()
	}
	item := keyOf(seriesPK(domain.CollectionChats, turn.UserID), seriesSK(turn.CreatedAt, turn.RequestID))
	item["userId"] = &types.AttributeValueMemberS{Value: turn.UserID}
	item["requestId"] = &types.AttributeValueMemberS{Value: turn.RequestID}
	item["message"] = &types.AttributeValueMemberS{Value: turn.Message}
	item["reply"] = &types.AttributeValueMemberS{Value: turn.Reply}
	item["createdAt"] = &types.AttributeValueMemberS{Value: turn.CreatedAt.UTC().Format(time.RFC3339Nano)}
	item["ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.CreatedAt.Add(chatTTL).Unix())}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SaveChatTurn: %w", err)
	}
	return nil
}

// RecentChatTurns returns up to limit transcript entries, newest first.
func (c *Client) RecentChatTurns(ctx context.Context, userID string, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: seriesPK(domain.CollectionChats, userID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: RecentChatTurns query: %w", err)
	}
	turns := make([]domain.ChatTurn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToChatTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentChatTurns decode: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func itemToAudit(item map[string]types.AttributeValue) (domain.Audit, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Audit{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Audit{}, err
	}
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return domain.Audit{}, err
	}
	answers, err := docAttr(item, "answers")
	if err != nil {
		return domain.Audit{}, err
	}
	return domain.Audit{ID: id, UserID: userID, Timestamp: ts, Answers: answers}, nil
}

func itemToChatTurn(item map[string]types.AttributeValue) (domain.ChatTurn, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	requestID, err := strAttr(item, "requestId")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	createdAt, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.ChatTurn{}, err
	}
	message, _ := strAttr(item, "message") // allow empty
	reply, _ := strAttr(item, "reply")     // allow empty
	return domain.ChatTurn{
		UserID:    userID,
		RequestID: requestID,
		Message:   message,
		Reply:     reply,
		CreatedAt: createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}

func docAttr(item map[string]types.AttributeValue, key string) (domain.Document, error) {
	v, ok := item[key]
	if !ok {
		return nil, fmt.Errorf("repository: missing attribute %q", key)
	}
	m, ok := v.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a map", key)
	}
	return unmarshalDocument(m)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"energy-agent/internal/domain"
	"energy-agent/internal/testutil"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	describeErr  error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func mustNewClient(t *testing.T, db dynamodbAPI) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestGetDocument_HappyPath(t *testing.T) {
	db := testutil.NewMemoryDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	err := c.PutDocument(ctx, domain.CollectionUsers, "test-user", domain.Document{
		"email":          "test@veridian.com",
		"location":       "CA, 90210",
		"home_size_sqft": 2000,
		"tags":           []any{"solar", true},
		"extra":          map[string]any{"note": nil, "ratio": 0.5},
	})
	require.NoError(t, err)

	doc, err := c.GetDocument(ctx, domain.CollectionUsers, "test-user")
	require.NoError(t, err)
	require.Equal(t, "test@veridian.com", doc["email"])
	require.Equal(t, json.Number("2000"), doc["home_size_sqft"])
	require.Equal(t, []any{"solar", true}, doc["tags"])
	require.Equal(t, map[string]any{"note": nil, "ratio": json.Number("0.5")}, doc["extra"])
}

func TestGetDocument_Missing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewClient(t, db)
	_, err := c.GetDocument(context.Background(), domain.CollectionUsers, "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "users", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "nobody", db.lastGetInput.Key["SK"].(*types.AttributeValueMemberS).Value)
}

func TestGetDocument_GetItemError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.GetDocument(context.Background(), domain.CollectionUsers, "abc")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
	require.Contains(t, err.Error(), "GetDocument")
}

func TestGetDocument_MalformedItem(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":  &types.AttributeValueMemberS{Value: "users"},
		"SK":  &types.AttributeValueMemberS{Value: "abc"},
		"doc": &types.AttributeValueMemberS{Value: "not a map"},
	}}}
	c := mustNewClient(t, db)
	_, err := c.GetDocument(context.Background(), domain.CollectionUsers, "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a map")
}

func TestGetDocument_EmptyID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.GetDocument(context.Background(), domain.CollectionUsers, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestPutDocument_OverwritesExisting(t *testing.T) {
	db := testutil.NewMemoryDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	require.NoError(t, c.PutDocument(ctx, domain.CollectionRebates, "r1", domain.Document{"name": "old", "stale": true}))
	require.NoError(t, c.PutDocument(ctx, domain.CollectionRebates, "r1", domain.Document{"name": "new"}))

	doc, err := c.GetDocument(ctx, domain.CollectionRebates, "r1")
	require.NoError(t, err)
	require.Equal(t, domain.Document{"name": "new"}, doc)
	require.Equal(t, 1, db.Len(domain.CollectionRebates))
}

func TestPutDocument_UnsupportedValue(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.PutDocument(context.Background(), domain.CollectionUsers, "abc", domain.Document{"ch": make(chan int)})
	var unsupported *attributevalue.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	require.Nil(t, db.lastPutInput)
}

func TestPutDocument_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)
	err := c.PutDocument(context.Background(), domain.CollectionUsers, "abc", domain.Document{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "PutDocument")
}

func TestListDocuments_FollowsPages(t *testing.T) {
	db := testutil.NewMemoryDynamo()
	db.PageSize = 2
	c := mustNewClient(t, db)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, c.PutDocument(ctx, domain.CollectionContractors, id, domain.Document{"id": id}))
	}

	docs, err := c.ListDocuments(ctx, domain.CollectionContractors)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.String("id"))
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
}

func TestListDocuments_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)
	_, err := c.ListDocuments(context.Background(), domain.CollectionRebates)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ListDocuments")
}

func TestLatestAudit_ReturnsNewest(t *testing.T) {
	db := testutil.NewMemoryDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := c.PutAudit(ctx, domain.Audit{UserID: "u1", Timestamp: base, Answers: map[string]any{"insulation": "none"}})
	require.NoError(t, err)
	_, err = c.PutAudit(ctx, domain.Audit{UserID: "u1", Timestamp: base.Add(time.Hour), Answers: map[string]any{"insulation": "R3"}})
	require.NoError(t, err)
	_, err = c.PutAudit(ctx, domain.Audit{UserID: "u2", Timestamp: base.Add(2 * time.Hour), Answers: map[string]any{"insulation": "other"}})
	require.NoError(t, err)

	latest, err := c.LatestAudit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", latest.UserID)
	require.Equal(t, "R3", latest.Answers["insulation"])
	require.True(t, latest.Timestamp.Equal(base.Add(time.Hour)))
	require.NotEmpty(t, latest.ID)
}

func TestLatestAudit_QueryShape(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db)
	_, err := c.LatestAudit(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(1), *db.lastQueryIn.Limit)
	require.Equal(t, "audits#u1", db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
}

func TestLatestAudit_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("throttled")}
	c := mustNewClient(t, db)
	_, err := c.LatestAudit(context.Background(), "u1")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestPutAudit_AssignsIDAndTimestamp(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	audit, err := c.PutAudit(context.Background(), domain.Audit{UserID: "u1", Answers: map[string]any{}})
	require.NoError(t, err)
	require.NotEmpty(t, audit.ID)
	require.Equal(t, fixed, audit.Timestamp)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "2025-01-02T03:04:05Z#"+audit.ID, db.lastPutInput.Item["SK"].(*types.AttributeValueMemberS).Value)
}

func TestPutAudit_MissingUser(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.PutAudit(context.Background(), domain.Audit{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "user id is required")
}

func TestSaveChatTurn_SetsTTL(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	err := c.SaveChatTurn(context.Background(), domain.ChatTurn{
		UserID: "u1", RequestID: "req-1", Message: "hi", Reply: "hello", CreatedAt: created,
	})
	require.NoError(t, err)
	ttl := db.lastPutInput.Item["ttl"].(*types.AttributeValueMemberN).Value
	require.Equal(t, "1751328000", ttl)
	require.Equal(t, "chats#u1", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
}

func TestSaveChatTurn_MissingKeys(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.SaveChatTurn(context.Background(), domain.ChatTurn{UserID: "u1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestRecentChatTurns_NewestFirst(t *testing.T) {
	db := testutil.NewMemoryDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, c.SaveChatTurn(ctx, domain.ChatTurn{
			UserID: "u1", RequestID: msg, Message: msg, Reply: "ok", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	turns, err := c.RecentChatTurns(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "third", turns[0].Message)
	require.Equal(t, "second", turns[1].Message)
}

func TestRecentChatTurns_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "chats#u1"},
		"SK": &types.AttributeValueMemberS{Value: "ts#r"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	c := mustNewClient(t, db)
	_, err := c.RecentChatTurns(context.Background(), "u1", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "userId")
	require.Equal(t, int32(20), *db.lastQueryIn.Limit)
}

func TestPing(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.NoError(t, c.Ping(context.Background()))

	c = mustNewClient(t, &fakeDynamo{describeErr: errors.New("no table")})
	err := c.Ping(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Ping")
}

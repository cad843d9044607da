// Package testutil holds in-memory fakes shared across package tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryDynamo is a single-table DynamoDB fake keyed by string PK/SK.
// Query supports "PK = :pk" key conditions, sort direction, Limit and
// paging through ExclusiveStartKey.
type MemoryDynamo struct {
	// PageSize caps items per Query page when no Limit is given.
	PageSize int

	GetErr   error
	PutErr   error
	QueryErr error
	PingErr  error

	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue
	puts  int
}

// NewMemoryDynamo returns an empty table.
func NewMemoryDynamo() *MemoryDynamo {
	return &MemoryDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

// Len reports the number of items stored under pk.
func (m *MemoryDynamo) Len(pk string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items[pk])
}

// Puts reports how many PutItem calls succeeded.
func (m *MemoryDynamo) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *MemoryDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	pk, sk, err := keyStrings(in.Key)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[pk][sk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *MemoryDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	pk, sk, err := keyStrings(in.Item)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]map[string]map[string]types.AttributeValue)
	}
	if _, exists := m.items[pk][sk]; exists && aws.ToString(in.ConditionExpression) != "" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("item exists")}
	}
	if m.items[pk] == nil {
		m.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	m.items[pk][sk] = copyItem(in.Item)
	m.puts++
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MemoryDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	pkAttr, ok := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("memory dynamo: :pk value is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	part := m.items[pkAttr.Value]
	keys := make([]string, 0, len(part))
	for sk := range part {
		keys = append(keys, sk)
	}
	sort.Strings(keys)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if len(in.ExclusiveStartKey) > 0 {
		_, start, err := keyStrings(in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, sk := range keys {
			if sk == start {
				keys = keys[i+1:]
				break
			}
		}
	}

	limit := m.PageSize
	if in.Limit != nil {
		limit = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		last := part[keys[len(keys)-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	for _, sk := range keys {
		out.Items = append(out.Items, copyItem(part[sk]))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (m *MemoryDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.PingErr != nil {
		return nil, m.PingErr
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func keyStrings(item map[string]types.AttributeValue) (string, string, error) {
	pk, ok := item["PK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", "", errors.New("memory dynamo: PK must be a string")
	}
	sk, ok := item["SK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", "", errors.New("memory dynamo: SK must be a string")
	}
	return pk.Value, sk.Value, nil
}

// Attribute values are immutable in practice so a shallow copy of the map
// is enough to keep callers from mutating stored items.
func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

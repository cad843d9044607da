package repository

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"energy-agent/internal/domain"
)

// marshalDocument converts a JSON-shaped map into a DynamoDB map attribute.
// json.Number values are stored as N attributes with their exact text.
func marshalDocument(doc map[string]any) (*types.AttributeValueMemberM, error) {
	m, err := attributevalue.MarshalMap(toAttributeNumbers(doc))
	if err != nil {
		return nil, err
	}
	return &types.AttributeValueMemberM{Value: m}, nil
}

// unmarshalDocument decodes a map attribute. Numbers come back as
// json.Number so they encode to JSON unchanged.
func unmarshalDocument(m *types.AttributeValueMemberM) (domain.Document, error) {
	var raw map[string]any
	err := attributevalue.UnmarshalMapWithOptions(m.Value, &raw, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, err
	}
	doc := make(domain.Document, len(raw))
	for k, v := range raw {
		doc[k] = fromAttributeNumbers(v)
	}
	return doc, nil
}

func toAttributeNumbers(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = toAttributeNumber(v)
	}
	return out
}

func toAttributeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		return attributevalue.Number(t)
	case domain.Document:
		return toAttributeNumbers(t)
	case map[string]any:
		return toAttributeNumbers(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toAttributeNumber(e)
		}
		return out
	default:
		return v
	}
}

func fromAttributeNumbers(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromAttributeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromAttributeNumbers(e)
		}
		return out
	case []attributevalue.Number:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = json.Number(n)
		}
		return out
	default:
		return v
	}
}

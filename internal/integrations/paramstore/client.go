// Package paramstore reads credentials from AWS Systems Manager Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/tidwall/gjson"
)

// ErrParameterNotFound is returned when the named parameter does not exist.
var ErrParameterNotFound = errors.New("paramstore: parameter not found")

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client wraps an AWS SSM API for secret retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of a parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %q", ErrParameterNotFound, name)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// GetSecret reads a parameter that holds either a bare secret or a JSON
// object. For objects the string at field is returned.
func (c *Client) GetSecret(ctx context.Context, name, field string) (string, error) {
	raw, err := c.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)

	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		if raw == "" {
			return "", errors.New("paramstore: secret is empty")
		}
		return raw, nil
	}
	// Map lookup keeps field names containing dots literal.
	v := gjson.Parse(raw).Map()[field]
	if !v.Exists() || v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return "", fmt.Errorf("paramstore: secret %q has no %q field", name, field)
	}
	return strings.TrimSpace(v.Str), nil
}

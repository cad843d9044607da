package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"energy-agent/internal/config"
	"energy-agent/internal/ratelimit"
)

// LoadClients builds the AWS and Redis clients described by cfg.
func LoadClients(ctx context.Context, cfg *config.Config) (Clients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return Clients{}, fmt.Errorf("app: load AWS config: %w", err)
	}

	clients := Clients{
		Dynamo: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		}),
	}
	if cfg.ModelTokenParam != "" {
		clients.SSM = ssm.NewFromConfig(awsCfg)
	}
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return Clients{}, fmt.Errorf("app: %w", err)
		}
		clients.Redis = rdb
	}
	return clients, nil
}

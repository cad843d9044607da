// Command seed loads the built-in rebate, contractor and test-user catalogs
// into the document table.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v10"

	"energy-agent/internal/repository"
	"energy-agent/internal/seed"
)

type seedConfig struct {
	DocumentTable    string `env:"DOCUMENT_TABLE"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cfg seedConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	cmd := newRootCmd(cfg.DocumentTable, func(ctx context.Context, table string) (seed.Writer, error) {
		return dynamoWriter(ctx, table, cfg.DynamoDBEndpoint)
	}, logger)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func dynamoWriter(ctx context.Context, table, endpoint string) (seed.Writer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	api := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return repository.New(api, table)
}

package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/flowline/runtime/pkg/flowline/config"
)

// NewAnthropicSDKProviderBedrock builds an AnthropicSDKProvider fronted by
// AWS Bedrock, mirroring a three-tier credential resolution: explicit
// access keys, then a named profile, then the default AWS credential
// chain (environment, IAM role).
//
// This constructor is genuinely optional: deployments that talk to the
// direct Anthropic API use NewAnthropicSDKProvider and never touch this
// path or its AWS dependency.
func NewAnthropicSDKProviderBedrock(ctx context.Context, cfg config.Config) (*AnthropicSDKProvider, error) {
	region := cfg.String("region", "us-east-1")

	var awsCfg aws.Config
	var err error

	accessKey := cfg.String("accessKeyId", "")
	secretKey := cfg.String("secretAccessKey", "")
	profile := cfg.String("profile", "")

	switch {
	case accessKey != "" && secretKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				accessKey, secretKey, cfg.String("sessionToken", ""),
			)),
		)
	case profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("load AWS config for bedrock provider: %w", err)
	}

	client := anthropic.NewClient(bedrock.WithConfig(awsCfg))

	return &AnthropicSDKProvider{
		client:      client,
		model:       cfg.String("model", "anthropic.claude-sonnet-4-5-v1:0"),
		maxTokens:   int64(cfg.Int("maxTokens", 4096)),
		temperature: cfg.Float("temperature", 1.0),
	}, nil
}

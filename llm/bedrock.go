//go:build bedrock

package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockProvider is a synchronous Amazon Bedrock Converse backend,
// selected by building with -tags bedrock. Authentication follows the AWS
// SDK v2 credential chain (env vars, shared profile, IAM role).
type BedrockProvider struct {
	client *bedrockruntime.Client
}

// NewBedrockProvider builds a Provider against the Bedrock Converse API.
// cfg.BaseURL is unused; cfg.Extra["region"] and cfg.Extra["profile"]
// select the AWS region/profile, falling back to the SDK's defaults.
func NewBedrockProvider(cfg Config) (Provider, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := cfg.Extra["region"]; region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if profile := cfg.Extra["profile"]; profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, ErrRequestFailed.WithDetails(err.Error())
	}

	return &BedrockProvider{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Complete issues a single-turn Converse call and returns the first text
// content block of the assistant's reply.
func (b *BedrockProvider) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	temp32 := float32(temperature)

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		},
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: user}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{Temperature: &temp32},
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("llm: bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", ErrResponseInvalid
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			return text.Value, nil
		}
	}
	return "", ErrResponseInvalid
}

// ID identifies this provider for routing/logging.
func (b *BedrockProvider) ID() string { return "bedrock" }

// Close is a no-op; the Bedrock SDK client holds no resources to release.
func (b *BedrockProvider) Close() error { return nil }

func init() {
	DefaultFactory.Register("bedrock", NewBedrockProvider)
}

package events

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

// LoadAWSConfig builds the SDK config for the SQS publisher. Static keys win
// over the default chain when both are set.
func LoadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

// NewHandler assembles the delivery fanout: redis pub/sub always, SQS when a
// queue is configured.
func NewHandler(ctx context.Context, cfg config.Config, publishers ...Handler) (Fanout, error) {
	fanout := Fanout(publishers)
	if cfg.SQSQueueURL == "" {
		return fanout, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return append(fanout, NewSQSPublisher(awsCfg, cfg.SQSQueueURL, cfg.AWSEndpointURL)), nil
}

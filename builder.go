package apihub

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
)

// HandlerFactory is called once per cold start to set up SDK clients and
// return the entry point.
type HandlerFactory[T any, U any] func(awsConfig aws.Config, hub *Hub) Handler[T, U]

type Builder[T any, U any] struct {
	ctx          context.Context
	awsConfig    aws.Config
	transformers Transformers
	events       Events
	logger       *slog.Logger
	getHandler   HandlerFactory[T, U]
}

func Build[T any, U any](getHandler HandlerFactory[T, U]) *Builder[T, U] {
	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(so *retry.StandardOptions) {
			// The token bucket covers the whole client lifetime, not a single
			// call, so a large number keeps the client from running dry.
			so.RateLimiter = ratelimit.NewTokenRateLimit(1_000_000)
		})
	}), config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired))
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &Builder[T, U]{
		ctx:          ctx,
		awsConfig:    cfg,
		transformers: DefaultTransformers(),
		getHandler:   getHandler,
	}
}

func (b *Builder[T, U]) WithTransformers(t Transformers) *Builder[T, U] {
	b.transformers = t
	return b
}

// WithEvents sets the hub events. Without an OnAPIIssue callback, issues
// are published to ISSUE_TOPIC_ARN when that is set.
func (b *Builder[T, U]) WithEvents(e Events) *Builder[T, U] {
	b.events = e
	return b
}

func (b *Builder[T, U]) WithLogger(logger *slog.Logger) *Builder[T, U] {
	b.logger = logger
	return b
}

func (b *Builder[T, U]) hub() *Hub {
	settings, err := LoadSettings()
	if err != nil {
		log.Fatal(err)
	}

	events := b.events
	if events.OnAPIIssue == nil && settings.IssueTopicARN != "" {
		events.OnAPIIssue = SNSIssueNotifier(sns.NewFromConfig(b.awsConfig), settings.IssueTopicARN)
	}

	hub, err := New(Config{
		Transformers: b.transformers,
		Events:       events,
		Settings:     settings,
		Logger:       b.logger,
	})
	if err != nil {
		log.Fatal(err)
	}
	return hub
}

func (b *Builder[T, U]) Start() {
	if IsLambda() {
		awsv2.AWSV2Instrumentor(&b.awsConfig.APIOptions)
		handlerFn := b.getHandler(b.awsConfig, b.hub())
		lambda.Start(handlerFn)
		return
	}

	startLambdaLocally(b.ctx, b.awsConfig, b)
}

// BuildAndStart builds the hub from the environment, instruments the AWS
// SDK and starts the lambda.
func BuildAndStart[T any, U any](getHandler HandlerFactory[T, U]) {
	Build(getHandler).Start()
}

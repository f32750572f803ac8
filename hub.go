package apihub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/kelseyhightower/envconfig"
)

// Settings are read from the environment once at start-up.
type Settings struct {
	Stage           string `envconfig:"STAGE" default:"dev"`
	Region          string `envconfig:"AWS_REGION" default:"eu-central-1"`
	AppName         string `envconfig:"APP_NAME"`
	IssueTopicARN   string `envconfig:"ISSUE_TOPIC_ARN"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE"`
	DebugPort       string `envconfig:"LAMBDA_DEBUG_PORT" default:"8000"`
	FunctionName    string `envconfig:"LAMBDA_FUNCTION_NAME"`
}

func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to load settings from environment: %w", err)
	}
	return s, nil
}

func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Transformers struct {
	// CreateGatewayResponse turns the final Response into the API Gateway result.
	CreateGatewayResponse func(r Response) events.APIGatewayV2HTTPResponse
	// ResponseFromUnknownError answers unknown errors and the causes of issues.
	ResponseFromUnknownError func(err error) Response
}

type Events struct {
	// OnAPIIssue is called once for every issue reaching an entry point.
	// Returning an error (or panicking) does not change the response.
	OnAPIIssue func(ctx context.Context, issue *Issue) error
	// ErrorResponseShouldLogIssue decides whether an error response is logged
	// as "API ERROR". Nil never logs.
	ErrorResponseShouldLogIssue func(r Response) bool
}

type Config struct {
	Transformers Transformers
	Events       Events
	Settings     Settings
	// Logger is where flushed log buffers are written. Defaults to a JSON
	// logger on stdout at Settings.LogLevel.
	Logger *slog.Logger
}

// Hub holds the boundary configuration shared by every entry point of a
// function. It is read-only once built.
type Hub struct {
	transformers Transformers
	events       Events
	settings     Settings
	logger       *slog.Logger
}

var errHubNotConfigured = errors.New("apihub has not been configured")

func New(cfg Config) (*Hub, error) {
	if cfg.Transformers.CreateGatewayResponse == nil {
		return nil, fmt.Errorf("%w: Transformers.CreateGatewayResponse is required", errHubNotConfigured)
	}
	if cfg.Transformers.ResponseFromUnknownError == nil {
		return nil, fmt.Errorf("%w: Transformers.ResponseFromUnknownError is required", errHubNotConfigured)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger(cfg.Settings.SlogLevel())
	}

	return &Hub{
		transformers: cfg.Transformers,
		events:       cfg.Events,
		settings:     cfg.Settings,
		logger:       logger,
	}, nil
}

// MustNew is New for use in main; it panics on an invalid Config.
func MustNew(cfg Config) *Hub {
	h, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *Hub) Settings() Settings {
	return h.settings
}

package apihub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

type SNSPublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSAPI is the part of *sns.Client the Notifier needs.
type SNSAPI interface {
	SNSPublishAPI
	CreatePlatformEndpoint(ctx context.Context, params *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	SetEndpointAttributes(ctx context.Context, params *sns.SetEndpointAttributesInput, optFns ...func(*sns.Options)) (*sns.SetEndpointAttributesOutput, error)
	DeleteEndpoint(ctx context.Context, params *sns.DeleteEndpointInput, optFns ...func(*sns.Options)) (*sns.DeleteEndpointOutput, error)
}

type Notifier struct {
	client SNSAPI
}

func NewNotifier(client SNSAPI) *Notifier {
	return &Notifier{client: client}
}

func withSNSLogger(ctx context.Context) func(*sns.Options) {
	return func(o *sns.Options) {
		o.Logger = LogBufferFrom(ctx)
	}
}

// PublishToTopic publishes a plain message. An empty subject is omitted.
func (n *Notifier) PublishToTopic(ctx context.Context, topicARN, subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(message),
	}
	if subject != "" {
		input.Subject = aws.String(subject)
	}
	_, err := n.client.Publish(ctx, input, withSNSLogger(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topicARN, err)
	}
	return nil
}

// PublishToTarget publishes a per-protocol JSON message structure to an
// endpoint or topic.
func (n *Notifier) PublishToTarget(ctx context.Context, targetARN string, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(targetARN),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	}, withSNSLogger(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to target %s: %w", targetARN, err)
	}
	return nil
}

type PushNotification struct {
	EndpointARN string
	TitleKey    string
	MessageKey  string
	MessageArgs []string
	BadgeCount  int
	Data        map[string]any
}

const androidChannelID = "game_notifications"

func (p PushNotification) apns() map[string]any {
	alert := map[string]any{"loc-key": p.MessageKey}
	if p.TitleKey != "" {
		alert["title-loc-key"] = p.TitleKey
	}
	if len(p.MessageArgs) > 0 {
		alert["loc-args"] = p.MessageArgs
	}
	aps := map[string]any{"alert": alert, "sound": "default"}
	if p.BadgeCount > 0 {
		aps["badge"] = p.BadgeCount
	}

	out := map[string]any{"aps": aps}
	if p.Data != nil {
		out["data"] = p.Data
	}
	// firebase messaging on iOS ignores APNS pushes without a message id
	out["gcm.message_id"] = uuid.NewString()
	return out
}

func (p PushNotification) gcm() map[string]any {
	notification := map[string]any{
		"body_loc_key":       p.MessageKey,
		"sound":              "default",
		"priority":           "high",
		"android_channel_id": androidChannelID,
		"icon":               "ic_notification",
	}
	if p.TitleKey != "" {
		notification["title_loc_key"] = p.TitleKey
	}
	if len(p.MessageArgs) > 0 {
		notification["body_loc_args"] = p.MessageArgs
	}

	out := map[string]any{
		"notification": notification,
		"android": map[string]any{
			"notification": map[string]any{
				"channel_id": androidChannelID,
				"priority":   "high",
				"icon":       "ic_notification",
			},
		},
	}
	if p.Data != nil {
		out["data"] = p.Data
	}
	return out
}

func (p PushNotification) message() (string, error) {
	apns, err := json.Marshal(p.apns())
	if err != nil {
		return "", err
	}
	gcm, err := json.Marshal(p.gcm())
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(map[string]string{
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
		"GCM":          string(gcm),
	})
	return string(b), err
}

// SendPushNotification delivers p to a platform endpoint. A disabled
// endpoint is only logged as a warning.
func (n *Notifier) SendPushNotification(ctx context.Context, p PushNotification) error {
	logs := LogBufferFrom(ctx)

	message, err := p.message()
	if err != nil {
		return fmt.Errorf("failed to build push notification: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(p.EndpointARN),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	}, withSNSLogger(ctx))
	if err != nil {
		var disabled *types.EndpointDisabledException
		if errors.As(err, &disabled) {
			logs.Warn("Push notification endpoint is disabled", "endpointArn", p.EndpointARN, "error", err.Error())
			return nil
		}
		logs.Issue("Failed to send push notification", "endpointArn", p.EndpointARN, "error", err.Error())
		return err
	}
	return nil
}

// CreatePushDevice registers a device token and returns the endpoint ARN.
func (n *Notifier) CreatePushDevice(ctx context.Context, platformApplicationARN string, token string) (string, error) {
	logs := LogBufferFrom(ctx)

	out, err := n.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(platformApplicationARN),
		Token:                  aws.String(token),
	}, withSNSLogger(ctx))
	if err == nil && aws.ToString(out.EndpointArn) == "" {
		err = errors.New("EndpointArn is not defined")
	}
	if err != nil {
		logs.Issue("Failed to create push notification device", "error", err.Error())
		return "", err
	}
	return aws.ToString(out.EndpointArn), nil
}

// UpdatePushDevice replaces the token of an endpoint and re-enables it. A
// device changing platform needs to be deleted and created again instead.
func (n *Notifier) UpdatePushDevice(ctx context.Context, endpointARN string, token string) error {
	_, err := n.client.SetEndpointAttributes(ctx, &sns.SetEndpointAttributesInput{
		EndpointArn: aws.String(endpointARN),
		Attributes: map[string]string{
			"Token":   token,
			"Enabled": "true",
		},
	}, withSNSLogger(ctx))
	if err != nil {
		LogBufferFrom(ctx).Issue("Failed to update push notification device", "endpointArn", endpointARN, "error", err.Error())
		return err
	}
	return nil
}

func (n *Notifier) DeletePushDevice(ctx context.Context, endpointARN string) error {
	_, err := n.client.DeleteEndpoint(ctx, &sns.DeleteEndpointInput{
		EndpointArn: aws.String(endpointARN),
	}, withSNSLogger(ctx))
	if err != nil {
		LogBufferFrom(ctx).Issue("Failed to delete push notification device", "endpointArn", endpointARN, "error", err.Error())
		return err
	}
	return nil
}

type issueReport struct {
	Message      string `json:"message"`
	Cause        string `json:"cause"`
	FunctionName string `json:"functionName,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// SNSIssueNotifier returns an OnAPIIssue callback publishing every issue to
// an SNS topic.
func SNSIssueNotifier(client SNSPublishAPI, topicARN string) func(ctx context.Context, issue *Issue) error {
	return func(ctx context.Context, issue *Issue) error {
		report := issueReport{
			Message:      issue.Message,
			Cause:        issue.cause().Error(),
			FunctionName: lambdacontext.FunctionName,
		}
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			report.RequestID = lc.AwsRequestID
		}

		b, err := json.Marshal(report)
		if err != nil {
			return err
		}

		subject := "API issue"
		if report.FunctionName != "" {
			subject = "API issue in " + report.FunctionName
		}
		// SNS subjects are limited to 100 characters
		if len(subject) > 100 {
			subject = subject[:100]
		}

		_, err = client.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(topicARN),
			Subject:  aws.String(subject),
			Message:  aws.String(string(b)),
		})
		if err != nil {
			return fmt.Errorf("failed to publish issue to %s: %w", topicARN, err)
		}
		return nil
	}
}

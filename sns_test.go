package apihub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNSClient struct {
	published  []*sns.PublishInput
	publishErr error

	created   *sns.CreatePlatformEndpointInput
	createOut *sns.CreatePlatformEndpointOutput
	updated   *sns.SetEndpointAttributesInput
	deleted   *sns.DeleteEndpointInput
	err       error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, params)
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func (f *fakeSNSClient) CreatePlatformEndpoint(_ context.Context, params *sns.CreatePlatformEndpointInput, _ ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error) {
	f.created = params
	return f.createOut, f.err
}

func (f *fakeSNSClient) SetEndpointAttributes(_ context.Context, params *sns.SetEndpointAttributesInput, _ ...func(*sns.Options)) (*sns.SetEndpointAttributesOutput, error) {
	f.updated = params
	return &sns.SetEndpointAttributesOutput{}, f.err
}

func (f *fakeSNSClient) DeleteEndpoint(_ context.Context, params *sns.DeleteEndpointInput, _ ...func(*sns.Options)) (*sns.DeleteEndpointOutput, error) {
	f.deleted = params
	return &sns.DeleteEndpointOutput{}, f.err
}

func TestNotifierPublish(t *testing.T) {
	client := &fakeSNSClient{}
	n := NewNotifier(client)

	require.NoError(t, n.PublishToTopic(t.Context(), "arn:topic", "", "hello"))
	require.NoError(t, n.PublishToTarget(t.Context(), "arn:target", `{"default":"hi"}`))

	require.Len(t, client.published, 2)
	assert.Equal(t, "arn:topic", aws.ToString(client.published[0].TopicArn))
	assert.Nil(t, client.published[0].Subject)
	assert.Equal(t, "json", aws.ToString(client.published[1].MessageStructure))
	assert.Equal(t, "arn:target", aws.ToString(client.published[1].TargetArn))
}

func TestSendPushNotification(t *testing.T) {
	client := &fakeSNSClient{}
	n := NewNotifier(client)

	err := n.SendPushNotification(t.Context(), PushNotification{
		EndpointARN: "arn:endpoint",
		TitleKey:    "turn_title",
		MessageKey:  "turn_body",
		MessageArgs: []string{"Chess"},
		BadgeCount:  2,
		Data:        map[string]any{"gameId": "g1"},
	})
	require.NoError(t, err)
	require.Len(t, client.published, 1)

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.published[0].Message)), &envelope))
	assert.Equal(t, envelope["APNS"], envelope["APNS_SANDBOX"])

	var apns map[string]any
	require.NoError(t, json.Unmarshal([]byte(envelope["APNS"]), &apns))
	aps := apns["aps"].(map[string]any)
	alert := aps["alert"].(map[string]any)
	assert.Equal(t, "turn_body", alert["loc-key"])
	assert.Equal(t, "turn_title", alert["title-loc-key"])
	assert.Equal(t, float64(2), aps["badge"])
	assert.NotEmpty(t, apns["gcm.message_id"])

	var gcm map[string]any
	require.NoError(t, json.Unmarshal([]byte(envelope["GCM"]), &gcm))
	notification := gcm["notification"].(map[string]any)
	assert.Equal(t, "turn_body", notification["body_loc_key"])
	assert.Equal(t, []any{"Chess"}, notification["body_loc_args"])
	assert.Equal(t, map[string]any{"gameId": "g1"}, gcm["data"])
}

func TestSendPushNotificationErrors(t *testing.T) {
	t.Run("disabled endpoint is a warning", func(t *testing.T) {
		hub, buf := newTestHub(t, Config{})
		ctx := hub.newContext(t.Context())
		client := &fakeSNSClient{publishErr: &types.EndpointDisabledException{Message: aws.String("disabled")}}

		err := NewNotifier(client).SendPushNotification(ctx, PushNotification{EndpointARN: "arn:endpoint", MessageKey: "k"})
		assert.NoError(t, err)
		assert.Empty(t, buf.String())
		assert.Equal(t, 1, ctx.Logs().Len())
	})

	t.Run("other errors are issues", func(t *testing.T) {
		hub, buf := newTestHub(t, Config{})
		ctx := hub.newContext(t.Context())
		failure := errors.New("throttled")
		client := &fakeSNSClient{publishErr: failure}

		err := NewNotifier(client).SendPushNotification(ctx, PushNotification{EndpointARN: "arn:endpoint", MessageKey: "k"})
		assert.Same(t, failure, err)
		assert.Len(t, issueLines(readLogLines(t, buf)), 1)
	})
}

func TestPushDevices(t *testing.T) {
	client := &fakeSNSClient{createOut: &sns.CreatePlatformEndpointOutput{EndpointArn: aws.String("arn:endpoint")}}
	n := NewNotifier(client)

	arn, err := n.CreatePushDevice(t.Context(), "arn:app", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "arn:endpoint", arn)
	assert.Equal(t, "token-1", aws.ToString(client.created.Token))

	require.NoError(t, n.UpdatePushDevice(t.Context(), arn, "token-2"))
	assert.Equal(t, map[string]string{"Token": "token-2", "Enabled": "true"}, client.updated.Attributes)

	require.NoError(t, n.DeletePushDevice(t.Context(), arn))
	assert.Equal(t, arn, aws.ToString(client.deleted.EndpointArn))

	client.createOut = &sns.CreatePlatformEndpointOutput{}
	_, err = n.CreatePushDevice(t.Context(), "arn:app", "token-3")
	assert.Error(t, err)
}

func TestSNSIssueNotifier(t *testing.T) {
	client := &fakeSNSClient{}
	notify := SNSIssueNotifier(client, "arn:issues")

	require.NoError(t, notify(t.Context(), NewIssue("game without owner", errors.New("owner missing"))))
	require.Len(t, client.published, 1)
	assert.Equal(t, "arn:issues", aws.ToString(client.published[0].TopicArn))

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.published[0].Message)), &report))
	assert.Equal(t, "game without owner", report["message"])
	assert.Equal(t, "owner missing", report["cause"])

	require.NoError(t, notify(t.Context(), &Issue{Message: "seat map missing"}))
	require.Len(t, client.published, 2)
	report = nil
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.published[1].Message)), &report))
	assert.Equal(t, "seat map missing", report["cause"])

	client.publishErr = errors.New("sns down")
	assert.Error(t, notify(t.Context(), NewIssue("again", nil)))
}

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jrsteele09/claimed-identity-cri/audit"
	fakepublisher "github.com/jrsteele09/claimed-identity-cri/audit/publisherfakes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestEmitter_Emit(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	pub := fakepublisher.NewFakePublisher()
	e := audit.NewEmitter(pub, "IPV_CLAIMED_IDENTITY_CRI", "https://cri.example", audit.WithNowFunc(func() time.Time { return now }))

	e.Emit(context.Background(), audit.EventStart, audit.User{SessionID: "s-1", GovukSigninJourneyID: "j-1"}, nil)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, "IPV_CLAIMED_IDENTITY_CRI_START", events[0].EventName)
	require.Equal(t, int64(1_700_000_000), events[0].Timestamp)
	require.Equal(t, int64(1_700_000_000_123), events[0].EventTimestampMs)
	require.Equal(t, "https://cri.example", events[0].ComponentID)
	require.Equal(t, "s-1", events[0].User.SessionID)
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	pub := fakepublisher.NewFakePublisher()
	pub.Err = errors.New("queue down")
	var failed []string
	e := audit.NewEmitter(pub, "P", "c", audit.WithFailureHook(func(name string) { failed = append(failed, name) }))

	require.NotPanics(t, func() {
		e.Emit(context.Background(), audit.EventEnd, audit.User{}, nil)
	})
	require.Equal(t, []string{"P_END"}, failed)

	var nilEmitter *audit.Emitter
	require.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), audit.EventEnd, audit.User{}, nil)
	})
}

func TestSQSPublisher(t *testing.T) {
	client := &fakeSQS{}
	p := audit.NewSQSPublisher(client, "https://sqs.eu-west-2.amazonaws.com/1/audit")

	err := p.Publish(context.Background(), audit.Event{
		EventName:  "P_VC_ISSUED",
		User:       audit.User{SessionID: "s-1", IPAddress: "203.0.113.1"},
		Extensions: map[string]any{"iss": "https://cri.example"},
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	require.Equal(t, "https://sqs.eu-west-2.amazonaws.com/1/audit", aws.ToString(client.inputs[0].QueueUrl))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.inputs[0].MessageBody)), &body))
	require.Equal(t, "P_VC_ISSUED", body["event_name"])
	require.Equal(t, "203.0.113.1", body["user"].(map[string]any)["ip_address"])
	require.Equal(t, "https://cri.example", body["extensions"].(map[string]any)["iss"])

	client.err = errors.New("throttled")
	require.Error(t, p.Publish(context.Background(), audit.Event{EventName: "X"}))
}

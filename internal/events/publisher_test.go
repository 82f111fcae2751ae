package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "clinic.events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev, err := New(AppointmentCanceled, uuid.New(), map[string]string{"by": "patient"})
	require.NoError(t, err)
	ev.ID = 42

	require.NoError(t, NewRedisPublisher(client, "clinic.events").Handle(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, int64(42), got.ID)
		assert.Equal(t, AppointmentCanceled, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type stubSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (s *stubSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher(t *testing.T) {
	stub := &stubSQS{}
	p := &SQSPublisher{client: stub, queueURL: "https://sqs.local/000/clinic-events"}

	ev, err := New(AppointmentRescheduled, uuid.New(), map[string]string{"scheduled_at": "2026-10-26T09:30:00Z"})
	require.NoError(t, err)

	require.NoError(t, p.Handle(context.Background(), ev))
	require.NotNil(t, stub.input)
	assert.Equal(t, "https://sqs.local/000/clinic-events", aws.ToString(stub.input.QueueUrl))
	assert.Equal(t, "appointment.rescheduled", aws.ToString(stub.input.MessageAttributes["event_type"].StringValue))
	assert.Contains(t, aws.ToString(stub.input.MessageBody), `"type":"appointment.rescheduled"`)
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &stubSQS{}
	bad := &stubSQS{err: errors.New("throttled")}
	f := Fanout{
		&SQSPublisher{client: ok, queueURL: "a"},
		&SQSPublisher{client: bad, queueURL: "b"},
	}

	ev, err := New(ReviewCreated, uuid.New(), nil)
	require.NoError(t, err)

	err = f.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.NotNil(t, ok.input, "healthy handlers still run")
}

func TestNewHandlerWithoutQueue(t *testing.T) {
	var seen []Type
	h := HandlerFunc(func(_ context.Context, ev Event) error {
		seen = append(seen, ev.Type)
		return nil
	})

	fanout, err := NewHandler(context.Background(), config.Config{}, h)
	require.NoError(t, err)
	require.Len(t, fanout, 1)

	require.NoError(t, fanout.Handle(context.Background(), Event{Type: AppointmentCreated}))
	assert.Equal(t, []Type{AppointmentCreated}, seen)
}

func TestNewHandlerWithQueue(t *testing.T) {
	cfg := config.Config{
		SQSQueueURL:    "http://localhost:4566/000000000000/clinic-events",
		AWSRegion:      "us-east-1",
		AWSEndpointURL: "http://localhost:4566",
		AWSAccessKeyID: "test",
		AWSSecretKey:   "test",
	}
	fanout, err := NewHandler(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, fanout, 1)
	_, ok := fanout[0].(*SQSPublisher)
	assert.True(t, ok)
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sendIn    *sqs.SendMessageInput
	receiveIn *sqs.ReceiveMessageInput
	deleteIn  *sqs.DeleteMessageInput
	messages  []types.Message
	err       error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sendIn = in
	return &sqs.SendMessageOutput{}, f.err
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleteIn = in
	return &sqs.DeleteMessageOutput{}, f.err
}

func TestSQSQueue_SendClampsDelay(t *testing.T) {
	fake := &fakeSQS{}
	q := newSQSQueue(fake, "https://sqs.local/leads")

	require.NoError(t, q.Send(context.Background(), "body", 30*time.Second))
	assert.Equal(t, int32(30), fake.sendIn.DelaySeconds)
	assert.Equal(t, "https://sqs.local/leads", aws.ToString(fake.sendIn.QueueUrl))

	require.NoError(t, q.Send(context.Background(), "body", 2*time.Hour))
	assert.Equal(t, int32(900), fake.sendIn.DelaySeconds)
}

func TestSQSQueue_ReceiveAndDelete(t *testing.T) {
	fake := &fakeSQS{messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"kind":"message"}`),
		ReceiptHandle: aws.String("rh-1"),
	}}}
	q := newSQSQueue(fake, "https://sqs.local/leads")

	msgs, err := q.Receive(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "m-1", Body: `{"kind":"message"}`, ReceiptHandle: "rh-1"}, msgs[0])
	assert.Equal(t, int32(5), fake.receiveIn.MaxNumberOfMessages)
	assert.Equal(t, int32(2), fake.receiveIn.WaitTimeSeconds)

	require.NoError(t, q.Delete(context.Background(), "rh-1"))
	assert.Equal(t, "rh-1", aws.ToString(fake.deleteIn.ReceiptHandle))

	require.NoError(t, q.Delete(context.Background(), ""))
}

func TestSQSQueue_WrapsErrors(t *testing.T) {
	fake := &fakeSQS{err: errors.New("throttled")}
	q := newSQSQueue(fake, "https://sqs.local/leads")

	assert.ErrorContains(t, q.Send(context.Background(), "x", 0), "send SQS message")
	_, err := q.Receive(context.Background(), 1, 0)
	assert.ErrorContains(t, err, "receive SQS messages")
}

func TestNewSQSQueue_PanicsOnBadConfig(t *testing.T) {
	assert.Panics(t, func() { NewSQSQueue(nil, "url") })
	assert.Panics(t, func() { newSQSQueue(&fakeSQS{}, "") })
}

package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAcker struct {
	acked, nacked, rejected int
	requeued                bool
}

func (a *recordingAcker) Ack(uint64, bool) error { a.acked++; return nil }
func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}
func (a *recordingAcker) Reject(_ uint64, requeue bool) error {
	a.rejected++
	a.requeued = requeue
	return nil
}

func delivery(acker amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, Body: []byte(body), RoutingKey: "batch.requested"}
}

func TestDispatch_AcksHandledMessage(t *testing.T) {
	jobID := uuid.New()
	acker := &recordingAcker{}
	var got BatchRequestedMessage

	dispatch(context.Background(), delivery(acker, `{"job_id":"`+jobID.String()+`"}`), zap.NewNop(),
		func(_ context.Context, msg BatchRequestedMessage) error {
			got = msg
			return nil
		})

	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)
}

func TestDispatch_NacksOnHandlerError(t *testing.T) {
	acker := &recordingAcker{}

	dispatch(context.Background(), delivery(acker, `{"job_id":"`+uuid.NewString()+`"}`), zap.NewNop(),
		func(context.Context, BatchRequestedMessage) error { return errors.New("boom") })

	assert.Equal(t, 1, acker.nacked)
	assert.False(t, acker.requeued)
	assert.Zero(t, acker.acked)
}

func TestDispatch_RejectsUndecodable(t *testing.T) {
	acker := &recordingAcker{}
	called := false

	dispatch(context.Background(), delivery(acker, `not json`), zap.NewNop(),
		func(context.Context, BatchRequestedMessage) error {
			called = true
			return nil
		})

	require.False(t, called)
	assert.Equal(t, 1, acker.rejected)
}

func TestGetName(t *testing.T) {
	assert.Equal(t, "calc_batch.requested", getName("calc", BatchRequested))
	assert.Equal(t, "batch.requested", getName("", BatchRequested))
}

package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/testutil"
)

func newTestQueue(t *testing.T) (*Queue, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	return New(store.NewMemory(), WithClock(clock), WithIDs(testutil.NewSequentialIDs("m"))), clock
}

func mutation(id string) model.PendingMutation {
	return model.PendingMutation{
		EntityType: model.EntityPatient,
		EntityID:   id,
		Method:     "PUT",
		Endpoint:   "/patients/" + id,
		Body:       json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func TestEnqueue_AssignsIDAndTimestamp(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	in := mutation("p1")
	in.ID = "caller-chosen"
	got, err := q.Enqueue(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "m-0001", got.ID)
	assert.Equal(t, clock.Now(), got.Timestamp)

	clock.Advance(time.Second)
	second, err := q.Enqueue(ctx, mutation("p2"))
	require.NoError(t, err)
	assert.Equal(t, "m-0002", second.ID)
	assert.True(t, second.Timestamp.After(got.Timestamp))
}

func TestEnqueue_Validates(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, model.PendingMutation{Method: "PUT"})
	assert.Error(t, err)

	m := mutation("p1")
	m.Method = ""
	_, err = q.Enqueue(ctx, m)
	assert.Error(t, err)
}

func TestAll_InsertionOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := q.Enqueue(ctx, mutation(id))
		require.NoError(t, err)
	}

	all, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].EntityID)
	assert.Equal(t, "a", all[1].EntityID)
	assert.Equal(t, "b", all[2].EntityID)
	assert.JSONEq(t, `{"id":"c"}`, string(all[0].Body))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAll_Empty(t *testing.T) {
	q, _ := newTestQueue(t)
	all, err := q.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRemove_Idempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, mutation("p1"))
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, m.ID))
	require.NoError(t, q.Remove(ctx, m.ID), "second remove is a no-op")
	require.NoError(t, q.Remove(ctx, "never-existed"))

	_, ok, err := q.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordFailure_Counts(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, mutation("p1"))
	require.NoError(t, err)

	a, err := q.Attempts(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, a.Attempts)

	n, err := q.RecordFailure(ctx, m.ID, "status 503")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(time.Minute)
	n, err = q.RecordFailure(ctx, m.ID, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err = q.Attempts(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "connection refused", a.LastError)
	assert.Equal(t, clock.Now(), a.LastAttemptAt)

	require.NoError(t, q.Remove(ctx, m.ID))
	a, err = q.Attempts(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, a.Attempts, "remove drops the history")
}

func TestDeadLetter_AndRequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, mutation("p1"))
	require.NoError(t, err)
	other, err := q.Enqueue(ctx, mutation("p2"))
	require.NoError(t, err)
	_, err = q.RecordFailure(ctx, m.ID, "status 400")
	require.NoError(t, err)

	dl, err := q.DeadLetter(ctx, m, "status 400: bad payload")
	require.NoError(t, err)
	assert.Equal(t, 1, dl.Attempts)

	all, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, other.ID, all[0].ID)

	dls, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, m.ID, dls[0].Mutation.ID)
	assert.Equal(t, "status 400: bad payload", dls[0].Reason)

	back, err := q.Requeue(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, back.ID)

	all, err = q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m.ID, all[1].ID, "requeued mutation goes to the tail")

	a, err := q.Attempts(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, a.Attempts)

	dls, err = q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dls)

	_, err = q.Requeue(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearDeadLetters(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, mutation("p1"))
	require.NoError(t, err)
	_, err = q.DeadLetter(ctx, m, "gone")
	require.NoError(t, err)

	require.NoError(t, q.ClearDeadLetters(ctx))
	dls, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dls)
}

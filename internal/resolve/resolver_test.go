package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/remote"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/synclog"
	"github.com/roach88/wardsync/internal/testutil"
)

type fixture struct {
	store     *store.Memory
	authority *testutil.FakeAuthority
	log       *synclog.Log
	resolver  *Resolver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := store.NewMemory()
	a := testutil.NewFakeAuthority()
	l := synclog.New(s,
		synclog.WithClock(testutil.NewFakeClock(time.Time{})),
		synclog.WithIDs(testutil.NewSequentialIDs("log")),
	)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return &fixture{store: s, authority: a, log: l, resolver: New(s, a, l, opts...)}
}

func TestResolve_PatientCommitsEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.authority.Seed(model.EntityPatient, decode(t, `{
		"id": "p1", "lastUpdated": "2024-02-15T00:00:00Z", "phone": "999",
		"medicalHistory": [{"id": 2, "date": "2024-02-01"}]
	}`))
	local := decode(t, `{
		"id": "p1", "lastUpdated": "2024-01-01T00:00:00Z", "phone": "111",
		"medicalHistory": [{"id": 1, "date": "2024-01-01"}]
	}`)

	merged, err := f.resolver.Resolve(ctx, Conflict{
		EntityType: model.EntityPatient,
		EntityID:   "p1",
		Local:      local,
		MutationID: "m-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(merged.Records(FieldMedicalHistory)))
	assert.Equal(t, "999", merged.String("phone"))

	data, ok, err := f.store.Get(ctx, "patients", "p1")
	require.NoError(t, err)
	require.True(t, ok, "merged record persisted locally")
	assert.Equal(t, encode(t, merged), string(data))

	remoteCopy, ok := f.authority.Record(model.EntityPatient, "p1")
	require.True(t, ok)
	assert.Equal(t, encode(t, merged), encode(t, remoteCopy))

	entries, err := f.log.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusSuccess, entries[0].Status)
	assert.Equal(t, "RESOLVE patients/p1", entries[0].Action)
	assert.Equal(t, "m-1", entries[0].MutationID)
}

func TestResolve_FetchFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, Conflict{
		EntityType: model.EntityAppointment,
		EntityID:   "missing",
		Local:      record.Record{"id": "missing"},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode(err))

	_, ok, err := f.store.Get(ctx, "appointments", "missing")
	require.NoError(t, err)
	assert.False(t, ok, "nothing persisted on failure")

	entries, err := f.log.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusError, entries[0].Status)
	assert.Contains(t, entries[0].Details, "fetch server copy")
}

func TestResolve_PutFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.authority.Seed(model.EntityBilling, record.Record{"id": "b1", "amount": "10"})
	f.authority.PutErr = errors.New("503 unavailable")

	_, err := f.resolver.Resolve(ctx, Conflict{EntityType: model.EntityBilling, EntityID: "b1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit merged record")

	entries, err := f.log.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusError, entries[0].Status)
}

func TestResolve_WithPolicyOverride(t *testing.T) {
	keepLocal := func(local, server record.Record) record.Record { return local.Clone() }
	f := newFixture(t, WithPolicy(model.EntityInventory, keepLocal))
	ctx := context.Background()
	f.authority.Seed(model.EntityInventory, record.Record{"id": "i1", "count": "5"})

	merged, err := f.resolver.Resolve(ctx, Conflict{
		EntityType: model.EntityInventory,
		EntityID:   "i1",
		Local:      record.Record{"id": "i1", "count": "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "3", merged.String("count"))

	assert.NotNil(t, Policies[model.EntityInventory], "package table untouched")
}

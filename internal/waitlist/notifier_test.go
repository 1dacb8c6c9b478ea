package waitlist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/notify"
)

type fakeWaitlistStore struct {
	entries  []model.WaitlistEntry
	notified []string
	markErr  error
}

func (s *fakeWaitlistStore) ListPending(ctx context.Context) ([]model.WaitlistEntry, error) {
	var pending []model.WaitlistEntry
	for _, e := range s.entries {
		if e.State == model.WaitlistPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (s *fakeWaitlistStore) MarkNotified(ctx context.Context, id string) error {
	if s.markErr != nil {
		return s.markErr
	}
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].State = model.WaitlistNotified
		}
	}
	s.notified = append(s.notified, id)
	return nil
}

type fakeSeats struct {
	remaining map[string]int
	reads     int
	err       error
}

func (f *fakeSeats) SeatsRemaining(ctx context.Context, classID string) (int, error) {
	f.reads++
	if f.err != nil {
		return 0, f.err
	}
	return f.remaining[classID], nil
}

type recordingSender struct {
	sent    []notify.Message
	sendErr error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func pendingEntry(id, classID, email string) model.WaitlistEntry {
	return model.WaitlistEntry{ID: id, ClassID: classID, Email: email, State: model.WaitlistPending}
}

func TestNotifiesWhenCapacityReturns(t *testing.T) {
	store := &fakeWaitlistStore{entries: []model.WaitlistEntry{
		pendingEntry("w1", "c1", "a@example.com"),
	}}
	seats := &fakeSeats{remaining: map[string]int{"c1": 2}}
	sender := &recordingSender{}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a@example.com", sender.sent[0].To)
	assert.Equal(t, "c1", sender.sent[0].ClassID)
	assert.Equal(t, []string{"w1"}, store.notified)
	assert.Equal(t, model.WaitlistNotified, store.entries[0].State)
}

func TestFullClassLeavesEntriesPending(t *testing.T) {
	store := &fakeWaitlistStore{entries: []model.WaitlistEntry{
		pendingEntry("w1", "c1", "a@example.com"),
	}}
	seats := &fakeSeats{remaining: map[string]int{"c1": 0}}
	sender := &recordingSender{}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	assert.Empty(t, sender.sent)
	assert.Equal(t, model.WaitlistPending, store.entries[0].State)
}

func TestCapacityReadCachedPerClass(t *testing.T) {
	store := &fakeWaitlistStore{entries: []model.WaitlistEntry{
		pendingEntry("w1", "c1", "a@example.com"),
		pendingEntry("w2", "c1", "b@example.com"),
		pendingEntry("w3", "c2", "c@example.com"),
	}}
	seats := &fakeSeats{remaining: map[string]int{"c1": 5, "c2": 1}}
	sender := &recordingSender{}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	assert.Equal(t, 2, seats.reads, "one capacity read per class per cycle")
	assert.Len(t, sender.sent, 3)
}

func TestFailedSendLeavesEntryPending(t *testing.T) {
	store := &fakeWaitlistStore{entries: []model.WaitlistEntry{
		pendingEntry("w1", "c1", "a@example.com"),
	}}
	seats := &fakeSeats{remaining: map[string]int{"c1": 3}}
	sender := &recordingSender{sendErr: errors.New("smtp down")}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	assert.Empty(t, store.notified)
	assert.Equal(t, model.WaitlistPending, store.entries[0].State,
		"a failed send must leave the entry for the next cycle")
}

func TestMarkFailureDoesNotAbortCycle(t *testing.T) {
	store := &fakeWaitlistStore{
		entries: []model.WaitlistEntry{
			pendingEntry("w1", "c1", "a@example.com"),
			pendingEntry("w2", "c1", "b@example.com"),
		},
		markErr: errors.New("db unavailable"),
	}
	seats := &fakeSeats{remaining: map[string]int{"c1": 4}}
	sender := &recordingSender{}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	// Both sends go out even though neither could be recorded; the next
	// cycle may duplicate them, which the delivery contract accepts.
	assert.Len(t, sender.sent, 2)
	assert.Empty(t, store.notified)
}

func TestCapacityReadErrorSkipsClass(t *testing.T) {
	store := &fakeWaitlistStore{entries: []model.WaitlistEntry{
		pendingEntry("w1", "c1", "a@example.com"),
		pendingEntry("w2", "c1", "b@example.com"),
	}}
	seats := &fakeSeats{err: errors.New("pool exhausted")}
	sender := &recordingSender{}

	n := NewNotifier(store, seats, sender)
	require.NoError(t, n.RunCycle(context.Background()))

	assert.Equal(t, 1, seats.reads, "failed read is cached as zero for the rest of the cycle")
	assert.Empty(t, sender.sent)
}

package allocation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu        sync.Mutex
	allocated map[Source]int
	released  map[TokenStatus]int
	preempted int
	promoted  int
	overflows int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		allocated: make(map[Source]int),
		released:  make(map[TokenStatus]int),
	}
}

func (r *countingRecorder) TokenAllocated(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated[s]++
}

func (r *countingRecorder) TokenReleased(s TokenStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released[s]++
}

func (r *countingRecorder) TokenPreempted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preempted++
}

func (r *countingRecorder) TokenPromoted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoted++
}

func (r *countingRecorder) EmergencyOverflow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overflows++
}

func twoSlotDoctor(t *testing.T, e *Engine, capacity int) {
	t.Helper()
	addDoctor(t, e, "D1",
		slotDef{"S1", "09:00", "10:00", capacity},
		slotDef{"S2", "10:00", "11:00", capacity},
	)
}

func TestEmergencyGoesFirst(t *testing.T) {
	e := newTestEngine(t)
	twoSlotDoctor(t, e, 10)
	allocate(t, e, "D1", "S1", SourceWalkin)
	allocate(t, e, "D1", "S1", SourceOnline)

	em, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	assert.Equal(t, EmergencyPriority, em.Priority)
	assert.Equal(t, SourceEmergency, em.Source)
	assert.Equal(t, StatusAllocated, em.Status)
	assert.Equal(t, "S1", em.SlotID)

	ids := slotTokenIDs(t, e, "S1")
	require.Len(t, ids, 3)
	assert.Equal(t, em.ID, ids[0])
	assertSlotInvariants(t, e, "S1")
}

func TestEmergencyPreemptsLowestPriority(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	twoSlotDoctor(t, e, 2)
	online := allocate(t, e, "D1", "S1", SourceOnline)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)

	em, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	assert.Equal(t, []string{em.ID, online.ID}, slotTokenIDs(t, e, "S1"))
	assert.Equal(t, []string{walkin.ID}, slotTokenIDs(t, e, "S2"))

	details, err := e.GetTokenDetails(walkin.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, details.Token.Status)
	assert.Equal(t, "S2", details.Slot.ID)

	assert.Equal(t, 1, rec.preempted)
	assert.Zero(t, rec.overflows)
	assertSlotInvariants(t, e, "S1")
	assertSlotInvariants(t, e, "S2")
}

func TestEmergencyNeverDisplacesServedToken(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	twoSlotDoctor(t, e, 2)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)
	online := allocate(t, e, "D1", "S1", SourceOnline)
	_, err := e.CompleteToken(walkin.ID)
	require.NoError(t, err)

	em, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	served, err := e.GetTokenDetails(walkin.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, served.Token.Status)
	assert.Equal(t, "S1", served.Slot.ID)

	moved, err := e.GetTokenDetails(online.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, moved.Token.Status)
	assert.Equal(t, "S2", moved.Slot.ID)

	assert.Equal(t, []string{em.ID, walkin.ID}, slotTokenIDs(t, e, "S1"))
	assert.Equal(t, 1, rec.preempted)
	assert.Zero(t, rec.overflows)
}

func TestEmergencyOverflowsWhenOnlyServedTokensAreLow(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	twoSlotDoctor(t, e, 1)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)
	_, err := e.CompleteToken(walkin.ID)
	require.NoError(t, err)

	_, err = e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	assert.Empty(t, slotTokenIDs(t, e, "S2"))
	assert.Zero(t, rec.preempted)
	assert.Equal(t, 1, rec.overflows)
}

func TestEmergencyPreemptionTieBreak(t *testing.T) {
	e := newTestEngine(t)
	twoSlotDoctor(t, e, 2)
	first := allocate(t, e, "D1", "S1", SourceWalkin)
	second := allocate(t, e, "D1", "S1", SourceWalkin)

	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	assert.Equal(t, []string{first.ID}, slotTokenIDs(t, e, "S2"), "earliest token number is displaced")
	assert.Contains(t, slotTokenIDs(t, e, "S1"), second.ID)
}

func TestEmergencyPreemptsIntoEarliestLaterSlot(t *testing.T) {
	e := newTestEngine(t)
	addDoctor(t, e, "D1",
		slotDef{"S1", "09:00", "10:00", 1},
		slotDef{"S3", "11:00", "12:00", 5},
		slotDef{"S2", "10:00", "11:00", 5},
	)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)

	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	assert.Equal(t, []string{walkin.ID}, slotTokenIDs(t, e, "S2"))
}

func TestEmergencyElasticOverflow(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	addDoctor(t, e, "D1", slotDef{"S1", "09:00", "10:00", 2})
	allocate(t, e, "D1", "S1", SourceOnline)
	allocate(t, e, "D1", "S1", SourceWalkin)

	em, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	view, err := e.GetSlotStatus("S1")
	require.NoError(t, err)
	// Documented exception: no later slot, so the slot runs over capacity.
	assert.Equal(t, 3, view.CurrentCapacity)
	assert.Equal(t, 2, view.MaxCapacity)
	assert.Zero(t, view.AvailableCapacity)
	assert.Equal(t, em.ID, view.Tokens[0].ID)
	assert.Equal(t, 1, rec.overflows)
	assert.Zero(t, rec.preempted)
}

func TestEmergencyOverflowWhenNothingDisplaceable(t *testing.T) {
	e := newTestEngine(t)
	twoSlotDoctor(t, e, 1)
	allocate(t, e, "D1", "S1", SourcePriority)

	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	s1, _ := e.GetSlotStatus("S1")
	s2, _ := e.GetSlotStatus("S2")
	assert.Equal(t, 2, s1.CurrentCapacity)
	assert.Zero(t, s2.CurrentCapacity, "priority tokens are never displaced")
}

func TestEmergencyRejectPolicy(t *testing.T) {
	e := newTestEngine(t, WithOverflowPolicy(OverflowReject))
	addDoctor(t, e, "D1", slotDef{"S1", "09:00", "10:00", 1})
	before := allocate(t, e, "D1", "S1", SourceOnline)

	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.ErrorIs(t, err, ErrCapacityExhausted)
	assert.Equal(t, []string{before.ID}, slotTokenIDs(t, e, "S1"))

	_, err = e.CancelToken(before.ID)
	require.NoError(t, err)
	after := allocate(t, e, "D1", "S1", SourceOnline)
	assert.Equal(t, before.TokenNumber+1, after.TokenNumber, "rejected emergency consumes no number")
}

func TestEmergencyTargetsCurrentOrNextSlot(t *testing.T) {
	cases := []struct {
		now  string
		want string
	}{
		{"08:00", "S1"},
		{"09:30", "S1"},
		{"10:00", "S1"},
		{"10:30", "S2"},
		{"11:59", "S3"},
		{"18:00", "S1"},
	}
	for _, c := range cases {
		t.Run(c.now, func(t *testing.T) {
			e := newTestEngine(t, WithClock(fixedClock(c.now)))
			addDoctor(t, e, "D1",
				slotDef{"S1", "09:00", "10:00", 5},
				slotDef{"S2", "10:00", "11:00", 5},
				slotDef{"S3", "11:00", "12:00", 5},
			)
			em, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
			require.NoError(t, err)
			assert.Equal(t, c.want, em.SlotID)
		})
	}
}

func TestEmergencyFailures(t *testing.T) {
	e := newTestEngine(t)
	addDoctor(t, e, "D1")

	_, err := e.AddEmergencyToken("P", "E", "D404")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = e.AddEmergencyToken("P", "E", "D1")
	require.ErrorIs(t, err, ErrNoActiveSlot)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestPromotionAfterCancellation(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithRecorder(rec))
	twoSlotDoctor(t, e, 2)
	online := allocate(t, e, "D1", "S1", SourceOnline)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)

	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	// S1 holds the emergency and the online token, S2 the displaced walk-in.
	_, err = e.CancelToken(online.ID)
	require.NoError(t, err)

	// Both slots now hold one token; S1 is declared first and wins the tie.
	details, err := e.GetTokenDetails(walkin.ID)
	require.NoError(t, err)
	assert.Equal(t, "S1", details.Slot.ID)
	assert.Equal(t, StatusAllocated, details.Token.Status)
	assert.Empty(t, slotTokenIDs(t, e, "S2"))
	assert.Equal(t, 1, rec.promoted)
	assert.Equal(t, 1, rec.released[StatusCancelled])
	assertSlotInvariants(t, e, "S1")
}

func TestPromotionLeavesTokenInPlaceWhenAlreadyBest(t *testing.T) {
	e := newTestEngine(t)
	addDoctor(t, e, "D1",
		slotDef{"S1", "09:00", "10:00", 2},
		slotDef{"S2", "10:00", "11:00", 5},
	)
	online := allocate(t, e, "D1", "S1", SourceOnline)
	walkin := allocate(t, e, "D1", "S1", SourceWalkin)
	_, err := e.AddEmergencyToken("P-E", "Emergency", "D1")
	require.NoError(t, err)

	// After the no-show both slots hold one token; S1 is first, so the
	// walk-in moves back.
	_, err = e.MarkNoShow(online.ID)
	require.NoError(t, err)
	details, err := e.GetTokenDetails(walkin.ID)
	require.NoError(t, err)
	assert.Equal(t, "S1", details.Slot.ID)

	// S1 is full again; a second emergency displaces the walk-in once more.
	_, err = e.AddEmergencyToken("P-E2", "Emergency", "D1")
	require.NoError(t, err)
	allocate(t, e, "D1", "S2", SourceOnline)
	extra := allocate(t, e, "D1", "S2", SourceOnline)

	// S1 is full, so the best slot is S2, which already holds the walk-in.
	_, err = e.CancelToken(extra.ID)
	require.NoError(t, err)
	details, err = e.GetTokenDetails(walkin.ID)
	require.NoError(t, err)
	assert.Equal(t, "S2", details.Slot.ID)
	assert.Equal(t, StatusWaiting, details.Token.Status)
}

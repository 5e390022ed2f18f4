package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"gbserver/game/balls"
	"gbserver/game/final"
	"gbserver/game/registry"
	"gbserver/models"
)

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]float64
	calls    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]float64)}
}

func (l *fakeLedger) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += delta
	l.calls++
	return nil
}

func (l *fakeLedger) balance(userID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *fakeLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type storedEvent struct {
	Round int
	Type  string
}

type fakeStore struct {
	mu      sync.Mutex
	records [][]string
	events  []storedEvent
}

func (s *fakeStore) CreateRecord(ctx context.Context, participants []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, participants)
	return fmt.Sprintf("rec-%d", len(s.records)), nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, recordRef string, round int, eventType string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, storedEvent{Round: round, Type: eventType})
	return nil
}

func (s *fakeStore) ReadRecord(ctx context.Context, recordRef string) (*models.GameRecord, []models.GameEvent, error) {
	return nil, nil, models.ErrNotFound
}

func (s *fakeStore) eventCount(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

type emitted struct {
	Sessions []string
	Event    string
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	closed []string
}

func (e *fakeEmitter) Emit(sessionIDs []string, event string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{Sessions: sessionIDs, Event: event})
}

func (e *fakeEmitter) CloseSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, sessionID)
}

func (e *fakeEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, emit := range e.events {
		if emit.Event == event {
			count++
		}
	}
	return count
}

func (e *fakeEmitter) closedSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.closed...)
}

// testConfig keeps the timers far away so tests drive every phase
// transition themselves.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RoundDuration = time.Hour
	cfg.PrepareDuration = time.Hour
	return cfg
}

type harness struct {
	orch    *Orchestrator
	reg     *registry.Registry
	ledger  *fakeLedger
	store   *fakeStore
	emitter *fakeEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	h := &harness{
		reg:     registry.New(),
		ledger:  newFakeLedger(),
		store:   &fakeStore{},
		emitter: &fakeEmitter{},
	}
	dist := balls.NewDistributor(cfg.BallWeights, cfg.BallCounts, rand.New(rand.NewSource(1)))
	h.orch = New(cfg, h.reg, dist, h.ledger, h.store, h.emitter, zap.NewNop())
	return h
}

// joinFour seats s1..s4 (identities u1..u4) in one room and returns its id.
func (h *harness) joinFour(t *testing.T) string {
	t.Helper()
	var roomID string
	for i := 1; i <= 4; i++ {
		id, err := h.orch.Join(context.Background(), fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i))
		if err != nil {
			t.Fatalf("join s%d: %v", i, err)
		}
		if roomID == "" {
			roomID = id
		} else if id != roomID {
			t.Fatalf("s%d joined room %s, want %s", i, id, roomID)
		}
	}
	return roomID
}

func (h *harness) room(t *testing.T, roomID string) *registry.Room {
	t.Helper()
	room, err := h.reg.Room(roomID)
	if err != nil {
		t.Fatalf("room %s: %v", roomID, err)
	}
	return room
}

func (h *harness) state(t *testing.T, roomID string) registry.State {
	room := h.room(t, roomID)
	room.Lock()
	defer room.Unlock()
	return room.State
}

func TestFourthJoinStartsTheGame(t *testing.T) {
	h := newHarness(t)
	roomID := h.joinFour(t)

	room := h.room(t, roomID)
	room.Lock()
	defer room.Unlock()

	if room.State != registry.StatePreparingRound {
		t.Errorf("state = %s, want %s", room.State, registry.StatePreparingRound)
	}
	// Four entry taxes of 5, matched 1:1 by the platform.
	if room.Pot != 40 {
		t.Errorf("pot = %v, want 40", room.Pot)
	}
	if got := len(room.Assignment.Remaining()); got != 20 {
		t.Errorf("balls in play = %d, want 20", got)
	}
	if room.RecordRef == "" {
		t.Error("game start should open a durable record")
	}
	if h.emitter.count(EventStartGame) != 1 {
		t.Errorf("start-game emitted %d times, want 1", h.emitter.count(EventStartGame))
	}
	if h.emitter.count(EventPrepareRound) != 1 {
		t.Errorf("prepare-round emitted %d times, want 1", h.emitter.count(EventPrepareRound))
	}
}

func TestFifthJoinOpensANewRoom(t *testing.T) {
	h := newHarness(t)
	first := h.joinFour(t)

	second, err := h.orch.Join(context.Background(), "s5", "u5")
	if err != nil {
		t.Fatalf("join s5: %v", err)
	}
	if second == first {
		t.Error("a full room must not seat a fifth participant")
	}
}

func TestFullGameFlowToSplitSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	roomID := h.joinFour(t)

	// Round 1: the room gangs up on u4.
	h.orch.startRound(roomID)
	if got := h.state(t, roomID); got != registry.StateRoundActive {
		t.Fatalf("state = %s, want %s", got, registry.StateRoundActive)
	}
	for _, sessionID := range []string{"s1", "s2", "s3"} {
		if err := h.orch.Vote(ctx, sessionID, "u4"); err != nil {
			t.Fatalf("vote from %s: %v", sessionID, err)
		}
	}
	if err := h.orch.Vote(ctx, "s4", "u1"); err != nil {
		t.Fatalf("vote from s4: %v", err)
	}
	h.orch.endRound(roomID)

	if got := h.ledger.balance("u4"); got != -5 {
		t.Errorf("u4 pays the elimination fee: balance = %v, want -5", got)
	}
	if _, err := h.reg.UserSession("u4"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("u4 should be out of the registry, err = %v", err)
	}
	if got := h.state(t, roomID); got != registry.StatePreparingRound {
		t.Fatalf("after round 1: state = %s, want %s", got, registry.StatePreparingRound)
	}

	// Round 2: u3 goes, leaving the finalists.
	h.orch.startRound(roomID)
	room := h.room(t, roomID)
	room.Lock()
	if room.Round != 2 {
		t.Errorf("round = %d, want 2", room.Round)
	}
	room.Unlock()

	for _, sessionID := range []string{"s1", "s2"} {
		if err := h.orch.Vote(ctx, sessionID, "u3"); err != nil {
			t.Fatalf("vote from %s: %v", sessionID, err)
		}
	}
	h.orch.endRound(roomID)

	if got := h.state(t, roomID); got != registry.StatePreparingFinal {
		t.Fatalf("after round 2: state = %s, want %s", got, registry.StatePreparingFinal)
	}

	// Payoff round: both split the pot.
	h.orch.startFinal(roomID)
	if err := h.orch.Choice(ctx, "s1", final.Split); err != nil {
		t.Fatalf("choice from s1: %v", err)
	}
	if err := h.orch.Choice(ctx, "s2", final.Split); err != nil {
		t.Fatalf("choice from s2: %v", err)
	}

	room.Lock()
	finalPot := room.Pot
	room.Unlock()

	h.orch.endFinal(roomID)

	wantShare := 0.5 * finalPot / 2
	if got := h.ledger.balance("u1"); got != wantShare {
		t.Errorf("u1 balance = %v, want %v", got, wantShare)
	}
	if got := h.ledger.balance("u2"); got != wantShare {
		t.Errorf("u2 balance = %v, want %v", got, wantShare)
	}

	// The room and every binding are gone.
	if _, err := h.reg.Room(roomID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("room should be torn down, err = %v", err)
	}
	if h.emitter.count(EventEndGame) != 1 {
		t.Errorf("end-game emitted %d times, want 1", h.emitter.count(EventEndGame))
	}
	if h.store.eventCount(EventEndGame) != 1 {
		t.Errorf("end-game recorded %d times, want 1", h.store.eventCount(EventEndGame))
	}
	if got := len(h.emitter.closedSessions()); got != 4 {
		t.Errorf("%d sessions force-closed over the game, want all 4", got)
	}
}

func TestSilentFinalistsDefaultToSteal(t *testing.T) {
	h := newHarness(t)
	roomID := h.joinFour(t)

	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	if got := h.state(t, roomID); got != registry.StatePreparingFinal {
		t.Fatalf("state = %s, want %s", got, registry.StatePreparingFinal)
	}

	room := h.room(t, roomID)
	room.Lock()
	finalists := room.Finalists
	finalPot := room.Pot
	room.Unlock()
	if finalists == nil {
		t.Fatal("finalists not recorded")
	}

	h.orch.startFinal(roomID)

	// One finalist steals openly, the other says nothing.
	session1, err := h.reg.UserSession(finalists.Player1ID)
	if err != nil {
		t.Fatalf("finalist session: %v", err)
	}
	if err := h.orch.Choice(context.Background(), session1, final.Steal); err != nil {
		t.Fatalf("choice: %v", err)
	}

	h.orch.endFinal(roomID)

	// The silent finalist defaults to steal; Steal/Steal charges each
	// half the pot tax.
	wantDelta := -0.7 * finalPot / 2
	if got := h.ledger.balance(finalists.Player1ID); got != wantDelta {
		t.Errorf("%s balance = %v, want %v", finalists.Player1ID, got, wantDelta)
	}
	if got := h.ledger.balance(finalists.Player2ID); got != wantDelta {
		t.Errorf("%s balance = %v, want %v", finalists.Player2ID, got, wantDelta)
	}
}

func TestSettlementHappensExactlyOnce(t *testing.T) {
	h := newHarness(t)
	roomID := h.joinFour(t)

	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	h.orch.startFinal(roomID)

	room := h.room(t, roomID)
	h.orch.endFinal(roomID)
	callsAfterFirst := h.ledger.callCount()

	// A racing duplicate trigger must be a no-op.
	room.Lock()
	h.orch.endFinalLocked(context.Background(), room)
	room.Unlock()

	if h.ledger.callCount() != callsAfterFirst {
		t.Errorf("second settlement adjusted balances: %d calls, want %d", h.ledger.callCount(), callsAfterFirst)
	}
	if h.emitter.count(EventEndGame) != 1 {
		t.Errorf("end-game emitted %d times, want 1", h.emitter.count(EventEndGame))
	}
}

func TestVoteOutsideActiveRoundRejected(t *testing.T) {
	h := newHarness(t)
	h.joinFour(t)

	err := h.orch.Vote(context.Background(), "s1", "u2")
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("vote while preparing: err = %v, want ErrInvalidState", err)
	}
}

func TestChoiceBeforeFinalRejected(t *testing.T) {
	h := newHarness(t)
	h.joinFour(t)

	err := h.orch.Choice(context.Background(), "s1", final.Split)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Errorf("choice while preparing: err = %v, want ErrInvalidState", err)
	}
}

func TestDisconnectDuringRoundForcesTheRoundEnd(t *testing.T) {
	h := newHarness(t)
	roomID := h.joinFour(t)
	h.orch.startRound(roomID)

	h.orch.Leave(context.Background(), "s2")

	// The leaver is gone immediately and the round resolved without its
	// timer: one more participant got eliminated, leaving the finalists.
	if _, err := h.reg.UserSession("u2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("u2 should be unbound, err = %v", err)
	}
	if got := h.state(t, roomID); got != registry.StatePreparingFinal {
		t.Errorf("state = %s, want %s", got, registry.StatePreparingFinal)
	}
	if got := len(h.reg.RoomSessions(roomID)); got != 2 {
		t.Errorf("%d sessions remain, want 2", got)
	}

	room := h.room(t, roomID)
	room.Lock()
	if len(room.Assignment) != 2 {
		t.Errorf("assignment still covers %d players, want the 2 finalists", len(room.Assignment))
	}
	if _, held := room.Assignment.Balls("u2"); held {
		t.Error("the leaver's balls should be out of play")
	}
	room.Unlock()
}

func TestDisconnectDuringFinalSettlesWithStealDefault(t *testing.T) {
	h := newHarness(t)
	roomID := h.joinFour(t)

	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	h.orch.startRound(roomID)
	h.orch.endRound(roomID)
	h.orch.startFinal(roomID)

	room := h.room(t, roomID)
	room.Lock()
	finalists := room.Finalists
	room.Unlock()

	leaverSession, err := h.reg.UserSession(finalists.Player1ID)
	if err != nil {
		t.Fatalf("finalist session: %v", err)
	}
	if err := h.orch.Choice(context.Background(), leaverSession, final.Split); err != nil {
		t.Fatalf("choice: %v", err)
	}

	otherSession, err := h.reg.UserSession(finalists.Player2ID)
	if err != nil {
		t.Fatalf("finalist session: %v", err)
	}
	h.orch.Leave(context.Background(), otherSession)

	// The silent leaver defaults to steal against the recorded split.
	if got := h.ledger.balance(finalists.Player1ID); got != -5 {
		t.Errorf("splitter balance = %v, want -5", got)
	}
	if got := h.ledger.balance(finalists.Player2ID); got != 5 {
		t.Errorf("defaulted stealer balance = %v, want 5", got)
	}
	if _, err := h.reg.Room(roomID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("room should be torn down, err = %v", err)
	}
}

func TestLastLeaverTearsTheRoomDown(t *testing.T) {
	h := newHarness(t)
	roomID, err := h.orch.Join(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	h.orch.Leave(context.Background(), "s1")

	if _, err := h.reg.Room(roomID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("empty room should disappear, err = %v", err)
	}
}

func TestLeaveOfUnknownSessionIsANoOp(t *testing.T) {
	h := newHarness(t)
	h.orch.Leave(context.Background(), "ghost")
}

func TestMessageReachesTheWholeRoom(t *testing.T) {
	h := newHarness(t)
	h.joinFour(t)

	if err := h.orch.Message(context.Background(), "s1", "good luck everyone"); err != nil {
		t.Fatalf("message: %v", err)
	}
	if h.emitter.count(EventMessage) != 1 {
		t.Errorf("message emitted %d times, want 1", h.emitter.count(EventMessage))
	}
	if h.store.eventCount(EventMessage) != 1 {
		t.Errorf("message recorded %d times, want 1", h.store.eventCount(EventMessage))
	}
}

func TestConcurrentJoinsStartTheGameExactlyOnce(t *testing.T) {
	// The filling joiner is the only one allowed to trigger game start,
	// however the four joins interleave.
	for iter := 0; iter < 500; iter++ {
		h := newHarness(t)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := h.orch.Join(context.Background(), fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i)); err != nil {
					t.Errorf("join s%d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if got := h.emitter.count(EventStartGame); got != 1 {
			t.Fatalf("iteration %d: start-game emitted %d times, want 1", iter, got)
		}
		if got := len(h.store.records); got != 1 {
			t.Fatalf("iteration %d: %d records created, want 1", iter, got)
		}

		rooms := make(map[string]bool)
		for i := 0; i < 4; i++ {
			room, err := h.reg.RoomBySession(fmt.Sprintf("s%d", i))
			if err != nil {
				t.Fatalf("iteration %d: room lookup: %v", iter, err)
			}
			rooms[room.ID] = true
			room.Lock()
			// Start must have seen all four taxes, doubled once.
			if room.Pot != 40 {
				room.Unlock()
				t.Fatalf("iteration %d: pot = %v, want 40", iter, room.Pot)
			}
			room.Unlock()
		}
		if len(rooms) != 1 {
			t.Fatalf("iteration %d: joins landed in %d rooms, want 1", iter, len(rooms))
		}
	}
}

func TestConcurrentJoinsCollectEveryEntryTax(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	roomIDs := make([]string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.orch.Join(context.Background(), fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i))
			if err != nil {
				t.Errorf("join s%d: %v", i, err)
				return
			}
			roomIDs[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range roomIDs[1:] {
		if id != roomIDs[0] {
			t.Fatalf("joins landed in different rooms: %v", roomIDs)
		}
	}

	room := h.room(t, roomIDs[0])
	room.Lock()
	defer room.Unlock()
	if room.Pot != 40 {
		t.Errorf("pot = %v, want 40 after four taxes and the match", room.Pot)
	}
	if room.State != registry.StatePreparingRound {
		t.Errorf("state = %s, want %s", room.State, registry.StatePreparingRound)
	}
}

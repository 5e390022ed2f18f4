// Package game drives the room lifecycle: matchmaking, the timed
// elimination rounds, the split-or-steal payoff and room teardown.
package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gbserver/game/balls"
	"gbserver/game/final"
	"gbserver/game/pot"
	"gbserver/game/registry"
	"gbserver/game/vote"
	"gbserver/models"
)

// Orchestrator is the state machine tying registry, distributor,
// resolvers and pot ledger together. One instance serves all rooms;
// each room's mutex serializes its timer callbacks against participant
// actions, and rooms never share state.
type Orchestrator struct {
	cfg    Config
	potl   pot.Ledger
	reg    *registry.Registry
	dist   *balls.Distributor
	ledger BalanceLedger
	store  RecordStore
	emit   EventEmitter
	logger *zap.Logger

	// joinMu orders matchmaking so concurrent joins fill a room one at
	// a time and the game-start trigger sees every entry tax.
	joinMu sync.Mutex
}

func New(cfg Config, reg *registry.Registry, dist *balls.Distributor, ledger BalanceLedger, store RecordStore, emitter EventEmitter, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		potl:   cfg.PotLedger(),
		reg:    reg,
		dist:   dist,
		ledger: ledger,
		store:  store,
		emit:   emitter,
		logger: logger,
	}
	return o
}

// Join binds the session, seats it in a room with free capacity
// (created lazily) and collects the entry tax. Filling the last seat
// starts the game. Returns the room id.
func (o *Orchestrator) Join(ctx context.Context, sessionID, userID string) (string, error) {
	o.joinMu.Lock()

	o.reg.BindSession(sessionID, userID)
	room, err := o.reg.FindFreeRoom()
	if err != nil {
		room = o.reg.CreateRoom(o.cfg.RoomSize)
		o.logger.Info("room created", zap.String("roomID", room.ID))
	}
	filled, err := o.reg.AddSessionToRoom(room.ID, sessionID)
	if err != nil {
		o.joinMu.Unlock()
		return "", err
	}
	// Take the room lock before releasing the join order so entry taxes
	// land in roster order. Only the joiner that filled the last seat
	// starts the game; its lock acquisition is ordered after every
	// earlier joiner's tax.
	room.Lock()
	o.joinMu.Unlock()
	defer room.Unlock()

	room.Pot = o.potl.AddEntryTax(room.Pot)
	o.logger.Info("participant joined",
		zap.String("roomID", room.ID),
		zap.String("userID", userID),
		zap.Float64("roomPot", room.Pot),
	)

	if filled {
		o.startGameLocked(ctx, room)
	}
	return room.ID, nil
}

// startGameLocked fires when the last seat fills: the platform matches
// the collected taxes 1:1, the durable record is created, the balls are
// generated from the pot and the first round is prepared.
func (o *Orchestrator) startGameLocked(ctx context.Context, room *registry.Room) {
	if room.State != registry.StateWaiting {
		return
	}
	room.State = registry.StateFull
	room.Pot = o.potl.DoubleAtGameStart(room.Pot)

	identities := o.reg.RoomIdentities(room.ID)
	recordRef, err := o.store.CreateRecord(ctx, identities)
	if err != nil {
		// The game still runs; it just leaves no durable trail.
		o.logger.Error("failed to create game record", zap.String("roomID", room.ID), zap.Error(err))
	} else {
		room.RecordRef = recordRef
	}

	generated := o.dist.Generate(room.Pot, len(identities))
	room.Assignment = o.dist.Assign(generated, identities)

	o.emitRoom(room.ID, EventStartGame, map[string]interface{}{
		"roomPot":       room.Pot,
		"players":       identities,
		"roundDuration": durationMs(o.cfg.RoundDuration),
	})

	o.logger.Info("game started",
		zap.String("roomID", room.ID),
		zap.Float64("roomPot", room.Pot),
		zap.Int("players", len(identities)),
	)

	o.toPreparingRoundLocked(room)
}

func (o *Orchestrator) toPreparingRoundLocked(room *registry.Room) {
	room.State = registry.StatePreparingRound
	o.emitRoom(room.ID, EventPrepareRound, map[string]interface{}{
		"prepareDuration": durationMs(o.cfg.PrepareDuration),
	})
	roomID := room.ID
	room.SetTimer(time.AfterFunc(o.cfg.PrepareDuration, func() { o.startRound(roomID) }))
}

// startRound redeals the surviving balls, reveals the first two of each
// holding, bumps the round counter and arms the round timer.
func (o *Orchestrator) startRound(roomID string) {
	room, err := o.reg.Room(roomID)
	if err != nil {
		return // room torn down before the timer was cancelled
	}
	room.Lock()
	defer room.Unlock()
	if room.State != registry.StatePreparingRound {
		return // stale timer
	}
	room.ClearTimer()

	identities := o.reg.RoomIdentities(room.ID)
	room.Assignment = o.dist.Assign(room.Assignment.Remaining(), identities)
	room.Round++
	room.State = registry.StateRoundActive

	shown := room.Assignment.Reveal()
	for _, userID := range identities {
		sessionID, err := o.reg.UserSession(userID)
		if err != nil {
			continue
		}
		held, _ := room.Assignment.Balls(userID)
		o.emit.Emit([]string{sessionID}, EventStartRound, map[string]interface{}{
			"round":         room.Round,
			"roundDuration": durationMs(o.cfg.RoundDuration),
			"balls":         held,
			"shownBalls":    shown,
		})
	}

	o.logger.Info("round started", zap.String("roomID", room.ID), zap.Int("round", room.Round))
	room.SetTimer(time.AfterFunc(o.cfg.RoundDuration, func() { o.endRound(roomID) }))
}

// Vote records a kick nomination for the current round. Late or
// misdirected votes come back as ErrInvalidState/ErrNotFound for the
// boundary to swallow.
func (o *Orchestrator) Vote(ctx context.Context, sessionID, targetID string) error {
	room, err := o.reg.RoomBySession(sessionID)
	if err != nil {
		return err
	}
	voter, err := o.reg.SessionUser(sessionID)
	if err != nil {
		return err
	}
	room.Lock()
	defer room.Unlock()
	if room.State != registry.StateRoundActive {
		return fmt.Errorf("vote outside an active round: %w", models.ErrInvalidState)
	}
	room.RecordVote(room.Round, voter, targetID)
	o.appendEventLocked(ctx, room, "kick-vote", map[string]interface{}{
		"voter":  voter,
		"target": targetID,
	})
	return nil
}

func (o *Orchestrator) endRound(roomID string) {
	room, err := o.reg.Room(roomID)
	if err != nil {
		return
	}
	room.Lock()
	defer room.Unlock()
	o.endRoundLocked(context.Background(), room)
}

// endRoundLocked resolves the elimination: tally this round's votes,
// kick the loser, drop their balls, recompute the pot and either loop
// into the next round or hand the last two over to the payoff phase.
func (o *Orchestrator) endRoundLocked(ctx context.Context, room *registry.Room) {
	if room.State != registry.StateRoundActive {
		return
	}
	room.ClearTimer()
	room.State = registry.StateRoundEnding

	identities := o.reg.RoomIdentities(room.ID)
	active := make(map[string]bool, len(identities))
	for _, id := range identities {
		active[id] = true
	}

	// Votes from stale rounds never count; votes involving a meanwhile
	// departed participant are dropped too.
	var nominations []string
	for _, kickVote := range room.VotesForRound(room.Round) {
		if active[kickVote.Voter] && active[kickVote.Target] {
			nominations = append(nominations, kickVote.Target)
		}
	}
	if len(nominations) == 0 {
		// A silent room still eliminates someone: everyone counts as
		// nominating themselves, leaving the tie-break to decide.
		nominations = identities
	}

	kicked, err := vote.Resolve(nominations, func(playerID string) float64 {
		sum, _ := room.Assignment.RevealedSum(playerID)
		return sum
	})
	if err != nil {
		o.logger.Error("elimination resolution failed", zap.String("roomID", room.ID), zap.Error(err))
		return
	}

	audience := o.reg.RoomSessions(room.ID)
	kickedSession, err := o.reg.UserSession(kicked)
	if err != nil {
		o.logger.Error("kicked participant has no session", zap.String("userID", kicked))
		return
	}
	if _, _, err := o.reg.RemoveSession(kickedSession); err != nil {
		o.logger.Error("failed to remove kicked session", zap.String("sessionID", kickedSession), zap.Error(err))
	}

	room.Assignment = room.Assignment.RemovePlayer(kicked)
	killers, newPot := o.potl.RecalculateAfterElimination(room.Assignment.Remaining())
	room.Pot = newPot

	// The eliminated participant pays the flat elimination fee.
	if err := o.ledger.AdjustBalance(ctx, kicked, -o.cfg.EntryTax); err != nil {
		o.logger.Error("elimination fee adjustment failed, queued for retry",
			zap.String("userID", kicked), zap.Error(err))
	}

	o.appendEventLocked(ctx, room, EventEndRound, map[string]interface{}{
		"kicked":  kicked,
		"roomPot": room.Pot,
	})
	o.emit.Emit(audience, EventEndRound, map[string]interface{}{
		"kicked":               kicked,
		"roomPot":              room.Pot,
		"killerBallsRemaining": killers,
		"round":                room.Round,
	})
	o.emit.CloseSession(kickedSession)

	o.logger.Info("round ended",
		zap.String("roomID", room.ID),
		zap.Int("round", room.Round),
		zap.String("kicked", kicked),
		zap.Float64("roomPot", room.Pot),
	)

	if len(o.reg.RoomSessions(room.ID)) == 2 {
		o.prepareFinalLocked(ctx, room)
		return
	}
	o.toPreparingRoundLocked(room)
}

// prepareFinalLocked records the last two participants as finalists and
// schedules the payoff round.
func (o *Orchestrator) prepareFinalLocked(ctx context.Context, room *registry.Room) {
	room.State = registry.StatePreparingFinal
	identities := o.reg.RoomIdentities(room.ID)
	if len(identities) < 2 {
		o.logger.Error("cannot prepare final without two finalists", zap.String("roomID", room.ID))
		return
	}
	room.Finalists = final.New(identities[0], identities[1])

	payload := map[string]interface{}{
		"finalists": map[string]string{
			"player1Id": identities[0],
			"player2Id": identities[1],
		},
		"roomPot":         room.Pot,
		"prepareDuration": durationMs(o.cfg.PrepareDuration),
	}
	o.appendEventLocked(ctx, room, EventPrepareFinal, payload)
	o.emitRoom(room.ID, EventPrepareFinal, payload)

	roomID := room.ID
	room.SetTimer(time.AfterFunc(o.cfg.PrepareDuration, func() { o.startFinal(roomID) }))
}

func (o *Orchestrator) startFinal(roomID string) {
	room, err := o.reg.Room(roomID)
	if err != nil {
		return
	}
	room.Lock()
	defer room.Unlock()
	if room.State != registry.StatePreparingFinal {
		return
	}
	room.ClearTimer()
	room.State = registry.StateFinalActive

	o.emitRoom(room.ID, EventStartFinal, map[string]interface{}{
		"roundDuration": durationMs(o.cfg.RoundDuration),
	})
	o.logger.Info("final started", zap.String("roomID", room.ID))
	room.SetTimer(time.AfterFunc(o.cfg.RoundDuration, func() { o.endFinal(roomID) }))
}

// Choice records a finalist's split-or-steal decision. Overwrites are
// fine until the phase closes; late submissions are rejected.
func (o *Orchestrator) Choice(ctx context.Context, sessionID string, choice final.Choice) error {
	room, err := o.reg.RoomBySession(sessionID)
	if err != nil {
		return err
	}
	userID, err := o.reg.SessionUser(sessionID)
	if err != nil {
		return err
	}
	room.Lock()
	defer room.Unlock()
	if room.State != registry.StateFinalActive || room.Finalists == nil {
		return fmt.Errorf("choice outside the payoff round: %w", models.ErrInvalidState)
	}
	if err := room.Finalists.SetChoice(userID, choice); err != nil {
		return err
	}
	o.appendEventLocked(ctx, room, "final-choice", map[string]interface{}{
		"player": userID,
		"choice": choice,
	})
	return nil
}

func (o *Orchestrator) endFinal(roomID string) {
	room, err := o.reg.Room(roomID)
	if err != nil {
		return
	}
	room.Lock()
	defer room.Unlock()
	o.endFinalLocked(context.Background(), room)
}

// endFinalLocked closes the choice phase, settles both balances exactly
// once and tears the room down.
func (o *Orchestrator) endFinalLocked(ctx context.Context, room *registry.Room) {
	if room.Settled {
		return
	}
	if room.State != registry.StateFinalActive && room.State != registry.StatePreparingFinal {
		return
	}
	if room.Finalists == nil {
		return
	}
	room.ClearTimer()

	choice1, choice2 := room.Finalists.Close()
	delta1, delta2 := o.potl.SettleFinal(choice1, choice2, room.Pot)
	room.Settled = true
	room.State = registry.StateTerminal

	settle := func(userID string, delta float64) {
		if err := o.ledger.AdjustBalance(ctx, userID, delta); err != nil {
			o.logger.Error("settlement adjustment failed, queued for retry",
				zap.String("userID", userID), zap.Float64("delta", delta), zap.Error(err))
		}
	}
	settle(room.Finalists.Player1ID, delta1)
	settle(room.Finalists.Player2ID, delta2)

	result := map[string]interface{}{
		"player1": map[string]interface{}{
			"id":            room.Finalists.Player1ID,
			"choice":        choice1,
			"resultBalance": delta1,
		},
		"player2": map[string]interface{}{
			"id":            room.Finalists.Player2ID,
			"choice":        choice2,
			"resultBalance": delta2,
		},
	}
	o.appendEventLocked(ctx, room, EventEndGame, result)
	o.emitRoom(room.ID, EventEndGame, result)

	o.logger.Info("game settled",
		zap.String("roomID", room.ID),
		zap.String("choice1", string(choice1)),
		zap.String("choice2", string(choice2)),
		zap.Float64("delta1", delta1),
		zap.Float64("delta2", delta2),
	)

	for _, sessionID := range o.reg.RoomSessions(room.ID) {
		o.emit.CloseSession(sessionID)
		if _, _, err := o.reg.RemoveSession(sessionID); err != nil {
			o.logger.Error("teardown removal failed", zap.String("sessionID", sessionID), zap.Error(err))
		}
	}
}

// Message relays a chat message to the room and appends it to the
// durable record.
func (o *Orchestrator) Message(ctx context.Context, sessionID, text string) error {
	room, err := o.reg.RoomBySession(sessionID)
	if err != nil {
		return err
	}
	userID, err := o.reg.SessionUser(sessionID)
	if err != nil {
		return err
	}
	room.Lock()
	defer room.Unlock()
	payload := map[string]interface{}{
		"from": userID,
		"text": text,
	}
	o.appendEventLocked(ctx, room, EventMessage, payload)
	o.emitRoom(room.ID, EventMessage, payload)
	return nil
}

// Leave handles a disconnect in any phase. The departed participant's
// balls leave play immediately and the room's current phase is forced
// to an end rather than left waiting on a timer.
func (o *Orchestrator) Leave(ctx context.Context, sessionID string) {
	room, err := o.reg.RoomBySession(sessionID)
	if err != nil {
		o.reg.UnbindSession(sessionID)
		return
	}
	room.Lock()
	defer room.Unlock()

	leaver, _ := o.reg.SessionUser(sessionID)
	_, empty, err := o.reg.RemoveSession(sessionID)
	if err != nil {
		// A racing teardown already removed the session.
		return
	}
	o.logger.Info("participant left",
		zap.String("roomID", room.ID),
		zap.String("userID", leaver),
		zap.String("state", string(room.State)),
	)

	if leaver != "" && room.Assignment != nil {
		room.Assignment = room.Assignment.RemovePlayer(leaver)
	}

	if empty {
		if err := room.CancelTimer(); err != nil {
			o.logger.Debug("teardown with no outstanding timer", zap.String("roomID", room.ID))
		}
		o.logger.Info("room torn down", zap.String("roomID", room.ID))
		return
	}

	switch room.State {
	case registry.StateRoundActive:
		o.cancelTimerLocked(room)
		_, room.Pot = o.potl.RecalculateAfterElimination(room.Assignment.Remaining())
		if len(o.reg.RoomSessions(room.ID)) == 2 {
			o.prepareFinalLocked(ctx, room)
			return
		}
		o.endRoundLocked(ctx, room)
	case registry.StatePreparingRound:
		_, room.Pot = o.potl.RecalculateAfterElimination(room.Assignment.Remaining())
		if len(o.reg.RoomSessions(room.ID)) == 2 {
			o.cancelTimerLocked(room)
			o.prepareFinalLocked(ctx, room)
		}
		// Otherwise the pending round start simply deals to the
		// remaining roster.
	case registry.StateFinalActive, registry.StatePreparingFinal:
		o.cancelTimerLocked(room)
		o.endFinalLocked(ctx, room)
	}
}

// cancelTimerLocked cancels the room's timer; a timer that already
// fired is a no-op at this layer, logged for diagnostics only.
func (o *Orchestrator) cancelTimerLocked(room *registry.Room) {
	if err := room.CancelTimer(); err != nil {
		o.logger.Debug("no timer to cancel", zap.String("roomID", room.ID), zap.Error(err))
	}
}

func (o *Orchestrator) emitRoom(roomID, event string, payload interface{}) {
	o.emit.Emit(o.reg.RoomSessions(roomID), event, payload)
}

// appendEventLocked persists an event on the room's durable record,
// best effort.
func (o *Orchestrator) appendEventLocked(ctx context.Context, room *registry.Room, eventType string, payload interface{}) {
	if room.RecordRef == "" {
		return
	}
	if err := o.store.AppendEvent(ctx, room.RecordRef, room.Round, eventType, payload); err != nil {
		o.logger.Warn("failed to append game event",
			zap.String("roomID", room.ID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}

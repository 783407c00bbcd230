package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/usibridge/internal/clock"
	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/tracing"
	"github.com/zjrosen/usibridge/internal/usi"
)

// DefaultInfoInterval is the minimum spacing of Info events.
const DefaultInfoInterval = 500 * time.Millisecond

// DefaultEventBuffer is the capacity of the Events channel.
const DefaultEventBuffer = 64

// Config configures a session.
type Config struct {
	ID           int
	Descriptor   *engine.Descriptor
	InfoInterval time.Duration
	EventBuffer  int
	Tracer       trace.Tracer
}

type searchKind int

const (
	kindThink searchKind = iota
	kindPonder
	kindInfinite
	kindMate
)

func (k searchKind) String() string {
	switch k {
	case kindThink:
		return "think"
	case kindPonder:
		return "ponder"
	case kindInfinite:
		return "infinite"
	case kindMate:
		return "mate"
	default:
		return "unknown"
	}
}

// search is one "go" the engine has not answered yet. Engines answer in
// order, so the head of the queue owns the next terminal reply. A stale
// search was stopped or superseded; its reply is dropped.
type search struct {
	ctx   string
	kind  searchKind
	pos   Position
	stale bool
}

// Session is one conversation with a running engine. Commands are accepted
// only in states that allow them; overlapping searches fail with ErrBusy.
// Events are delivered in order on Events until Quit.
type Session struct {
	id           int
	conn         Conn
	desc         *engine.Descriptor
	tracer       trace.Tracer
	infoInterval time.Duration

	mu         sync.Mutex
	state      State
	idle       chan struct{}
	queue      []*search
	prediction string
	readyCh    chan struct{}
	closed     bool
	lost       bool

	info      *SearchInfo
	infoDirty bool
	infoTimer *time.Timer
	infoGen   int
	lastInfo  time.Time

	out      *outbox
	loopDone chan struct{}
}

// New starts a session over conn. The descriptor is copied.
func New(conn Conn, cfg Config) *Session {
	if cfg.InfoInterval <= 0 {
		cfg.InfoInterval = DefaultInfoInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	desc := engine.NewDescriptor()
	if cfg.Descriptor != nil {
		desc = cfg.Descriptor.Clone()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}
	idle := make(chan struct{})
	close(idle)

	s := &Session{
		id:           cfg.ID,
		conn:         conn,
		desc:         desc,
		tracer:       tracer,
		infoInterval: cfg.InfoInterval,
		state:        Idle,
		idle:         idle,
		out:          newOutbox(cfg.EventBuffer),
		loopDone:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// ID returns the session id.
func (s *Session) ID() int { return s.id }

// Events returns the session's outbound events. It is closed by Quit.
func (s *Session) Events() <-chan Event { return s.out.out }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Descriptor returns a copy of the engine descriptor, including options
// changed with SetOption.
func (s *Session) Descriptor() *engine.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc.Clone()
}

// Prediction returns the position the engine expects after its last best
// move and predicted reply, or "" when there is none.
func (s *Session) Prediction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prediction
}

// LastInfo returns the latest search info, delivered or not.
func (s *Session) LastInfo() (SearchInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return SearchInfo{}, false
	}
	return s.info.clone(), true
}

// Ready sends "isready", waits for "readyok" and starts a new game.
func (s *Session) Ready(ctx context.Context) error {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanReady, attribute.Int(tracing.AttrSessionID, s.id))
	err := s.ready(ctx)
	tracing.End(span, err)
	return err
}

func (s *Session) ready(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != Idle || s.readyCh != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	ch := make(chan struct{})
	s.readyCh = ch
	if err := s.send(usi.IsReady()); err != nil {
		s.readyCh = nil
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		s.mu.Lock()
		if s.readyCh == ch {
			s.readyCh = nil
		}
		s.mu.Unlock()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.send(usi.NewGame())
}

// Search starts a search for pos. When the engine is pondering exactly pos
// and pondering is enabled, "ponderhit" converts the ponder into the search
// without a new "go". Any other ponder is stopped and a fresh search starts.
func (s *Session) Search(ctx context.Context, pos Position, ts clock.TimeStates) error {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanSearch,
		attribute.Int(tracing.AttrSessionID, s.id),
		attribute.String(tracing.AttrPosition, pos.USI()))
	hit, err := s.search(pos, ts)
	span.SetAttributes(attribute.Bool(tracing.AttrPonderHit, hit))
	tracing.End(span, err)
	return err
}

func (s *Session) search(pos Position, ts clock.TimeStates) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return false, err
	}

	ctx := pos.USI()
	switch s.state {
	case Idle:
	case Pondering:
		p := s.current()
		if p != nil && p.kind == kindPonder && p.ctx == ctx && s.desc.PonderEnabled() {
			if err := s.send(usi.PonderHit()); err != nil {
				return false, err
			}
			p.kind = kindThink
			p.pos = pos.Clone()
			s.prediction = ""
			s.settle()
			if s.info != nil {
				s.scheduleInfo()
			}
			log.Debug(log.CatSession, "ponder hit", "session", s.id, "position", ctx)
			return true, nil
		}
		if err := s.send(usi.Stop()); err != nil {
			return false, err
		}
		for _, q := range s.queue {
			q.stale = true
		}
		log.Debug(log.CatSession, "ponder aborted", "session", s.id, "position", ctx)
	default:
		return false, ErrBusy
	}
	params := usi.GoParams{Mode: usi.GoNormal, Time: clock.Compute(ts, pos.SideToMove())}
	return false, s.start(ctx, pos, kindThink, params)
}

// Ponder starts pondering on the reply the engine predicted with its last
// best move. It does nothing unless pos is the position after that best move,
// the predicted reply decodes in pos, and the engine's USI_Ponder option is
// enabled.
func (s *Session) Ponder(ctx context.Context, pos Position, ts clock.TimeStates) error {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanPonder,
		attribute.Int(tracing.AttrSessionID, s.id),
		attribute.String(tracing.AttrPosition, pos.USI()))
	err := s.ponder(pos, ts)
	tracing.End(span, err)
	return err
}

func (s *Session) ponder(pos Position, ts clock.TimeStates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrBusy
	}

	prediction := s.prediction
	if prediction == "" || !s.desc.PonderEnabled() {
		return nil
	}
	reply, ok := usi.NextMove(prediction, pos.USI())
	if !ok {
		return nil
	}
	next := pos.Clone()
	m, ok := next.ParseMove(reply)
	if !ok || !next.DoMove(m) {
		log.Debug(log.CatSession, "predicted move does not apply", "session", s.id, "move", reply)
		return nil
	}
	params := usi.GoParams{Mode: usi.GoPonder, Time: clock.Compute(ts, next.SideToMove())}
	return s.start(prediction, next, kindPonder, params)
}

// Analyze starts an infinite search that runs until Stop.
func (s *Session) Analyze(ctx context.Context, pos Position) error {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanSearch,
		attribute.Int(tracing.AttrSessionID, s.id),
		attribute.String(tracing.AttrSessionMode, kindInfinite.String()),
		attribute.String(tracing.AttrPosition, pos.USI()))
	err := s.startFromIdle(pos, kindInfinite, usi.GoParams{Mode: usi.GoInfinite})
	tracing.End(span, err)
	return err
}

// MateSearch starts a mate search. A zero timeout searches without limit.
func (s *Session) MateSearch(ctx context.Context, pos Position, timeout time.Duration) error {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanMateSearch,
		attribute.Int(tracing.AttrSessionID, s.id),
		attribute.String(tracing.AttrPosition, pos.USI()))
	params := usi.GoParams{Mode: usi.GoMate, MateMillis: int(timeout.Milliseconds())}
	err := s.startFromIdle(pos, kindMate, params)
	tracing.End(span, err)
	return err
}

func (s *Session) startFromIdle(pos Position, kind searchKind, params usi.GoParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrBusy
	}
	return s.start(pos.USI(), pos, kind, params)
}

// start sends position and go for ctx. pos is the position the engine's
// moves are decoded against. Callers hold s.mu.
func (s *Session) start(ctx string, pos Position, kind searchKind, params usi.GoParams) error {
	s.resetInfo()
	s.prediction = ""
	if err := s.send(usi.Position(ctx), usi.Go(params)); err != nil {
		s.settle()
		return err
	}
	s.queue = append(s.queue, &search{ctx: ctx, kind: kind, pos: pos.Clone()})
	s.settle()
	log.Debug(log.CatSession, "search started",
		"session", s.id, "kind", kind, "position", ctx, "state", s.state)
	return nil
}

// Stop asks the engine to end the running search. The search becomes stale:
// its reply is dropped, and the session is Idle once that reply arrives.
// Stop does nothing when no search is running.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	switch s.state {
	case Thinking, Pondering, MateSearching:
	default:
		return nil
	}
	if err := s.send(usi.Stop()); err != nil {
		return err
	}
	for _, q := range s.queue {
		q.stale = true
	}
	s.cancelInfo()
	s.settle()
	log.Debug(log.CatSession, "stop requested", "session", s.id, "pending", len(s.queue))
	return nil
}

// WaitIdle blocks until the session is Idle.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GameOver reports the game result to the engine. The state is unchanged.
func (s *Session) GameOver(outcome usi.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.prediction = ""
	return s.send(usi.GameOver(outcome))
}

// SetOption changes an engine option while Idle. Known options are checked
// against their declared type; buttons are pressed.
func (s *Session) SetOption(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.state != Idle {
		return ErrBusy
	}
	opt, ok := s.desc.Options[name]
	if !ok {
		return s.send(usi.SetOption(name, value))
	}
	if _, isButton := opt.(*engine.ButtonOption); isButton {
		return s.send(usi.SetButton(name))
	}
	updated, err := engine.WithValue(opt, value)
	if err != nil {
		return err
	}
	if err := engine.ValidateOption(updated); err != nil {
		return err
	}
	if err := s.send(usi.SetOption(name, value)); err != nil {
		return err
	}
	s.desc.Options[name] = updated
	return nil
}

// Quit closes the connection and the Events channel. It is idempotent.
func (s *Session) Quit() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelInfo()
	s.queue = nil
	s.settle()
	if s.readyCh != nil {
		close(s.readyCh)
		s.readyCh = nil
	}
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.loopDone
	s.out.close()
	log.Debug(log.CatSession, "session closed", "session", s.id)
	return err
}

func (s *Session) usable() error {
	if s.closed {
		return ErrClosed
	}
	if s.lost {
		return ErrChannelClosed
	}
	return nil
}

func (s *Session) send(lines ...string) error {
	for _, line := range lines {
		if err := s.conn.Send(line); err != nil {
			return fmt.Errorf("session %d: %w", s.id, err)
		}
	}
	return nil
}

// current returns the search the engine is working on, or nil when that
// search is stale or there is none.
func (s *Session) current() *search {
	if len(s.queue) == 0 || s.queue[0].stale {
		return nil
	}
	return s.queue[0]
}

// settle derives the state from the queue: only the newest search can be
// live.
func (s *Session) settle() {
	next := Idle
	if n := len(s.queue); n > 0 {
		last := s.queue[n-1]
		switch {
		case last.stale:
			next = AwaitingStop
		case last.kind == kindPonder:
			next = Pondering
		case last.kind == kindMate:
			next = MateSearching
		default:
			next = Thinking
		}
	}
	if next == s.state {
		return
	}
	if s.state == Idle {
		s.idle = make(chan struct{})
	} else if next == Idle {
		close(s.idle)
	}
	s.state = next
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for ev := range s.conn.Events() {
		s.handle(ev)
	}
	if x, ok := s.conn.(interface{ Exited() <-chan struct{} }); ok {
		select {
		case <-x.Exited():
		case <-time.After(time.Second):
		}
	}
	s.onConnClosed()
}

func (s *Session) onConnClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	cause := ErrChannelClosed
	if x, ok := s.conn.(interface{ Err() error }); ok {
		if err := x.Err(); err != nil {
			cause = err
			if !errors.Is(err, ErrChannelClosed) {
				cause = fmt.Errorf("%w: %v", ErrChannelClosed, err)
			}
		}
	}
	log.Warn(log.CatSession, "engine connection lost", "session", s.id, "error", cause)

	s.lost = true
	s.cancelInfo()
	s.queue = nil
	s.prediction = ""
	s.settle()
	if s.readyCh != nil {
		close(s.readyCh)
		s.readyCh = nil
	}
	s.out.push(Error{Err: cause})
}

func (s *Session) handle(ev usi.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch e := ev.(type) {
	case usi.BestMove:
		s.onBestMove(e)
	case usi.Info:
		s.onInfo(e)
	case usi.Checkmate, usi.CheckmateNotImplemented, usi.CheckmateTimeout, usi.CheckmateNoMate:
		s.onMateResult(e)
	case usi.ReadyOK:
		if s.readyCh != nil {
			close(s.readyCh)
			s.readyCh = nil
		}
	case usi.Unknown:
		log.Debug(log.CatSession, "ignoring unknown line", "session", s.id, "line", e.Line)
	default:
		log.Debug(log.CatSession, "ignoring event", "session", s.id, "event", fmt.Sprintf("%T", ev))
	}
}

func (s *Session) onBestMove(e usi.BestMove) {
	if len(s.queue) == 0 {
		log.Debug(log.CatSession, "bestmove without a search", "session", s.id, "move", e.Move)
		return
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	defer s.settle()

	switch {
	case head.stale:
		log.Debug(log.CatSession, "dropping stale bestmove", "session", s.id, "position", head.ctx, "move", e.Move)
		return
	case head.kind == kindPonder:
		log.Debug(log.CatSession, "dropping bestmove of unresolved ponder", "session", s.id, "position", head.ctx)
		s.cancelInfo()
		return
	case head.kind == kindMate:
		s.cancelInfo()
		s.violation(head, e.Move, "bestmove in reply to a mate search")
		s.out.push(NoMate{Position: head.ctx})
		return
	}

	s.flushInfo()
	switch e.Move {
	case usi.MoveResign:
		s.out.push(Resign{Position: head.ctx})
		return
	case usi.MoveWin:
		s.out.push(Win{Position: head.ctx})
		return
	}
	move, ok := head.pos.ParseMove(e.Move)
	if !ok {
		s.violation(head, e.Move, "undecodable best move")
		s.out.push(Resign{Position: head.ctx})
		return
	}
	if e.Ponder != "" {
		s.prediction = usi.AppendMoves(head.ctx, e.Move, e.Ponder)
	}

	ev := BestMove{Position: head.ctx, Move: move}
	if i := s.info; i != nil && i.Position == head.ctx && len(i.PV) > 0 && i.PV[0].USI() == move.USI() {
		info := i.clone()
		info.PV = info.PV[1:]
		ev.Info = &info
	}
	s.out.push(ev)
}

func (s *Session) onMateResult(ev usi.Event) {
	if len(s.queue) == 0 || s.queue[0].kind != kindMate {
		log.Debug(log.CatSession, "mate result without a mate search", "session", s.id, "event", fmt.Sprintf("%T", ev))
		return
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	defer s.settle()
	if head.stale {
		log.Debug(log.CatSession, "dropping stale mate result", "session", s.id, "position", head.ctx)
		return
	}
	s.flushInfo()

	switch e := ev.(type) {
	case usi.Checkmate:
		pos := head.pos.Clone()
		moves := make([]Move, 0, len(e.Moves))
		for _, raw := range e.Moves {
			m, ok := pos.ParseMove(raw)
			if !ok {
				s.violation(head, raw, "undecodable mate move")
				s.out.push(NoMate{Position: head.ctx})
				return
			}
			if !pos.DoMove(m) {
				s.violation(head, raw, "illegal mate move")
				s.out.push(NoMate{Position: head.ctx})
				return
			}
			moves = append(moves, m)
		}
		s.out.push(Checkmate{Position: head.ctx, Moves: moves})
	case usi.CheckmateNotImplemented:
		s.out.push(MateNotImplemented{Position: head.ctx})
	case usi.CheckmateTimeout:
		s.out.push(MateTimeout{Position: head.ctx})
	case usi.CheckmateNoMate:
		s.out.push(NoMate{Position: head.ctx})
	}
}

func (s *Session) violation(head *search, move, reason string) {
	err := &ProtocolViolation{Position: head.ctx, Move: move, Reason: reason}
	log.Warn(log.CatSession, "protocol violation", "session", s.id, "error", err)
	s.out.push(Error{Err: err})
}

func (s *Session) onInfo(e usi.Info) {
	if len(s.queue) == 0 {
		return
	}
	cur := s.queue[0]
	// A stopped search still updates the snapshot until a newer search is
	// queued behind it.
	if cur.stale && len(s.queue) > 1 {
		return
	}
	if e.MultiPV != nil && *e.MultiPV != 1 {
		return
	}
	info := SearchInfo{Position: cur.ctx, Depth: e.Depth}
	if e.Score != nil {
		v := e.Score.Value * cur.pos.SideToMove().Sign()
		if e.Score.Mate {
			info.Mate = &v
		} else {
			info.Score = &v
		}
	}
	moves := e.PV
	if len(moves) == 0 && e.CurrMove != "" {
		moves = []string{e.CurrMove}
	}
	info.PV = decodePV(cur.pos, moves)
	s.info = &info

	// Ponder progress is held back until the ponder is hit.
	if cur.stale || cur.kind == kindPonder {
		return
	}
	s.scheduleInfo()
}

// decodePV decodes moves from pos, stopping at the first one that does not
// apply.
func decodePV(pos Position, moves []string) []Move {
	if len(moves) == 0 {
		return nil
	}
	p := pos.Clone()
	out := make([]Move, 0, len(moves))
	for _, raw := range moves {
		m, ok := p.ParseMove(raw)
		if !ok || !p.DoMove(m) {
			break
		}
		out = append(out, m)
	}
	return out
}

// scheduleInfo delivers the latest info now when the interval has passed
// since the last delivery, otherwise once it has.
func (s *Session) scheduleInfo() {
	s.infoDirty = true
	if s.infoTimer != nil {
		return
	}
	wait := s.infoInterval - time.Since(s.lastInfo)
	if s.lastInfo.IsZero() || wait <= 0 {
		s.deliverInfo()
		return
	}
	gen := s.infoGen
	s.infoTimer = time.AfterFunc(wait, func() { s.onInfoTimer(gen) })
}

func (s *Session) onInfoTimer(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.infoGen || s.closed {
		return
	}
	s.infoTimer = nil
	if s.infoDirty {
		s.deliverInfo()
	}
}

func (s *Session) deliverInfo() {
	s.infoDirty = false
	s.lastInfo = time.Now()
	if s.info != nil {
		s.out.push(Info{SearchInfo: s.info.clone()})
	}
}

// cancelInfo drops any pending delivery.
func (s *Session) cancelInfo() {
	s.infoGen++
	if s.infoTimer != nil {
		s.infoTimer.Stop()
		s.infoTimer = nil
	}
	s.infoDirty = false
}

// flushInfo delivers a pending info immediately.
func (s *Session) flushInfo() {
	dirty := s.infoDirty
	s.cancelInfo()
	if dirty {
		s.deliverInfo()
	}
}

func (s *Session) resetInfo() {
	s.cancelInfo()
	s.info = nil
	s.lastInfo = time.Time{}
}

// Package agent implements the control-plane protocol core: the session
// state machine, the procedure dispatcher, and the composition of
// transport, codec, and scheduler. All protocol state is mutated on the
// goroutine driving the scheduler; the transport receive path hands off
// through a queue push and never touches session state directly.
package agent

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/observability"
	"github.com/oranlabs/ricagent/internal/sched"
	"github.com/oranlabs/ricagent/internal/transport"
)

// Config carries everything the agent needs to run one session.
type Config struct {
	Name              string
	BindAddress       string
	RICAddress        string
	NodeID            uint64
	Functions         []e2ap.RANFunction
	SetupTimeoutTicks uint64
	MaxSubscriptions  int
	Backoff           BackoffConfig
}

// WithDefaults fills unset tuning fields.
func (c Config) WithDefaults() Config {
	if c.SetupTimeoutTicks == 0 {
		c.SetupTimeoutTicks = 1000
	}
	if c.MaxSubscriptions == 0 {
		c.MaxSubscriptions = 64
	}
	if c.Backoff.InitialTicks == 0 {
		c.Backoff = DefaultBackoffConfig()
	}
	return c
}

// Agent owns the transport endpoint, the scheduler, and the session.
type Agent struct {
	cfg   Config
	log   zerolog.Logger
	ep    transport.Endpoint
	sched *sched.Scheduler
	queue *sched.Queue
	sess  *session
	rng   *rand.Rand

	txID           uint64
	attempt        int
	retryTimer     *sched.Timer
	reconnectTimer *sched.Timer

	mu      sync.Mutex
	started bool
	stopped bool

	status atomic.Pointer[Status]
}

// New wires an agent around ep. The endpoint callbacks are registered
// here, before any connection exists.
func New(cfg Config, ep transport.Endpoint, log zerolog.Logger) *Agent {
	cfg = cfg.WithDefaults()
	a := &Agent{
		cfg:   cfg,
		ep:    ep,
		sched: sched.New(),
		sess:  newSession(cfg.NodeID),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	a.log = log.With().
		Str("component", "agent").
		Str("session", a.sess.tag.String()).
		Logger()
	a.queue = a.sched.NewQueue("ric-rx")
	ep.OnReceive(a.onReceive)
	ep.OnError(a.onTransportError)
	a.publishStatus()
	return a
}

// Start opens and connects the transport and queues the initial setup
// request. It is idempotent; a stopped agent cannot be restarted.
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return errors.New("agent: already stopped")
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	a.transition(StateConnecting, "start")
	a.publishStatus()
	if err := a.ep.Open(a.cfg.BindAddress); err != nil {
		return err
	}
	if err := a.ep.Connect(a.cfg.RICAddress); err != nil {
		a.log.Warn().Err(err).Str("ric", a.cfg.RICAddress).Msg("initial connect failed, retrying")
		a.scheduleReconnect()
		return nil
	}
	a.queue.Push(a.sendSetupRequest)
	return nil
}

// Tick advances the scheduler by one time unit. An external driver
// calls this at a fixed cadence.
func (a *Agent) Tick() {
	a.sched.Tick()
}

// RunNextTask blocks until one task is available and executes it. It
// backs a run loop when no external tick driver exists.
func (a *Agent) RunNextTask() bool {
	return a.sched.RunNextTask()
}

// Run drives the agent with a wall-clock ticker until ctx is done.
func (a *Agent) Run(ctx context.Context, tickPeriod time.Duration) error {
	if err := a.Start(); err != nil {
		return err
	}
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Stop()
			return ctx.Err()
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Stop discards pending timers and tasks and closes the endpoint
// exactly once. Stopping twice is a no-op.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.sched.Stop()
	_ = a.ep.Close()
	a.sess.state = StateDisconnected
	a.log.Info().Msg("agent stopped")
	a.publishStatus()
}

// SendReset initiates a reset procedure toward the peer. The request is
// queued onto the scheduler; either side may initiate a reset.
func (a *Agent) SendReset(cause e2ap.Cause) {
	a.queue.Push(func() { a.sendResetRequest(cause) })
}

// onReceive runs on the transport reader goroutine. It immediately
// hands the payload to the scheduler; decode and dispatch run there.
func (a *Agent) onReceive(payload []byte, info transport.RxInfo) {
	a.queue.Push(func() { a.decodeAndDispatch(payload) })
}

// onTransportError runs on the transport reader goroutine.
func (a *Agent) onTransportError(err error) {
	a.queue.Push(func() { a.handleTransportFatal(err) })
}

func (a *Agent) decodeAndDispatch(payload []byte) {
	pdu, err := e2ap.Decode(payload)
	if err != nil {
		// Structural errors are local: log, drop, keep the session.
		a.log.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping undecodable message")
		observability.RecordDrop("decode")
		return
	}
	observability.RecordPDUReceived(pdu.Class.String(), pdu.Procedure.String())
	a.dispatch(pdu)
	a.publishStatus()
}

// nextTransactionID issues correlation keys for initiated procedures.
func (a *Agent) nextTransactionID() uint64 {
	a.txID++
	return a.txID
}

// sendSetupRequest runs on the scheduler. It emits one setup request
// and registers the pending procedure with its expiry timer.
func (a *Agent) sendSetupRequest() {
	if a.sess.state != StateConnecting {
		a.log.Debug().Stringer("state", a.sess.state).Msg("setup attempt skipped")
		return
	}
	if a.sess.hasPendingSetup() {
		a.log.Warn().Msg("setup attempt rejected: one already pending")
		return
	}

	a.attempt++
	txID := a.nextTransactionID()
	pdu := &e2ap.PDU{
		Class:         e2ap.ClassInitiatingMessage,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: txID,
		Payload: e2ap.SetupRequest{
			NodeID:    a.cfg.NodeID,
			Functions: a.cfg.Functions,
		},
	}
	if err := a.sendPDU(pdu); err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			a.scheduleSetupRetry()
		}
		return
	}

	key := PendingKey{Procedure: e2ap.ProcedureSetup, TransactionID: txID}
	pending := &pendingProcedure{
		key:       key,
		createdAt: a.sched.Now(),
		deadline:  a.sched.Now() + a.cfg.SetupTimeoutTicks,
		timer: a.sched.StartTimer(a.cfg.SetupTimeoutTicks, func() {
			a.expirePending(key)
		}),
	}
	if err := a.sess.addPending(pending); err != nil {
		pending.timer.Stop()
		a.log.Error().Err(err).Msg("setup pending registration failed")
		return
	}
	a.transition(StateAwaitingSetupResponse, "setup request sent")
	a.publishStatus()
}

// sendResetRequest runs on the scheduler.
func (a *Agent) sendResetRequest(cause e2ap.Cause) {
	txID := a.nextTransactionID()
	pdu := &e2ap.PDU{
		Class:         e2ap.ClassInitiatingMessage,
		Procedure:     e2ap.ProcedureReset,
		TransactionID: txID,
		Payload:       e2ap.ResetRequest{Cause: cause},
	}
	if err := a.sendPDU(pdu); err != nil {
		return
	}
	key := PendingKey{Procedure: e2ap.ProcedureReset, TransactionID: txID}
	pending := &pendingProcedure{
		key:       key,
		createdAt: a.sched.Now(),
		deadline:  a.sched.Now() + a.cfg.SetupTimeoutTicks,
		timer: a.sched.StartTimer(a.cfg.SetupTimeoutTicks, func() {
			a.expirePending(key)
		}),
	}
	if err := a.sess.addPending(pending); err != nil {
		pending.timer.Stop()
		a.log.Warn().Err(err).Msg("reset pending registration failed")
	}
	a.publishStatus()
}

// expirePending fires when a procedure's deadline passes without a
// correlated response. It runs at most once per pending procedure.
func (a *Agent) expirePending(key PendingKey) {
	if _, ok := a.sess.takePending(key); !ok {
		return
	}
	a.log.Warn().
		Stringer("procedure", key.Procedure).
		Uint64("transaction_id", key.TransactionID).
		Msg("pending procedure expired")
	observability.RecordDrop("expiry")

	if key.Procedure == e2ap.ProcedureSetup && a.sess.state == StateAwaitingSetupResponse {
		a.transition(StateConnecting, "setup timeout")
		a.scheduleSetupRetry()
	}
	a.publishStatus()
}

// scheduleSetupRetry arms a backoff timer that queues the next setup
// attempt, replacing any retry already armed.
func (a *Agent) scheduleSetupRetry() {
	if a.retryTimer != nil && !a.retryTimer.Stopped() {
		a.retryTimer.Stop()
	}
	delay := nextBackoffTicks(a.cfg.Backoff, a.attempt, a.rng)
	a.log.Info().Uint64("delay_ticks", delay).Int("attempt", a.attempt).Msg("setup retry scheduled")
	a.retryTimer = a.sched.StartTimer(delay, func() {
		a.queue.Push(a.sendSetupRequest)
	})
}

// handleTransportFatal tears the session down from any state and arms a
// reconnect attempt. It runs on the scheduler.
func (a *Agent) handleTransportFatal(err error) {
	a.log.Error().Err(err).Msg("fatal transport error, tearing down session")
	observability.RecordReconnect()
	a.sess.clearPending()
	a.sess.clearSubscriptions()
	a.sess.hasRICID = false
	a.ep.Reset()
	a.transition(StateDisconnected, "transport fatal")
	a.scheduleReconnect()
	a.publishStatus()
}

// scheduleReconnect arms a backoff timer that queues a reconnect,
// replacing any reconnect already armed. A fatal error can surface
// twice per connection, once from a failed send and once from the
// reader; collapsing to one timer keeps a single dial in flight.
func (a *Agent) scheduleReconnect() {
	if a.reconnectTimer != nil && !a.reconnectTimer.Stopped() {
		a.reconnectTimer.Stop()
	}
	a.attempt++
	delay := nextBackoffTicks(a.cfg.Backoff, a.attempt, a.rng)
	a.log.Info().Uint64("delay_ticks", delay).Int("attempt", a.attempt).Msg("reconnect scheduled")
	a.reconnectTimer = a.sched.StartTimer(delay, func() {
		a.queue.Push(a.reconnect)
	})
}

// reconnect runs on the scheduler. Dialing blocks, but it is bounded by
// the endpoint's connect timeout and never runs inside a timer callback.
func (a *Agent) reconnect() {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return
	}
	// A setup already in flight or a completed one means the connection
	// came back through another path; this reconnect is stale.
	if a.sess.state == StateAwaitingSetupResponse || a.sess.state == StateEstablished {
		return
	}
	a.transition(StateConnecting, "reconnect")
	if err := a.ep.Connect(a.cfg.RICAddress); err != nil {
		a.log.Warn().Err(err).Str("ric", a.cfg.RICAddress).Msg("reconnect failed")
		a.scheduleReconnect()
		a.publishStatus()
		return
	}
	a.queue.Push(a.sendSetupRequest)
	a.publishStatus()
}

// sendPDU encodes and transmits one message on the scheduler goroutine.
// Encode failures abort only this send. Transient transport failures
// are logged and surrendered to the caller; fatal ones tear down the
// session.
func (a *Agent) sendPDU(pdu *e2ap.PDU) error {
	buf, err := e2ap.Encode(pdu)
	if err != nil {
		a.log.Error().Err(err).
			Stringer("class", pdu.Class).
			Stringer("procedure", pdu.Procedure).
			Msg("encode failed, outbound message aborted")
		return err
	}
	if _, err := a.ep.Send(buf); err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			a.log.Warn().Err(err).
				Stringer("procedure", pdu.Procedure).
				Msg("transient send failure, message not retried")
			return err
		}
		a.handleTransportFatal(err)
		return err
	}
	observability.RecordPDUSent(pdu.Class.String(), pdu.Procedure.String())
	a.log.Debug().
		Stringer("class", pdu.Class).
		Stringer("procedure", pdu.Procedure).
		Uint64("transaction_id", pdu.TransactionID).
		Msg("pdu sent")
	return nil
}

// queueSend defers a response send to a fresh scheduler task, keeping
// handler execution short.
func (a *Agent) queueSend(pdu *e2ap.PDU) {
	a.queue.Push(func() { _ = a.sendPDU(pdu) })
}

// transition moves the session to next and logs it with enough context
// to reconstruct the session history from logs alone.
func (a *Agent) transition(next State, reason string) {
	if a.sess.state == next {
		return
	}
	a.log.Info().
		Stringer("from", a.sess.state).
		Stringer("to", next).
		Str("reason", reason).
		Msg("session state transition")
	a.sess.state = next
	observability.SetSessionState(int(next))
}

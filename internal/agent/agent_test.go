package agent

import (
	"sync"
	"testing"

	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/testutil/testlog"
	"github.com/oranlabs/ricagent/internal/transport"
)

// fakeEndpoint is a scripted in-memory transport.
type fakeEndpoint struct {
	mu         sync.Mutex
	sent       [][]byte
	recvFn     transport.ReceiveFunc
	errFn      transport.ErrorFunc
	connectErr error
	sendErr    error
	opens      int
	connects   int
	resets     int
	closes     int
}

func (f *fakeEndpoint) Open(bindAddr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return nil
}

func (f *fakeEndpoint) Connect(peerAddr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeEndpoint) Send(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.sent = append(f.sent, buf)
	return len(p), nil
}

func (f *fakeEndpoint) OnReceive(fn transport.ReceiveFunc) { f.recvFn = fn }
func (f *fakeEndpoint) OnError(fn transport.ErrorFunc)     { f.errFn = fn }

func (f *fakeEndpoint) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeEndpoint) sentPDUs(t *testing.T) []*e2ap.PDU {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*e2ap.PDU, 0, len(f.sent))
	for _, buf := range f.sent {
		pdu, err := e2ap.Decode(buf)
		if err != nil {
			t.Fatalf("sent message does not decode: %v", err)
		}
		out = append(out, pdu)
	}
	return out
}

func testConfig() Config {
	return Config{
		Name:              "test-agent",
		RICAddress:        "ric.test:36421",
		NodeID:            411,
		Functions:         []e2ap.RANFunction{{ID: 147, Revision: 2, Description: "kpm"}},
		SetupTimeoutTicks: 10,
		MaxSubscriptions:  2,
		Backoff:           BackoffConfig{InitialTicks: 5, Multiplier: 2.0, MaxTicks: 50},
	}
}

// startedAgent returns an agent that has started and processed its
// initial setup task.
func startedAgent(t *testing.T) (*Agent, *fakeEndpoint) {
	t.Helper()
	ep := &fakeEndpoint{}
	a := New(testConfig(), ep, testlog.New(t))
	t.Cleanup(a.Stop)
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	a.Tick()
	return a, ep
}

// deliver injects an inbound PDU the way the transport would and runs a
// tick so the scheduler processes it.
func deliver(t *testing.T, a *Agent, ep *fakeEndpoint, pdu *e2ap.PDU) {
	t.Helper()
	buf, err := e2ap.Encode(pdu)
	if err != nil {
		t.Fatalf("encode inbound pdu: %v", err)
	}
	ep.recvFn(buf, transport.RxInfo{})
	a.Tick()
}

// establish drives an agent through a successful setup.
func establish(t *testing.T, a *Agent, ep *fakeEndpoint, ricID uint32) {
	t.Helper()
	pdus := ep.sentPDUs(t)
	if len(pdus) == 0 {
		t.Fatalf("no setup request sent")
	}
	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: pdus[len(pdus)-1].TransactionID,
		Payload:       e2ap.SetupResponse{RICID: ricID, AcceptedFunctions: []uint32{147}},
	})
	if st := a.Snapshot(); st.State != StateEstablished.String() {
		t.Fatalf("state after setup success: %s", st.State)
	}
}

func TestStartEmitsExactlyOneSetupRequest(t *testing.T) {
	a, ep := startedAgent(t)
	a.Tick()
	a.Tick()

	pdus := ep.sentPDUs(t)
	if len(pdus) != 1 {
		t.Fatalf("sent %d messages, want exactly one setup request", len(pdus))
	}
	req, ok := pdus[0].Payload.(e2ap.SetupRequest)
	if !ok {
		t.Fatalf("first outbound message is %T, want SetupRequest", pdus[0].Payload)
	}
	if req.NodeID != 411 || len(req.Functions) != 1 {
		t.Fatalf("unexpected setup request: %+v", req)
	}
	if st := a.Snapshot(); st.State != StateAwaitingSetupResponse.String() {
		t.Fatalf("state: %s", st.State)
	}
}

func TestSecondSetupAttemptWhilePendingRejected(t *testing.T) {
	a, ep := startedAgent(t)
	// A spurious extra attempt must not duplicate the pending procedure.
	a.queue.Push(a.sendSetupRequest)
	a.Tick()

	if got := len(ep.sentPDUs(t)); got != 1 {
		t.Fatalf("sent %d setup requests, want 1", got)
	}
	if got := len(a.Snapshot().Pending); got != 1 {
		t.Fatalf("%d pending procedures, want 1", got)
	}
}

func TestSetupSuccessRecordsAssignedIdentifier(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)

	st := a.Snapshot()
	if !st.HasRICID || st.RICID != 7 {
		t.Fatalf("assigned identifier not recorded: %+v", st)
	}
	if len(st.Pending) != 0 {
		t.Fatalf("pending setup not cleared: %+v", st.Pending)
	}
}

func TestSetupTimeoutRetriesExactlyOnce(t *testing.T) {
	a, ep := startedAgent(t)

	// Cross the expiry deadline.
	for i := uint64(0); i < testConfig().SetupTimeoutTicks+1; i++ {
		a.Tick()
	}
	if st := a.Snapshot(); st.State != StateConnecting.String() {
		t.Fatalf("state after expiry: %s", st.State)
	}
	if got := len(a.Snapshot().Pending); got != 0 {
		t.Fatalf("pending not cleared on expiry: %d", got)
	}

	// Backoff for attempt 1 is InitialTicks; the retry then re-sends.
	for i := uint64(0); i < testConfig().Backoff.InitialTicks+1; i++ {
		a.Tick()
	}
	pdus := ep.sentPDUs(t)
	if len(pdus) != 2 {
		t.Fatalf("sent %d messages, want original setup plus one retry", len(pdus))
	}
	if _, ok := pdus[1].Payload.(e2ap.SetupRequest); !ok {
		t.Fatalf("retry message is %T", pdus[1].Payload)
	}
	if pdus[1].TransactionID == pdus[0].TransactionID {
		t.Fatalf("retry reused transaction id %d", pdus[0].TransactionID)
	}
}

func TestSetupFailureSchedulesRetry(t *testing.T) {
	a, ep := startedAgent(t)
	pdus := ep.sentPDUs(t)
	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassUnsuccessfulOutcome,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: pdus[0].TransactionID,
		Payload:       e2ap.SetupFailure{Cause: e2ap.CauseTransport, TimeToWait: 3},
	})
	if st := a.Snapshot(); st.State != StateConnecting.String() {
		t.Fatalf("state after setup failure: %s", st.State)
	}

	for i := 0; i < 10; i++ {
		a.Tick()
	}
	if got := len(ep.sentPDUs(t)); got != 2 {
		t.Fatalf("sent %d messages, want retry after failure", got)
	}
}

func TestStaleSetupResponseDropped(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)

	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: 9999,
		Payload:       e2ap.SetupResponse{RICID: 42},
	})
	st := a.Snapshot()
	if st.RICID != 7 || st.State != StateEstablished.String() {
		t.Fatalf("stale response mutated session: %+v", st)
	}
}

func TestUnknownProcedureDropped(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)
	before := len(ep.sentPDUs(t))

	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassInitiatingMessage,
		Procedure:     e2ap.Procedure(77),
		TransactionID: 5,
		Payload:       e2ap.RawPayload{Fields: []e2ap.Field{e2ap.NewFieldUint32(1, 2)}},
	})
	if got := len(ep.sentPDUs(t)); got != before {
		t.Fatalf("unknown procedure produced a response")
	}
	if st := a.Snapshot(); st.State != StateEstablished.String() {
		t.Fatalf("unknown procedure mutated state: %s", st.State)
	}
}

func TestMalformedBytesDroppedWithoutTeardown(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)

	ep.recvFn([]byte{0x01, 0x02, 0x03}, transport.RxInfo{})
	a.Tick()
	if st := a.Snapshot(); st.State != StateEstablished.String() {
		t.Fatalf("malformed bytes tore the session down: %s", st.State)
	}
}

func TestInboundSetupRequestRejected(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)
	before := len(ep.sentPDUs(t))

	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassInitiatingMessage,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: 55,
		Payload:       e2ap.SetupRequest{NodeID: 999},
	})
	pdus := ep.sentPDUs(t)
	if len(pdus) != before+1 {
		t.Fatalf("peer setup request not answered")
	}
	fail, ok := pdus[len(pdus)-1].Payload.(e2ap.SetupFailure)
	if !ok || fail.Cause != e2ap.CauseProtocol {
		t.Fatalf("expected protocol-cause SetupFailure, got %#v", pdus[len(pdus)-1].Payload)
	}
	if st := a.Snapshot(); st.State != StateEstablished.String() {
		t.Fatalf("peer setup request mutated state: %s", st.State)
	}
}

func TestTransportFatalTearsDownAndReconnects(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)
	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassInitiatingMessage,
		Procedure:     e2ap.ProcedureSubscription,
		TransactionID: 2,
		Payload: e2ap.SubscriptionRequest{
			RequestorID: 3, InstanceID: 1, FunctionID: 147,
			Actions: []e2ap.Action{{ID: 1, Type: e2ap.ActionReport}},
		},
	})

	ep.errFn(transport.ErrPeerGone)
	a.Tick()
	st := a.Snapshot()
	if st.State != StateDisconnected.String() {
		t.Fatalf("state after fatal: %s", st.State)
	}
	if len(st.Subscriptions) != 0 || len(st.Pending) != 0 {
		t.Fatalf("session not torn down: %+v", st)
	}

	// Drive through the reconnect backoff; the agent must dial again and
	// emit a fresh setup request.
	for i := 0; i < 200; i++ {
		a.Tick()
	}
	ep.mu.Lock()
	connects := ep.connects
	ep.mu.Unlock()
	if connects < 2 {
		t.Fatalf("no reconnect attempt after fatal error")
	}
	pdus := ep.sentPDUs(t)
	if _, ok := pdus[len(pdus)-1].Payload.(e2ap.SetupRequest); !ok {
		t.Fatalf("no fresh setup request after reconnect, last=%T", pdus[len(pdus)-1].Payload)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	a, ep := startedAgent(t)
	a.Stop()
	a.Stop()
	ep.mu.Lock()
	closes := ep.closes
	ep.mu.Unlock()
	if closes != 1 {
		t.Fatalf("endpoint closed %d times", closes)
	}
	if st := a.Snapshot(); st.State != StateDisconnected.String() {
		t.Fatalf("state after stop: %s", st.State)
	}
	if err := a.Start(); err == nil {
		t.Fatalf("restart after stop succeeded")
	}
}

func TestAgentInitiatedReset(t *testing.T) {
	a, ep := startedAgent(t)
	establish(t, a, ep, 7)

	a.SendReset(e2ap.CauseMisc)
	a.Tick()
	pdus := ep.sentPDUs(t)
	req := pdus[len(pdus)-1]
	if _, ok := req.Payload.(e2ap.ResetRequest); !ok {
		t.Fatalf("expected outbound ResetRequest, got %T", req.Payload)
	}
	if got := len(a.Snapshot().Pending); got != 1 {
		t.Fatalf("%d pending procedures, want the reset", got)
	}

	deliver(t, a, ep, &e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureReset,
		TransactionID: req.TransactionID,
		Payload:       e2ap.ResetResponse{},
	})
	if got := len(a.Snapshot().Pending); got != 0 {
		t.Fatalf("reset pending not cleared: %d", got)
	}
}

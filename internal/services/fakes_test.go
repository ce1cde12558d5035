package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"payroll-backend/internal/claimtoken"
	"payroll-backend/internal/clients"
	"payroll-backend/internal/field"
	"payroll-backend/internal/models"
	"payroll-backend/internal/repository"
	"payroll-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// fakeLedger mimics the payroll contract: duplicate roots are rejected, finalize and
// cancel need the matching active reservation, and a claimed nullifier stays claimed.
type fakeLedger struct {
	mu           sync.Mutex
	roots        map[string]bool
	reservations map[string][32]byte
	claimed      map[string]bool
	calls        map[string]int

	verifyResult    bool
	requestHashSkew *big.Int
	registerErr     error
	reserveErr      error
	reserveLands    bool   // with reserveErr: the reservation is made anyway
	reserveTxHash   string // with reserveErr: the hash the failed send returns
	reserveDelayed  bool   // with reserveErr: the reservation waits in the mempool until mine
	mempool         map[string]pendingReservation
	finalizeErr     error
}

type pendingReservation struct {
	nullifierHash string
	authID        [32]byte
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		roots:        make(map[string]bool),
		reservations: make(map[string][32]byte),
		claimed:      make(map[string]bool),
		calls:        make(map[string]int),
		mempool:      make(map[string]pendingReservation),
		verifyResult: true,
	}
}

func (l *fakeLedger) tx(op string) string {
	l.calls[op]++
	return fmt.Sprintf("0x%s-%d", op, l.calls[op])
}

func (l *fakeLedger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *fakeLedger) RegisterRoot(_ context.Context, root *big.Int, _ [32]byte, _, _ *big.Int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registerErr != nil {
		return "", l.registerErr
	}
	if l.roots[root.String()] {
		return "", errors.New("execution reverted: root already registered")
	}
	l.roots[root.String()] = true
	return l.tx("registerRoot"), nil
}

func (l *fakeLedger) ReserveWithdrawal(_ context.Context, _ [8]*big.Int, root, nh, _ *big.Int, authID [32]byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserveErr != nil {
		switch {
		case l.reserveDelayed:
			l.mempool[l.reserveTxHash] = pendingReservation{nullifierHash: nh.String(), authID: authID}
		case l.reserveLands:
			l.reservations[nh.String()] = authID
		}
		return l.reserveTxHash, l.reserveErr
	}
	if !l.roots[root.String()] {
		return "", errors.New("execution reverted: unknown root")
	}
	if l.claimed[nh.String()] {
		return "", errors.New("execution reverted: already claimed")
	}
	if _, ok := l.reservations[nh.String()]; ok {
		return "", errors.New("execution reverted: already reserved")
	}
	l.reservations[nh.String()] = authID
	return l.tx("reserveWithdrawal"), nil
}

func (l *fakeLedger) FinalizeWithdrawal(_ context.Context, nh *big.Int, authID [32]byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalizeErr != nil {
		return "", l.finalizeErr
	}
	held, ok := l.reservations[nh.String()]
	if !ok || held != authID {
		return "", errors.New("execution reverted: no matching reservation")
	}
	delete(l.reservations, nh.String())
	l.claimed[nh.String()] = true
	return l.tx("finalizeWithdrawal"), nil
}

func (l *fakeLedger) CancelReservation(_ context.Context, nh *big.Int, authID, _ [32]byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.reservations[nh.String()]
	if !ok || held != authID {
		return "", errors.New("execution reverted: no matching reservation")
	}
	delete(l.reservations, nh.String())
	return l.tx("cancelReservation"), nil
}

func (l *fakeLedger) VerifyWithdrawal(_ context.Context, proof [8]*big.Int, root, _, _ *big.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["verifyWithdrawal"]++
	for _, w := range proof {
		if w == nil {
			return false, nil
		}
	}
	return l.verifyResult && l.roots[root.String()], nil
}

func (l *fakeLedger) ComputeRequestHash(_ context.Context, root, nh *big.Int, recipient, relayer common.Address, fee, amount *big.Int) (*big.Int, error) {
	h, err := field.RequestHash(root, nh, recipient, relayer, fee, amount)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.requestHashSkew != nil {
		h = new(big.Int).Add(h, l.requestHashSkew)
	}
	return h, nil
}

func (l *fakeLedger) IsClaimed(_ context.Context, nh *big.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimed[nh.String()], nil
}

func (l *fakeLedger) Reservation(_ context.Context, nh *big.Int) ([32]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.reservations[nh.String()]
	return id, ok, nil
}

// TxFinal treats every transaction as mined except those still in the mempool.
func (l *fakeLedger) TxFinal(_ context.Context, txHash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["txFinal"]++
	_, pending := l.mempool[txHash]
	return !pending, nil
}

// mine lands every reservation waiting in the mempool.
func (l *fakeLedger) mine() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for hash, p := range l.mempool {
		if _, taken := l.reservations[p.nullifierHash]; !taken && !l.claimed[p.nullifierHash] {
			l.reservations[p.nullifierHash] = p.authID
		}
		delete(l.mempool, hash)
	}
}

// fakeProver echoes the circuit's public signals and returns a well formed proof.
type fakeProver struct {
	mu     sync.Mutex
	err    error
	tamper func(*types.ProofResult)
	inputs []*types.WithdrawCircuitInputs
}

func (p *fakeProver) Prove(_ context.Context, in *types.WithdrawCircuitInputs) (*types.ProofResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, in)
	if p.err != nil {
		return nil, p.err
	}
	res := &types.ProofResult{
		Proof: types.Groth16Proof{
			PiA:      []string{"1", "2", "1"},
			PiB:      [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			PiC:      []string{"7", "8", "1"},
			Protocol: "groth16",
			Curve:    "bn128",
		},
		PublicSignals: []string{in.Root, in.NullifierHash, in.RequestHash},
	}
	if p.tamper != nil {
		p.tamper(res)
	}
	return res, nil
}

type submission struct {
	auth      *types.PayoutAuthorization
	authID    string
	signature string
}

// fakeRelayer answers Status from a per-authorization script; once the script is
// exhausted the last answer repeats. Without a script it reports pending.
type fakeRelayer struct {
	mu          sync.Mutex
	submitErr   error
	submitState string
	submitted   []submission
	script      []relayerAnswer
	statusCalls int
}

type relayerAnswer struct {
	resp *clients.RelayerStatusResponse
	err  error
}

func answer(status, txHash string) relayerAnswer {
	return relayerAnswer{resp: &clients.RelayerStatusResponse{Status: status, TxHash: txHash}}
}

func (r *fakeRelayer) Submit(_ context.Context, auth *types.PayoutAuthorization, authID, sig string) (*clients.RelayerSubmitResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	r.submitted = append(r.submitted, submission{auth: auth, authID: authID, signature: sig})
	state := r.submitState
	if state == "" {
		state = clients.RelayerStatusPending
	}
	return &clients.RelayerSubmitResponse{AuthorizationID: authID, Status: state}, nil
}

func (r *fakeRelayer) Status(_ context.Context, authID string) (*clients.RelayerStatusResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCalls++
	if len(r.script) == 0 {
		return &clients.RelayerStatusResponse{Status: clients.RelayerStatusPending}, nil
	}
	a := r.script[0]
	if len(r.script) > 1 {
		r.script = r.script[1:]
	}
	return a.resp, a.err
}

func (r *fakeRelayer) setScript(answers ...relayerAnswer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = answers
}

func (r *fakeRelayer) submissions() []submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]submission(nil), r.submitted...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	batches  int
}

func (n *recordingNotifier) ClaimUpdated(_ context.Context, c *models.Claim) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, string(c.Status))
}

func (n *recordingNotifier) BatchRegistered(_ context.Context, _ *models.Batch) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches++
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statuses...)
}

type harness struct {
	store       *repository.MemoryStore
	ledger      *fakeLedger
	prover      *fakeProver
	relayer     *fakeRelayer
	codec       *claimtoken.Codec
	signer      *PayoutSigner
	batches     *BatchService
	claims      *ClaimService
	relayerAddr common.Address
}

var testPoll = PollPolicy{
	InitialInterval: time.Millisecond,
	Multiplier:      1.5,
	MaxInterval:     5 * time.Millisecond,
	MaxAttempts:     5,
}

func newHarness(t *testing.T, depth int) *harness {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	codec, err := claimtoken.NewCodec(key)
	require.NoError(t, err)

	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPayoutSigner(hexutil.Encode(crypto.FromECDSA(signerKey)), 31337, common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	require.NoError(t, err)

	h := &harness{
		store:       repository.NewMemoryStore(),
		ledger:      newFakeLedger(),
		prover:      &fakeProver{},
		relayer:     &fakeRelayer{},
		codec:       codec,
		signer:      signer,
		relayerAddr: common.HexToAddress("0x00000000000000000000000000000000000000bb"),
	}
	h.batches = NewBatchService(h.store, h.ledger, NewLocalLock(), codec, depth)
	h.claims = h.newClaimService(testPoll)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.claims.Shutdown(ctx)
	})
	return h
}

// newClaimService builds a coordinator over the harness state, as a restarted
// process would.
func (h *harness) newClaimService(poll PollPolicy, notifiers ...ClaimNotifier) *ClaimService {
	return h.newClaimServiceWith(h.claimConfig(poll), notifiers...)
}

func (h *harness) claimConfig(poll PollPolicy) ClaimServiceConfig {
	return ClaimServiceConfig{
		Relayer: h.relayerAddr,
		Fee:     big.NewInt(10),
		Poll:    poll,
	}
}

func (h *harness) newClaimServiceWith(cfg ClaimServiceConfig, notifiers ...ClaimNotifier) *ClaimService {
	return NewClaimService(h.store, h.ledger, h.prover, h.relayer, h.signer, h.codec, cfg, notifiers...)
}

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// payrollBatch creates the three-note batch [3000, 4000, 3000].
func (h *harness) payrollBatch(t *testing.T) *CreateBatchResult {
	t.Helper()
	res, err := h.batches.CreateBatch(context.Background(), CreateBatchInput{
		Employer:   "acme",
		FundingRef: "wire-001",
		Payments: []PaymentInput{
			{Recipient: alice.Hex(), Amount: "3000"},
			{Recipient: bob.Hex(), Amount: "4000"},
			{Recipient: carol.Hex(), Amount: "3000"},
		},
	})
	require.NoError(t, err)
	return res
}

package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"payroll-backend/internal/config"
	"payroll-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ErrTxReverted is returned when a ledger transaction was mined with status 0.
var ErrTxReverted = errors.New("ledger transaction reverted")

const payrollLedgerABI = `[
  {"type":"function","name":"registerRoot","stateMutability":"nonpayable",
   "inputs":[{"name":"root","type":"uint256"},{"name":"batchId","type":"bytes32"},{"name":"noteCount","type":"uint256"},{"name":"totalAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"reserveWithdrawal","stateMutability":"nonpayable",
   "inputs":[{"name":"proof","type":"uint256[8]"},{"name":"root","type":"uint256"},{"name":"nullifierHash","type":"uint256"},{"name":"requestHash","type":"uint256"},{"name":"authorizationId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"finalizeWithdrawal","stateMutability":"nonpayable",
   "inputs":[{"name":"nullifierHash","type":"uint256"},{"name":"authorizationId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"cancelReservation","stateMutability":"nonpayable",
   "inputs":[{"name":"nullifierHash","type":"uint256"},{"name":"authorizationId","type":"bytes32"},{"name":"reasonHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"verifyWithdrawal","stateMutability":"view",
   "inputs":[{"name":"proof","type":"uint256[8]"},{"name":"root","type":"uint256"},{"name":"nullifierHash","type":"uint256"},{"name":"requestHash","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"computeRequestHash","stateMutability":"view",
   "inputs":[{"name":"root","type":"uint256"},{"name":"nullifierHash","type":"uint256"},{"name":"recipient","type":"address"},{"name":"relayer","type":"address"},{"name":"fee","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isClaimed","stateMutability":"view",
   "inputs":[{"name":"nullifierHash","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"reservations","stateMutability":"view",
   "inputs":[{"name":"nullifierHash","type":"uint256"}],"outputs":[{"name":"authorizationId","type":"bytes32"},{"name":"active","type":"bool"}]}
]`

// LedgerClient talks to the payroll ledger contract. Writes are signed locally
// with the configured key and serialized so nonces never collide.
type LedgerClient struct {
	client    *ethclient.Client
	contract  common.Address
	abi       abi.ABI
	key       *ecdsa.PrivateKey
	from      common.Address
	chainID   *big.Int
	gasLimit  uint64
	gasPrice  *big.Int
	txTimeout time.Duration

	sendMu sync.Mutex
}

// NewLedgerClient dials the RPC endpoint and parses the contract ABI.
func NewLedgerClient(cfg config.LedgerConfig) (*LedgerClient, error) {
	parsed, err := abi.JSON(strings.NewReader(payrollLedgerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid ledger contract address: %q", cfg.Contract)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger RPC: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to query chain id: %w", err)
		}
	}

	var gasPrice *big.Int
	if cfg.GasPrice != "" && cfg.GasPrice != "auto" {
		var ok bool
		if gasPrice, ok = new(big.Int).SetString(cfg.GasPrice, 10); !ok {
			client.Close()
			return nil, fmt.Errorf("invalid ledger gas price: %q", cfg.GasPrice)
		}
	}

	l := &LedgerClient{
		client:    client,
		contract:  common.HexToAddress(cfg.Contract),
		abi:       parsed,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		gasLimit:  cfg.GasLimit,
		gasPrice:  gasPrice,
		txTimeout: cfg.TxTimeout,
	}
	logrus.WithFields(logrus.Fields{
		"contract": l.contract.Hex(),
		"signer":   l.from.Hex(),
		"chain_id": chainID.String(),
	}).Info("🔗 Ledger client initialized")
	return l, nil
}

func (l *LedgerClient) Close() {
	l.client.Close()
}

// Signer is the address paying for ledger transactions.
func (l *LedgerClient) Signer() common.Address {
	return l.from
}

func (l *LedgerClient) RegisterRoot(ctx context.Context, root *big.Int, batchID [32]byte, noteCount, totalAmount *big.Int) (txHash string, err error) {
	defer metrics.ObserveExternal("ledger", "registerRoot", time.Now(), &err)
	return l.transact(ctx, "registerRoot", root, batchID, noteCount, totalAmount)
}

func (l *LedgerClient) ReserveWithdrawal(ctx context.Context, proof [8]*big.Int, root, nullifierHash, requestHash *big.Int, authorizationID [32]byte) (txHash string, err error) {
	defer metrics.ObserveExternal("ledger", "reserveWithdrawal", time.Now(), &err)
	return l.transact(ctx, "reserveWithdrawal", proof, root, nullifierHash, requestHash, authorizationID)
}

func (l *LedgerClient) FinalizeWithdrawal(ctx context.Context, nullifierHash *big.Int, authorizationID [32]byte) (txHash string, err error) {
	defer metrics.ObserveExternal("ledger", "finalizeWithdrawal", time.Now(), &err)
	return l.transact(ctx, "finalizeWithdrawal", nullifierHash, authorizationID)
}

func (l *LedgerClient) CancelReservation(ctx context.Context, nullifierHash *big.Int, authorizationID, reasonHash [32]byte) (txHash string, err error) {
	defer metrics.ObserveExternal("ledger", "cancelReservation", time.Now(), &err)
	return l.transact(ctx, "cancelReservation", nullifierHash, authorizationID, reasonHash)
}

func (l *LedgerClient) VerifyWithdrawal(ctx context.Context, proof [8]*big.Int, root, nullifierHash, requestHash *big.Int) (ok bool, err error) {
	defer metrics.ObserveExternal("ledger", "verifyWithdrawal", time.Now(), &err)
	out, err := l.call(ctx, "verifyWithdrawal", proof, root, nullifierHash, requestHash)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (l *LedgerClient) ComputeRequestHash(ctx context.Context, root, nullifierHash *big.Int, recipient, relayer common.Address, fee, amount *big.Int) (h *big.Int, err error) {
	defer metrics.ObserveExternal("ledger", "computeRequestHash", time.Now(), &err)
	out, err := l.call(ctx, "computeRequestHash", root, nullifierHash, recipient, relayer, fee, amount)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (l *LedgerClient) IsClaimed(ctx context.Context, nullifierHash *big.Int) (claimed bool, err error) {
	defer metrics.ObserveExternal("ledger", "isClaimed", time.Now(), &err)
	out, err := l.call(ctx, "isClaimed", nullifierHash)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Reservation returns the authorization currently holding the nullifier, if any.
func (l *LedgerClient) Reservation(ctx context.Context, nullifierHash *big.Int) (authorizationID [32]byte, active bool, err error) {
	defer metrics.ObserveExternal("ledger", "reservations", time.Now(), &err)
	out, err := l.call(ctx, "reservations", nullifierHash)
	if err != nil {
		return authorizationID, false, err
	}
	authorizationID = *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	active = *abi.ConvertType(out[1], new(bool)).(*bool)
	return authorizationID, active, nil
}

// TxFinal reports whether a transaction can no longer change ledger state: it was
// mined, successfully or not, or the node no longer knows it.
func (l *LedgerClient) TxFinal(ctx context.Context, txHash string) (bool, error) {
	hash := common.HexToHash(txHash)
	if _, err := l.client.TransactionReceipt(ctx, hash); err == nil {
		return true, nil
	} else if !errors.Is(err, ethereum.NotFound) {
		return false, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	_, _, err := l.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("transaction %s: %w", txHash, err)
	}
	return false, nil
}

// SignerBalance reports the native balance of the transaction signer.
func (l *LedgerClient) SignerBalance(ctx context.Context) (*big.Int, error) {
	return l.client.BalanceAt(ctx, l.from, nil)
}

func (l *LedgerClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := l.client.CallContract(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := l.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// transact builds, signs and sends one EIP155 legacy transaction and waits for its receipt.
func (l *LedgerClient) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	tx, err := l.send(ctx, data)
	if err != nil {
		// A signed transaction may have reached the node even though the send failed.
		if tx != nil {
			return tx.Hash().Hex(), fmt.Errorf("send %s %s: %w", method, tx.Hash().Hex(), err)
		}
		return "", fmt.Errorf("send %s: %w", method, err)
	}
	logrus.WithFields(logrus.Fields{"method": method, "tx": tx.Hash().Hex(), "nonce": tx.Nonce()}).
		Info("📤 Ledger transaction sent")

	waitCtx := ctx
	if l.txTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.txTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, l.client, tx)
	if err != nil {
		return tx.Hash().Hex(), fmt.Errorf("wait %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrTxReverted)
	}

	logrus.WithFields(logrus.Fields{
		"method": method, "tx": tx.Hash().Hex(), "block": receipt.BlockNumber.Uint64(), "gas_used": receipt.GasUsed,
	}).Info("✅ Ledger transaction confirmed")
	return tx.Hash().Hex(), nil
}

func (l *LedgerClient) send(ctx context.Context, data []byte) (*types.Transaction, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := l.gasPrice
	if gasPrice == nil {
		suggested, err := l.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		gasPrice = new(big.Int).Div(new(big.Int).Mul(suggested, big.NewInt(120)), big.NewInt(100))
	}

	gasLimit := l.gasLimit
	if gasLimit == 0 {
		estimated, err := l.client.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * 12 / 10
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(l.chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return signed, err
	}
	return signed, nil
}

package clients

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"payroll-backend/internal/metrics"
	"payroll-backend/internal/types"

	"github.com/sirupsen/logrus"
)

// ErrAuthorizationNotFound means the relayer has no record of the authorization,
// so no transfer was or will be made for it.
var ErrAuthorizationNotFound = errors.New("relayer has no such authorization")

const (
	RelayerStatusPending = "pending"
	RelayerStatusSuccess = "success"
	RelayerStatusFailed  = "failed"
)

// RelayerSubmitResponse is the relayer's acknowledgement of a payout.
type RelayerSubmitResponse struct {
	AuthorizationID string `json:"authorization_id"`
	Status          string `json:"status"`
}

// RelayerStatusResponse is the relayer's view of a payout.
type RelayerStatusResponse struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`
}

type relayerSubmitRequest struct {
	Authorization   *types.PayoutAuthorization `json:"authorization"`
	AuthorizationID string                     `json:"authorization_id"`
	Signature       string                     `json:"signature"`
}

// RelayerClient payout relayer client
type RelayerClient struct {
	BaseURL string
	Client  *http.Client
}

// NewRelayerClient Create a new relayer client
func NewRelayerClient(baseURL string, timeout time.Duration) *RelayerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logrus.WithFields(logrus.Fields{"base_url": baseURL, "timeout": timeout}).Info("🔧 [Relayer] Create client")
	return &RelayerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Submit hands a signed payout authorization to the relayer.
func (c *RelayerClient) Submit(ctx context.Context, auth *types.PayoutAuthorization, authorizationID, signature string) (resp *RelayerSubmitResponse, err error) {
	defer metrics.ObserveExternal("relayer", "submit", time.Now(), &err)

	var out RelayerSubmitResponse
	body := relayerSubmitRequest{Authorization: auth, AuthorizationID: authorizationID, Signature: signature}
	if err := doJSON(ctx, c.Client, "relayer", http.MethodPost, c.BaseURL+"/payouts", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status queries a payout by authorization id.
func (c *RelayerClient) Status(ctx context.Context, authorizationID string) (resp *RelayerStatusResponse, err error) {
	defer metrics.ObserveExternal("relayer", "status", time.Now(), &err)

	var out RelayerStatusResponse
	err = doJSON(ctx, c.Client, "relayer", http.MethodGet, c.BaseURL+"/payouts/"+url.PathEscape(authorizationID), nil, &out)
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, ErrAuthorizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

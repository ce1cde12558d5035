package clients

import (
	"context"
	"net/http"
	"strings"
	"time"

	"payroll-backend/internal/metrics"
	"payroll-backend/internal/types"

	"github.com/sirupsen/logrus"
)

// ProverClient withdraw circuit prover service client
type ProverClient struct {
	BaseURL string
	Client  *http.Client
}

// NewProverClient Create a new prover client
func NewProverClient(baseURL string, timeout time.Duration) *ProverClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logrus.WithFields(logrus.Fields{"base_url": baseURL, "timeout": timeout}).Info("🔧 [Prover] Create client")
	return &ProverClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Prove generates a withdraw proof. Public signals come back in circuit order
// (root, nullifierHash, requestHash).
func (c *ProverClient) Prove(ctx context.Context, inputs *types.WithdrawCircuitInputs) (result *types.ProofResult, err error) {
	defer metrics.ObserveExternal("prover", "prove", time.Now(), &err)

	var out types.ProofResult
	if err := doJSON(ctx, c.Client, "prover", http.MethodPost, c.BaseURL+"/prove/withdraw", inputs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dagledger/core"
)

func newTestRouter(t *testing.T) (http.Handler, *core.Engine, string, string) {
	t.Helper()
	genesisSecret, genesisPublic, err := core.GenerateWallet()
	if err != nil {
		t.Fatalf("generate genesis wallet: %v", err)
	}
	cfg := core.DefaultEngineConfig("")
	cfg.GhostInterval = time.Hour
	engine, err := core.NewEngine(cfg, genesisSecret, genesisPublic)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	logger := logrus.New().WithField("component", "api-test")
	return NewRouter(engine, logger), engine, genesisSecret, genesisPublic
}

func TestPostWalletGenerateReturnsKeypair(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/wallets/generate/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", resp.Data)
	}
	if data["secret_key"] == "" || data["public_key"] == "" {
		t.Fatalf("expected non-empty keypair, got %v", data)
	}
}

func TestPostTransactionMalformedBodyRejected(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/transactions/", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPostTransactionBadSignatureRejected(t *testing.T) {
	router, _, _, genesisPublic := newTestRouter(t)

	body, err := json.Marshal(map[string]any{
		"sender":    genesisPublic,
		"recipient": genesisPublic,
		"amount":    1,
		"kind":      "TRANSFER",
		"nonce":     1,
		"signature": "not-a-real-signature",
		"created":   time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/transactions/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPostTransactionAcceptsSignedGenesisTransfer(t *testing.T) {
	router, _, genesisSecret, genesisPublic := newTestRouter(t)

	tx := &core.Transaction{TransactionCreate: core.TransactionCreate{
		Sender:    genesisPublic,
		Recipient: genesisPublic,
		Amount:    0,
		Kind:      core.KindTransfer,
		Created:   time.Now(),
	}}
	if err := core.SignTransaction(tx, genesisSecret); err != nil {
		t.Fatalf("sign transaction: %v", err)
	}

	body, err := json.Marshal(map[string]any{
		"sender":    tx.Sender,
		"recipient": tx.Recipient,
		"amount":    tx.Amount,
		"kind":      tx.Kind.String(),
		"nonce":     tx.Nonce,
		"signature": tx.Signature,
		"created":   tx.Created,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/transactions/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetWalletBalancesEmptyLedger(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/wallets/balances/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data != nil {
		if m, ok := resp.Data.(map[string]any); ok && len(m) != 0 {
			t.Fatalf("expected empty balances, got %v", m)
		}
	}
}

func TestGetSmartContractNotFound(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/smart_contracts/deadbeef", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetSmartContractsEmptyList(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/smart_contracts/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

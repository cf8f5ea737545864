package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"dagledger/core"
)

// Handlers holds the dependencies the boundary API's HTTP handlers close
// over: the engine and a logger. Collapsed into one type since there is a
// single backing engine rather than a family of services.
type Handlers struct {
	Engine *core.Engine
	Logger *logrus.Entry
}

// NewHandlers constructs a Handlers bound to engine.
func NewHandlers(engine *core.Engine, logger *logrus.Entry) *Handlers {
	return &Handlers{Engine: engine, Logger: logger}
}

// transactionRequest is the wire shape clients POST to /transactions/. It
// mirrors TransactionCreate but keeps the payload variants flat so a JSON
// client need not understand the tagged-union encoding used internally.
type transactionRequest struct {
	Sender            string         `json:"sender"`
	Recipient         string         `json:"recipient,omitempty"`
	Amount            uint64         `json:"amount,omitempty"`
	Kind              string         `json:"kind"`
	PayloadBlob       string         `json:"payload_blob,omitempty"`
	FunctionSignature string         `json:"function_signature,omitempty"`
	Args              []any          `json:"args,omitempty"`
	Kwargs            map[string]any `json:"kwargs,omitempty"`
	ContractAddress   string         `json:"contract_address,omitempty"`
	Nonce             uint64         `json:"nonce"`
	Signature         string         `json:"signature"`
	Created           time.Time      `json:"created"`
}

func (r transactionRequest) toTransactionCreate() (core.TransactionCreate, error) {
	kind, err := core.ParseKind(r.Kind)
	if err != nil {
		return core.TransactionCreate{}, err
	}
	txc := core.TransactionCreate{
		Sender:          r.Sender,
		Recipient:       r.Recipient,
		Amount:          r.Amount,
		Kind:            kind,
		ContractAddress: r.ContractAddress,
		Nonce:           r.Nonce,
		Signature:       r.Signature,
		Created:         r.Created,
	}
	switch kind {
	case core.KindCall:
		txc.Payload = core.Payload{Call: &core.CallPayload{
			FunctionSignature: r.FunctionSignature,
			Args:              r.Args,
			Kwargs:            r.Kwargs,
		}}
	case core.KindDeploy:
		blob, err := core.Base64Decode(r.PayloadBlob)
		if err != nil {
			return core.TransactionCreate{}, err
		}
		txc.Payload = core.Payload{Blob: blob}
	}
	return txc, nil
}

// PostTransaction handles POST /transactions/: decode, submit, report
// acceptance. It never blocks on confirmation — submission and confirmation
// are decoupled.
func (h *Handlers) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	txc, err := req.toTransactionCreate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.Engine.Submit(txc) {
		writeError(w, http.StatusUnprocessableEntity, "transaction rejected: invalid signature, nonce, or amount")
		return
	}
	writeData(w, http.StatusAccepted, nil, "transaction accepted")
}

// PostWalletGenerate handles POST /wallets/generate/: mint a fresh
// Dilithium2 keypair and hand both halves back to the caller. The engine
// never sees or stores the secret key.
func (h *Handlers) PostWalletGenerate(w http.ResponseWriter, r *http.Request) {
	secret, public, err := core.GenerateWallet()
	if err != nil {
		h.Logger.Errorf("wallet generation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "wallet generation failed")
		return
	}
	writeData(w, http.StatusCreated, map[string]string{
		"secret_key": secret,
		"public_key": public,
	}, "wallet generated")
}

// GetWalletBalances handles GET /wallets/balances/: a snapshot of every
// account with a non-zero or zero confirmed balance (value variant).
func (h *Handlers) GetWalletBalances(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.Engine.Balances(), "")
}

// GetSmartContracts handles GET /smart_contracts/: every deployed contract's
// address and state (contract variant).
func (h *Handlers) GetSmartContracts(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.Engine.Contracts(), "")
}

// GetSmartContract handles GET /smart_contracts/{address}: a single deployed
// contract, or 404 if no contract is deployed at that address.
func (h *Handlers) GetSmartContract(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	contract, ok := h.Engine.Contract(address)
	if !ok {
		writeError(w, http.StatusNotFound, "no contract deployed at that address")
		return
	}
	writeData(w, http.StatusOK, contract, "")
}

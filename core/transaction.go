package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto/sha256"
	"encoding/hex"
)

// Kind discriminates what a transaction does: a value transfer, a contract
// deploy, or a contract call. The payload that goes with each kind is the
// tagged variant Payload.
type Kind int

const (
	KindTransfer Kind = iota
	KindDeploy
	KindCall
)

// canonicalName is the text rendered into a transaction's signing preimage
// for this Kind. It is a deterministic, implementation-owned choice (the
// original Python enum's string form is not portable).
func (k Kind) canonicalName() string {
	switch k {
	case KindTransfer:
		return "TRANSFER"
	case KindDeploy:
		return "DEPLOY"
	case KindCall:
		return "CALL"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) String() string { return k.canonicalName() }

// CallPayload is the structured call record carried by a CALL transaction.
type CallPayload struct {
	FunctionSignature string
	Args              []any
	Kwargs            map[string]any
}

// Payload is the tagged variant Payload = Blob(bytes) | Call{...}. At most
// one of Blob or Call is set; a transfer carries neither.
type Payload struct {
	Blob []byte
	Call *CallPayload
}

// canonicalText renders the payload the way it is rendered into the
// signing preimage: the raw Base64 text for a deploy blob, or a
// deterministic textual dump of the call record for a call.
func (p Payload) canonicalText() string {
	if p.Call != nil {
		return formatCallPayload(p.Call)
	}
	return Base64Encode(p.Blob)
}

// formatCallPayload renders a call record as a stable, sorted-keys
// dictionary-like string. It mirrors the spirit of the source
// implementation's default textual dump of a Python dict, without
// attempting to byte-match a specific language's repr.
func formatCallPayload(c *CallPayload) string {
	var b strings.Builder
	b.WriteString("{'function_signature': '")
	b.WriteString(c.FunctionSignature)
	b.WriteString("', 'args': [")
	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", a)
	}
	b.WriteString("], 'kwargs': {")
	keys := make([]string, 0, len(c.Kwargs))
	for k := range c.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': %v", k, c.Kwargs[k])
	}
	b.WriteString("}}")
	return b.String()
}

// TransactionCreate is the client-submitted record, before the engine
// stamps its owned fields (parents, id). The nonce is claimed by the client
// and checked by the engine.
type TransactionCreate struct {
	Sender          string
	Recipient       string // transfer only
	Amount          uint64 // transfer only, minor units
	Payload         Payload
	Kind            Kind
	ContractAddress string // CALL only; filled in by the engine for DEPLOY
	Nonce           uint64 // claimed next nonce for Sender; checked against the registry
	Signature       string
	Created         time.Time
}

// Transaction is a fully woven vertex of the DAG.
type Transaction struct {
	TransactionCreate
	Parents   []string
	ID        string
	Processed *time.Time
}

// preimage returns the canonical byte sequence this transaction's
// signature is computed over.
func (t *Transaction) preimage() []byte {
	return preimageFor(&t.TransactionCreate)
}

func preimageFor(t *TransactionCreate) []byte {
	nonce := strconv.FormatUint(t.Nonce, 10)
	switch t.Kind {
	case KindTransfer:
		return []byte(t.Sender + strconv.FormatUint(t.Amount, 10) + t.Recipient + nonce)
	default:
		return []byte(t.Sender + t.Payload.canonicalText() + t.Kind.canonicalName() + nonce)
	}
}

// formatCreated renders Created the way it enters a contract-variant
// transaction id — a stable, sortable textualization chosen by this
// implementation (the source's f-string interpolation of a Python
// datetime is not portable).
func formatCreated(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// generateID computes the content id of a transaction. In the transfer
// variant the id intentionally excludes Created: two identical (sender,
// amount, recipient) transfers collide by id. This is intentional, not
// a bug — it mirrors the source implementation's content-addressing choice.
func generateID(t *Transaction) string {
	var content string
	switch t.Kind {
	case KindTransfer:
		content = t.Sender + strconv.FormatUint(t.Amount, 10) + t.Recipient
	default:
		content = t.Sender + t.Payload.canonicalText() + t.Kind.canonicalName() + formatCreated(t.Created)
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// sign signs t with the Base64 secret key, storing the result on t.
func (t *Transaction) sign(secretB64 string) error {
	sig, err := Sign(t.preimage(), secretB64)
	if err != nil {
		return err
	}
	t.Signature = sig
	return nil
}

// isSignatureValid verifies t's stored signature under its declared sender.
func (t *Transaction) isSignatureValid() bool {
	return Verify(t.preimage(), t.Signature, t.Sender)
}

// SignTransaction signs t's canonical preimage with secretB64, storing the
// result on t.Signature. Exported for callers outside this package (the CLI,
// the boundary API's test client) that build and sign a transaction before
// submitting it to an Engine.
func SignTransaction(t *Transaction, secretB64 string) error {
	return t.sign(secretB64)
}

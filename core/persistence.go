package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// checkpointNode is the on-wire, JSON-serializable form of a Transaction.
// Timestamps are ISO-8601 strings.
type checkpointNode struct {
	ID              string       `json:"id"`
	Sender          string       `json:"sender"`
	Recipient       string       `json:"recipient,omitempty"`
	Amount          uint64       `json:"amount,omitempty"`
	Kind            string       `json:"kind"`
	PayloadBlob     string       `json:"payload_blob,omitempty"`
	PayloadCall     *CallPayload `json:"payload_call,omitempty"`
	ContractAddress string       `json:"contract_address,omitempty"`
	Signature       string       `json:"signature"`
	Created         string       `json:"created"`
	Nonce           uint64       `json:"nonce"`
	Parents         []string     `json:"parents"`
	Processed       *string      `json:"processed,omitempty"`
}

// checkpointEdge is a [child_id, parent_id] pair.
type checkpointEdge [2]string

// checkpointFile is the dag.json structure: two arrays, no version tag.
// The format is self-describing; this is flagged, not fixed, in DESIGN.md.
type checkpointFile struct {
	Nodes []checkpointNode `json:"nodes"`
	Edges []checkpointEdge `json:"edges"`
}

// ParseKind parses a Kind's canonical text form ("TRANSFER", "DEPLOY",
// "CALL"), used both by checkpoint loading and by the boundary API's request
// decoding.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "TRANSFER":
		return KindTransfer, nil
	case "DEPLOY":
		return KindDeploy, nil
	case "CALL":
		return KindCall, nil
	default:
		return 0, newStorageError("parse kind", newValidationError("unknown kind %q", s))
	}
}

func toCheckpointNode(tx *Transaction) checkpointNode {
	n := checkpointNode{
		ID:              tx.ID,
		Sender:          tx.Sender,
		Recipient:       tx.Recipient,
		Amount:          tx.Amount,
		Kind:            tx.Kind.String(),
		ContractAddress: tx.ContractAddress,
		Signature:       tx.Signature,
		Created:         formatCreated(tx.Created),
		Nonce:           tx.Nonce,
		Parents:         tx.Parents,
	}
	if tx.Kind != KindTransfer {
		if tx.Payload.Call != nil {
			n.PayloadCall = tx.Payload.Call
		} else {
			n.PayloadBlob = Base64Encode(tx.Payload.Blob)
		}
	}
	if tx.Processed != nil {
		s := formatCreated(*tx.Processed)
		n.Processed = &s
	}
	return n
}

func fromCheckpointNode(n checkpointNode) (*Transaction, error) {
	kind, err := ParseKind(n.Kind)
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, n.Created)
	if err != nil {
		return nil, newStorageError("parse created", err)
	}
	payload := Payload{}
	if n.PayloadCall != nil {
		payload.Call = n.PayloadCall
	} else if n.PayloadBlob != "" {
		blob, err := Base64Decode(n.PayloadBlob)
		if err != nil {
			return nil, newStorageError("decode payload blob", err)
		}
		payload.Blob = blob
	}

	tx := &Transaction{
		TransactionCreate: TransactionCreate{
			Sender:          n.Sender,
			Recipient:       n.Recipient,
			Amount:          n.Amount,
			Payload:         payload,
			Kind:            kind,
			ContractAddress: n.ContractAddress,
			Nonce:           n.Nonce,
			Signature:       n.Signature,
			Created:         created,
		},
		Parents: n.Parents,
		ID:      n.ID,
	}
	if n.Processed != nil {
		processed, err := time.Parse(time.RFC3339Nano, *n.Processed)
		if err != nil {
			return nil, newStorageError("parse processed", err)
		}
		tx.Processed = &processed
	}
	return tx, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// saveCheckpoint writes the DAG to cfg.CheckpointPath atomically: it
// writes to a temp file in the same directory and renames over the
// target, so a crash mid-write never leaves a half-written file for the
// next load to trip over.
func (e *Engine) saveCheckpoint() error {
	if e.cfg.CheckpointPath == "" {
		return nil
	}
	cp := checkpointFile{}
	for _, id := range e.graph.order {
		cp.Nodes = append(cp.Nodes, toCheckpointNode(e.graph.nodes[id]))
	}
	for child, parents := range e.graph.parentsOf {
		for _, parent := range parents {
			cp.Edges = append(cp.Edges, checkpointEdge{child, parent})
		}
	}

	dir := filepath.Dir(e.cfg.CheckpointPath)
	tmp, err := os.CreateTemp(dir, "dag-*.json.tmp")
	if err != nil {
		return newStorageError("create checkpoint temp file", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		tmp.Close()
		return newStorageError("encode checkpoint", err)
	}
	if err := tmp.Close(); err != nil {
		return newStorageError("close checkpoint temp file", err)
	}
	if err := os.Rename(tmp.Name(), e.cfg.CheckpointPath); err != nil {
		return newStorageError("rename checkpoint into place", err)
	}
	return nil
}

// loadCheckpoint reads cfg.CheckpointPath into the engine's graph. It does
// not rebuild world state — callers must invoke rebuildState afterwards.
func (e *Engine) loadCheckpoint() error {
	data, err := os.ReadFile(e.cfg.CheckpointPath)
	if err != nil {
		return newStorageError("read checkpoint", err)
	}
	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return newStorageError("decode checkpoint", err)
	}

	g := newGraph()
	for _, n := range cp.Nodes {
		tx, err := fromCheckpointNode(n)
		if err != nil {
			return err
		}
		g.nodes[tx.ID] = tx
		g.order = append(g.order, tx.ID)
	}
	sort.Slice(g.order, func(i, j int) bool { return g.less(g.order[i], g.order[j]) })
	for _, edge := range cp.Edges {
		g.addEdge(edge[0], edge[1])
	}
	e.graph = g
	return nil
}

package core

import (
	"testing"
	"time"
)

const sampleContractSource = `
FUNC f(x)
  PUSH x
  STORE x
  RET
ENDFUNC

FUNC sum(a, b)
  PUSH a
  PUSH b
  ADD
  RET
ENDFUNC
`

func TestDeployAndExecuteContract(t *testing.T) {
	store := newContractStore()
	created := time.Now()

	address, err := deployContract(store, sampleContractSource, created)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if _, err := executeContract(store, address, "f", []any{7.0}, nil); err != nil {
		t.Fatalf("execute f: %v", err)
	}

	c, ok := store.get(address)
	if !ok {
		t.Fatalf("contract not found after deploy")
	}
	if got := c.State["x"]; got != 7.0 {
		t.Fatalf("expected state[x] == 7, got %v", got)
	}

	if _, err := executeContract(store, address, "g", nil, nil); err == nil {
		t.Fatalf("expected UnknownFunction error for g")
	}
}

func TestExecuteUnknownContract(t *testing.T) {
	store := newContractStore()
	if _, err := executeContract(store, "does-not-exist", "f", nil, nil); err == nil {
		t.Fatalf("expected error for unknown contract")
	}
}

func TestContractAddressIsContentAddressed(t *testing.T) {
	store := newContractStore()
	created := time.Now()

	addr1, err := deployContract(store, sampleContractSource, created)
	if err != nil {
		t.Fatalf("deploy 1: %v", err)
	}
	addr2, err := deployContract(store, sampleContractSource, created)
	if err != nil {
		t.Fatalf("deploy 2: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("expected identical (bytecode, created) to produce identical address")
	}

	addr3, err := deployContract(store, sampleContractSource, created.Add(time.Second))
	if err != nil {
		t.Fatalf("deploy 3: %v", err)
	}
	if addr1 == addr3 {
		t.Fatalf("expected different created timestamp to change address")
	}
}

func TestCompileRejectsMalformedSource(t *testing.T) {
	if _, err := compile("FUNC f(x)\nPUSH x\n"); err == nil {
		t.Fatalf("expected compile error for missing ENDFUNC")
	}
	if _, err := compile("FUNC f(x)\nBOGUS\nRET\nENDFUNC"); err == nil {
		t.Fatalf("expected compile error for unknown opcode")
	}
}

func TestSumFunction(t *testing.T) {
	store := newContractStore()
	address, err := deployContract(store, sampleContractSource, time.Now())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	result, err := executeContract(store, address, "sum", []any{2.0, 3.0}, nil)
	if err != nil {
		t.Fatalf("execute sum: %v", err)
	}
	if result != 5.0 {
		t.Fatalf("expected 5, got %v", result)
	}
}

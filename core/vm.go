package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// opcode is one instruction of the stack-machine bytecode this VM
// interprets. The instruction set is deliberately small (PUSH, ADD, STORE,
// LOAD, LOG, RET): a purpose-built sandbox rather than an embedding of a
// general-purpose interpreter.
type opcode int

const (
	opPush opcode = iota
	opAdd
	opStore
	opLoad
	opLog
	opRet
)

// instruction is one step of a function body. Operand is an unresolved
// token: a literal, a quoted string, or a parameter/state-key name,
// resolved against the call frame at execution time.
type instruction struct {
	Op      opcode
	Operand string
}

// function is one compiled, callable contract function.
type function struct {
	Name   string
	Params []string
	Body   []instruction
}

// program is the compiled form of a contract's source: a set of named
// functions. It is gob-encoded to produce the content address and the
// bytes stored on the Contract.
type program struct {
	Functions map[string]*function
}

var vmLogger = logrus.New().WithField("component", "vm")

// SetVMLogger overrides the logger used by this package's VM.
func SetVMLogger(l *logrus.Logger) { vmLogger = l.WithField("component", "vm") }

// maxVMSteps bounds a single execution so a pathological contract cannot
// hold the engine's exclusive lock forever.
const maxVMSteps = 100_000

// compile parses a contract's source text into a program. Source is a
// tiny line-oriented assembly of FUNC/ENDFUNC blocks:
//
//	FUNC f(x)
//	  PUSH x
//	  STORE x
//	  RET
//	ENDFUNC
//
// This replaces the original Python implementation's compile()+marshal
// step, which has no systems-language analog.
func compile(source string) (*program, error) {
	prog := &program{Functions: make(map[string]*function)}

	var current *function
	for lineNo, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "FUNC "):
			if current != nil {
				return nil, newValidationError("compile: nested FUNC at line %d", lineNo+1)
			}
			name, params, err := parseFuncHeader(line)
			if err != nil {
				return nil, newValidationError("compile: %v (line %d)", err, lineNo+1)
			}
			current = &function{Name: name, Params: params}

		case line == "ENDFUNC":
			if current == nil {
				return nil, newValidationError("compile: ENDFUNC without FUNC at line %d", lineNo+1)
			}
			prog.Functions[current.Name] = current
			current = nil

		default:
			if current == nil {
				return nil, newValidationError("compile: instruction outside FUNC at line %d", lineNo+1)
			}
			inst, err := parseInstruction(line)
			if err != nil {
				return nil, newValidationError("compile: %v (line %d)", err, lineNo+1)
			}
			current.Body = append(current.Body, inst)
		}
	}
	if current != nil {
		return nil, newValidationError("compile: missing ENDFUNC for %s", current.Name)
	}
	if len(prog.Functions) == 0 {
		return nil, newValidationError("compile: source defines no functions")
	}
	return prog, nil
}

func parseFuncHeader(line string) (name string, params []string, err error) {
	rest := strings.TrimPrefix(line, "FUNC ")
	open := strings.IndexByte(rest, '(')
	close := strings.IndexByte(rest, ')')
	if open < 0 || close < 0 || close < open {
		return "", nil, fmt.Errorf("malformed FUNC header %q", line)
	}
	name = strings.TrimSpace(rest[:open])
	if name == "" {
		return "", nil, fmt.Errorf("empty function name in %q", line)
	}
	argList := strings.TrimSpace(rest[open+1 : close])
	if argList != "" {
		for _, p := range strings.Split(argList, ",") {
			params = append(params, strings.TrimSpace(p))
		}
	}
	return name, params, nil
}

func parseInstruction(line string) (instruction, error) {
	fields := strings.SplitN(line, " ", 2)
	op := fields[0]
	operand := ""
	if len(fields) == 2 {
		operand = strings.TrimSpace(fields[1])
	}
	switch op {
	case "PUSH":
		if operand == "" {
			return instruction{}, fmt.Errorf("PUSH requires an operand")
		}
		return instruction{Op: opPush, Operand: operand}, nil
	case "ADD":
		return instruction{Op: opAdd}, nil
	case "STORE":
		if operand == "" {
			return instruction{}, fmt.Errorf("STORE requires a key operand")
		}
		return instruction{Op: opStore, Operand: operand}, nil
	case "LOAD":
		if operand == "" {
			return instruction{}, fmt.Errorf("LOAD requires a key operand")
		}
		return instruction{Op: opLoad, Operand: operand}, nil
	case "LOG":
		return instruction{Op: opLog}, nil
	case "RET":
		return instruction{Op: opRet}, nil
	default:
		return instruction{}, fmt.Errorf("unknown opcode %q", op)
	}
}

// marshalProgram gob-encodes a program for content-addressing and storage.
func marshalProgram(p *program) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalProgram(data []byte) (*program, error) {
	var p program
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// frame is one function call's execution context: its sandbox. The only
// ambient capabilities are state (the contract's own dictionary) and the
// bound parameters — no filesystem, network, or other-contract access is
// reachable from here.
type frame struct {
	params map[string]any
	state  map[string]any
	stack  []any
	logs   []string
	steps  int
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() (any, error) {
	if len(f.stack) == 0 {
		return nil, fmt.Errorf("stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) resolve(operand string) any {
	if v, ok := f.params[operand]; ok {
		return v
	}
	if n, err := strconv.ParseFloat(operand, 64); err == nil {
		return n
	}
	if len(operand) >= 2 && (operand[0] == '\'' || operand[0] == '"') && operand[len(operand)-1] == operand[0] {
		return operand[1 : len(operand)-1]
	}
	return operand
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// run executes fn's body against f, returning the value popped by RET. If
// the body ends without RET, it returns the top of the stack, or nil when
// the stack is empty.
func run(fn *function, f *frame) (any, error) {
	for _, inst := range fn.Body {
		f.steps++
		if f.steps > maxVMSteps {
			return nil, newRuntimeError("contract exceeded step bound", nil)
		}
		switch inst.Op {
		case opPush:
			f.push(f.resolve(inst.Operand))
		case opAdd:
			b, err := f.pop()
			if err != nil {
				return nil, newRuntimeError("ADD", err)
			}
			a, err := f.pop()
			if err != nil {
				return nil, newRuntimeError("ADD", err)
			}
			af, aok := toFloat(a)
			bf, bok := toFloat(b)
			if !aok || !bok {
				return nil, newRuntimeError("ADD", fmt.Errorf("non-numeric operands"))
			}
			f.push(af + bf)
		case opStore:
			v, err := f.pop()
			if err != nil {
				return nil, newRuntimeError("STORE", err)
			}
			f.state[inst.Operand] = v
		case opLoad:
			f.push(f.state[inst.Operand])
		case opLog:
			v, err := f.pop()
			if err != nil {
				return nil, newRuntimeError("LOG", err)
			}
			msg := fmt.Sprintf("%v", v)
			f.logs = append(f.logs, msg)
			vmLogger.Debugf("contract log: %s", msg)
		case opRet:
			if len(f.stack) == 0 {
				return nil, nil
			}
			return f.pop()
		}
	}
	if len(f.stack) > 0 {
		return f.stack[len(f.stack)-1], nil
	}
	return nil, nil
}

// contractAddress derives a contract's content address from its compiled
// bytecode and creation timestamp.
func contractAddress(bytecode []byte, created time.Time) string {
	h := sha256.New()
	h.Write(bytecode)
	h.Write([]byte(formatCreated(created)))
	return hex.EncodeToString(h.Sum(nil))
}

// deployContract compiles source, derives the content address from
// (bytecode, created), stores an empty-state Contract, and returns its
// address.
func deployContract(store *ContractStore, source string, created time.Time) (string, error) {
	prog, err := compile(source)
	if err != nil {
		return "", err
	}
	bc, err := marshalProgram(prog)
	if err != nil {
		return "", newRuntimeError("marshal compiled contract", err)
	}
	address := contractAddress(bc, created)
	c := &Contract{Address: address, Bytecode: bc, State: make(map[string]any)}
	store.put(c)
	return address, nil
}

// executeContract loads the named function from the deployed contract and
// invokes it with args/kwargs bound to its declared parameters.
func executeContract(store *ContractStore, address, functionSignature string, args []any, kwargs map[string]any) (any, error) {
	c, ok := store.get(address)
	if !ok {
		return nil, errUnknownContract
	}
	prog, err := unmarshalProgram(c.Bytecode)
	if err != nil {
		return nil, newRuntimeError("unmarshal contract bytecode", err)
	}
	fn, ok := prog.Functions[functionSignature]
	if !ok {
		return nil, errUnknownFunction(functionSignature)
	}

	params := make(map[string]any, len(fn.Params))
	for i, name := range fn.Params {
		if i < len(args) {
			params[name] = args[i]
		}
	}
	for k, v := range kwargs {
		params[k] = v
	}

	f := &frame{params: params, state: c.State}
	result, err := run(fn, f)
	if err != nil {
		return nil, err
	}
	return result, nil
}

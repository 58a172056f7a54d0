package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ContractStatus is the lifecycle state of a deployed contract.
type ContractStatus string

const (
	ContractActive    ContractStatus = "ACTIVE"
	ContractPaused    ContractStatus = "PAUSED"
	ContractDestroyed ContractStatus = "DESTROYED"
)

// MaxContractGas is the deploy-time gas ceiling.
const MaxContractGas = 1_000_000

// ContractState is the deterministic key/value record for one deployed
// contract.
type ContractState struct {
	Address   string                 `json:"contract_address"`
	Data      map[string]interface{} `json:"data"`
	Code      string                 `json:"code"`
	Owner     string                 `json:"owner"`
	Status    ContractStatus         `json:"status"`
	CreatedAt int64                  `json:"created_at"`
	UpdatedAt int64                  `json:"updated_at"`
}

// ContractEvent is an append-only log entry emitted by a contract call.
type ContractEvent struct {
	ContractAddress string                 `json:"contract_address"`
	Name            string                 `json:"name"`
	Data            map[string]interface{} `json:"data"`
	BlockNumber     uint64                 `json:"block_number"`
	TxHash          string                 `json:"tx_hash"`
	Timestamp       int64                  `json:"timestamp"`
}

// ContractStore is the toy key/value contract engine: deployment, dispatch
// on a small set of built-in function names, and an append-only event log.
// The VM itself is explicitly out of scope — this is a deterministic
// dispatcher, not a bytecode interpreter.
type ContractStore struct {
	mu        sync.RWMutex
	contracts map[string]*ContractState
	events    []ContractEvent
	nonce     uint64 // per-store monotonic counter feeding deterministic addresses
}

// NewContractStore returns an empty contract store.
func NewContractStore() *ContractStore {
	return &ContractStore{contracts: make(map[string]*ContractState)}
}

// Deploy creates a new contract. The address is derived deterministically as
// SHA256(deployer ∥ nonce)[0:20] hex-encoded — see DESIGN.md's Open Question
// decision; the source's wall-clock-plus-random derivation is not
// reproducible across replays and is not carried forward.
func (s *ContractStore) Deploy(code string, initialState map[string]interface{}, deployer string, gasLimit uint64) (*ContractState, error) {
	if gasLimit > MaxContractGas {
		return nil, fmt.Errorf("deploy gas limit %d: %w", gasLimit, ErrGasLimitExceeded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := s.nonce
	s.nonce++

	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	h := sha256.Sum256(append([]byte(deployer), nb[:]...))
	addr := hex.EncodeToString(h[:20])

	data := make(map[string]interface{}, len(initialState))
	for k, v := range initialState {
		data[k] = v
	}

	now := time.Now().Unix()
	cs := &ContractState{
		Address:   addr,
		Data:      data,
		Code:      code,
		Owner:     deployer,
		Status:    ContractActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.contracts[addr] = cs

	s.events = append(s.events, ContractEvent{
		ContractAddress: addr,
		Name:            "ContractDeployed",
		Data:            map[string]interface{}{"deployer": deployer},
		Timestamp:       now,
	})

	logrus.WithFields(logrus.Fields{"address": addr, "deployer": deployer}).Info("contract deployed")
	return cs, nil
}

// deepCopyData clones a contract's Data map for snapshot/restore, recursing
// into nested maps; values of other types, slices included, are copied as is.
func deepCopyData(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopyData(m)
		} else {
			out[k] = v
		}
	}
	return out
}

// Call dispatches a built-in function against a deployed, active contract.
// The contract's Data map is snapshotted before dispatch and restored on any
// error, making failed calls atomic — the source's no-op revert is treated
// as a bug (see DESIGN.md).
func (s *ContractStore) Call(addr, function string, args map[string]interface{}, caller string, blockNumber uint64, txHash string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", addr, ErrContractNotFound)
	}
	if cs.Status != ContractActive {
		return nil, fmt.Errorf("call %s: %w", addr, ErrContractInactive)
	}

	snapshot := deepCopyData(cs.Data)
	result, err := s.dispatch(cs, function, args, blockNumber, txHash)
	if err != nil {
		cs.Data = snapshot
		return nil, err
	}
	cs.UpdatedAt = time.Now().Unix()
	return result, nil
}

func (s *ContractStore) dispatch(cs *ContractState, function string, args map[string]interface{}, blockNumber uint64, txHash string) (interface{}, error) {
	switch function {
	case "set_state":
		key, _ := args["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("set_state: missing key")
		}
		cs.Data[key] = args["value"]
		return nil, nil

	case "get_state":
		key, _ := args["key"].(string)
		return cs.Data[key], nil

	case "emit_event":
		name, _ := args["name"].(string)
		data, _ := args["data"].(map[string]interface{})
		s.events = append(s.events, ContractEvent{
			ContractAddress: cs.Address,
			Name:            name,
			Data:            data,
			BlockNumber:     blockNumber,
			TxHash:          txHash,
			Timestamp:       time.Now().Unix(),
		})
		return nil, nil

	default:
		return nil, fmt.Errorf("function %q: %w", function, ErrFunctionNotImplemented)
	}
}

// GetState performs a dotted-path traversal of a contract's nested Data map,
// returning (value, true) or (nil, false) if any path segment is absent.
func (s *ContractStore) GetState(addr, keyPath string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.contracts[addr]
	if !ok {
		return nil, false
	}

	var cur interface{} = cs.Data
	for _, seg := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Get returns the contract record for addr, if deployed.
func (s *ContractStore) Get(addr string) (*ContractState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.contracts[addr]
	return cs, ok
}

// Events returns a copy of the append-only event log.
func (s *ContractStore) Events() []ContractEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ContractEvent, len(s.events))
	copy(out, s.events)
	return out
}

// snapshotAll returns a deep copy of every contract's state, used by the
// chain engine's canonical state_root hash.
func (s *ContractStore) snapshotAll() map[string]ContractState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ContractState, len(s.contracts))
	for k, v := range s.contracts {
		cp := *v
		cp.Data = deepCopyData(v.Data)
		out[k] = cp
	}
	return out
}

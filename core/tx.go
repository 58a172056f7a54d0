package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// TxKind is the closed set of transaction variants. Representing it as a Go
// string-backed type (rather than branching on raw strings at dispatch time,
// as the source does) lets process_transaction switch exhaustively instead
// of falling through to a FunctionNotImplemented-class default.
type TxKind string

const (
	TxTransfer       TxKind = "TRANSFER"
	TxContractDeploy TxKind = "CONTRACT_DEPLOY"
	TxContractCall   TxKind = "CONTRACT_CALL"
	TxStake          TxKind = "STAKE"
	TxUnstake        TxKind = "UNSTAKE"
)

// Transaction is the wire/storage record for one submitted operation. Hash is
// a pure function of every other field except Signature, which is not hashed;
// canonicalHash recomputes it the same
// way on every call so hash purity (invariant 2) holds by construction.
type Transaction struct {
	From      string                 `json:"from_address"`
	To        string                 `json:"to_address"`
	Amount    int64                  `json:"amount"`
	Kind      TxKind                 `json:"transaction_type"`
	Data      map[string]interface{} `json:"data"`
	GasLimit  uint64                 `json:"gas_limit"`
	GasPrice  uint64                 `json:"gas_price"`
	Timestamp int64                  `json:"timestamp"`
	Signature []byte                 `json:"signature,omitempty"`
	Hash      string                 `json:"hash"`
}

// canonicalHash returns SHA-256 of a canonical JSON encoding of the hashed
// fields, keys lexicographically sorted. encoding/json.Marshal on a
// map[string]interface{} already emits keys in sorted order, which is the
// entire trick: build the hash input as a plain map rather than hand-rolling
// a sort.
func (tx *Transaction) canonicalHash() string {
	fields := map[string]interface{}{
		"from_address":     tx.From,
		"to_address":       tx.To,
		"amount":           tx.Amount,
		"transaction_type": string(tx.Kind),
		"data":             tx.Data,
		"gas_limit":        tx.GasLimit,
		"gas_price":        tx.GasPrice,
		"timestamp":        tx.Timestamp,
	}
	b, err := json.Marshal(fields)
	if err != nil {
		// Fields are all JSON-marshalable primitives/maps; a failure here
		// indicates a caller stored a non-marshalable value in Data.
		panic(fmt.Sprintf("transaction hash: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ComputeHash recomputes and stores tx.Hash from the other fields.
func (tx *Transaction) ComputeHash() string {
	tx.Hash = tx.canonicalHash()
	return tx.Hash
}

// VerifyHash reports whether tx.Hash matches a fresh recomputation.
func (tx *Transaction) VerifyHash() bool {
	return tx.Hash == tx.canonicalHash()
}

// GasCost is gas_limit * gas_price, the amount debited alongside the
// transfer itself.
func (tx *Transaction) GasCost() int64 {
	return int64(tx.GasLimit) * int64(tx.GasPrice)
}

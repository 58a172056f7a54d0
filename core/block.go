package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Block is one entry in the chain. Hash is a pure function of the other
// fields, recomputed identically to the way they are serialized for hashing.
type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    int64          `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Validator    string         `json:"validator"`
	StateRoot    string         `json:"state_root"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
}

// txDict renders a transaction identically to the way it contributes to its
// own hash, for embedding inside a block's hash input.
func txDict(tx *Transaction) map[string]interface{} {
	return map[string]interface{}{
		"from_address":     tx.From,
		"to_address":       tx.To,
		"amount":           tx.Amount,
		"transaction_type": string(tx.Kind),
		"data":             tx.Data,
		"gas_limit":        tx.GasLimit,
		"gas_price":        tx.GasPrice,
		"timestamp":        tx.Timestamp,
	}
}

func (b *Block) canonicalHash() string {
	txs := make([]map[string]interface{}, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txs = append(txs, txDict(tx))
	}
	fields := map[string]interface{}{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  txs,
		"previous_hash": b.PreviousHash,
		"validator":     b.Validator,
		"state_root":    b.StateRoot,
		"nonce":         b.Nonce,
	}
	data, err := json.Marshal(fields)
	if err != nil {
		panic(fmt.Sprintf("block hash: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeHash recomputes and stores b.Hash from the other fields.
func (b *Block) ComputeHash() string {
	b.Hash = b.canonicalHash()
	return b.Hash
}

// VerifyHash reports whether b.Hash matches a fresh recomputation.
func (b *Block) VerifyHash() bool {
	return b.Hash == b.canonicalHash()
}

// StateRoot computes a canonical hash over the ledger's accounts and the
// contract store's contracts, used to bind a block to the state it produces.
func StateRoot(l *Ledger, cs *ContractStore) string {
	accounts := l.snapshotAccounts()
	contracts := cs.snapshotAll()

	fields := map[string]interface{}{
		"accounts":  accounts,
		"contracts": contracts,
	}
	data, err := json.Marshal(fields)
	if err != nil {
		panic(fmt.Sprintf("state root: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

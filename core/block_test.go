package core

import "testing"

func newTestBlock() *Block {
	tx := newTestTx()
	tx.ComputeHash()
	return &Block{
		Index:        1,
		Timestamp:    1000,
		Transactions: []*Transaction{tx},
		PreviousHash: "0",
		Validator:    "genesis",
		StateRoot:    "deadbeef",
	}
}

func TestBlockComputeHashDeterministic(t *testing.T) {
	b1 := newTestBlock()
	b2 := newTestBlock()
	if b1.ComputeHash() != b2.ComputeHash() {
		t.Fatal("identical blocks produced different hashes")
	}
}

func TestBlockHashChangesWithTransactions(t *testing.T) {
	b1 := newTestBlock()
	b2 := newTestBlock()
	b2.Transactions[0].Amount = 999
	b2.Transactions[0].ComputeHash()

	if b1.ComputeHash() == b2.ComputeHash() {
		t.Fatal("blocks with differing transaction content produced the same hash")
	}
}

func TestBlockVerifyHash(t *testing.T) {
	b := newTestBlock()
	b.ComputeHash()
	if !b.VerifyHash() {
		t.Fatal("VerifyHash should succeed immediately after ComputeHash")
	}
	b.Nonce = 42
	if b.VerifyHash() {
		t.Fatal("VerifyHash should fail after mutating a hashed field")
	}
}

func TestStateRootChangesWithLedgerState(t *testing.T) {
	l := NewLedger()
	cs := NewContractStore()
	root1 := StateRoot(l, cs)

	l.CreateAccount("alice", 100)
	root2 := StateRoot(l, cs)

	if root1 == root2 {
		t.Fatal("state root did not change after ledger mutation")
	}
}

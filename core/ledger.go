package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EntryKind tags the purpose of a LedgerEntry.
type EntryKind string

const (
	EntryDebitAmount EntryKind = "debit_amount"
	EntryCreditAmount EntryKind = "credit_amount"
	EntryDebitGas    EntryKind = "debit_gas"
	EntryReward      EntryKind = "reward"
	EntryGenesis     EntryKind = "genesis"
)

// Account is a ledger-owned record, created lazily on first reference and
// never destroyed. Balance is a plain int64 in base units: every amount the
// spec exercises (stakes, rewards, transfers) is already a whole number, so
// no further fixed-point scaling is introduced — the determinism guarantee
// comes from avoiding floats entirely, not from a sub-unit scale.
type Account struct {
	Address     string `json:"address"`
	Balance     int64  `json:"balance"`
	Nonce       uint64 `json:"nonce"`
	CreatedAt   int64  `json:"created_at"`
	LastUpdated int64  `json:"last_updated"`
	IsContract  bool   `json:"is_contract"`
}

// LedgerEntry is an immutable record of one balance delta.
type LedgerEntry struct {
	ID          string    `json:"id"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   int64     `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      int64     `json:"amount"`
	Kind        EntryKind `json:"kind"`
	Description string    `json:"description"`
	GasCost     int64     `json:"gas_cost"`
}

// Ledger holds accounts, the append-only global entry log, and a per-account
// index into that log. All mutation happens behind mu, following the
// teacher's single-writer-lock convention in ledger.go.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	entries  []LedgerEntry
	byAcct   map[string][]int // index into entries, per account
}

// NewLedger returns an empty ledger with no accounts.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*Account),
		byAcct:   make(map[string][]int),
	}
}

// CreateAccount is idempotent: it returns the existing account if addr is
// already known, otherwise creates one with the given initial balance.
func (l *Ledger) CreateAccount(addr string, initial int64) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getOrCreateLocked(addr, initial)
}

func (l *Ledger) getOrCreateLocked(addr string, initial int64) *Account {
	if acct, ok := l.accounts[addr]; ok {
		return acct
	}
	now := time.Now().Unix()
	acct := &Account{
		Address:     addr,
		Balance:     initial,
		CreatedAt:   now,
		LastUpdated: now,
	}
	l.accounts[addr] = acct
	return acct
}

// GetBalance returns 0 for an unknown address.
func (l *Ledger) GetBalance(addr string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acct, ok := l.accounts[addr]; ok {
		return acct.Balance
	}
	return 0
}

// GetAccount returns the account for addr, creating it with a zero balance
// if unknown.
func (l *Ledger) GetAccount(addr string) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getOrCreateLocked(addr, 0)
}

// appendEntryLocked appends one entry to the global log and the per-account
// indexes for both sides it touches. Caller holds mu.
func (l *Ledger) appendEntryLocked(e LedgerEntry) {
	idx := len(l.entries)
	l.entries = append(l.entries, e)
	if e.From != "" {
		l.byAcct[e.From] = append(l.byAcct[e.From], idx)
	}
	if e.To != "" && e.To != e.From {
		l.byAcct[e.To] = append(l.byAcct[e.To], idx)
	}
}

// UpdateBalance applies delta to addr's balance (creating the account on
// demand), appends one LedgerEntry, and updates last_updated. Balances are
// permitted to go negative here — see DESIGN.md for the Open Question
// decision; validate_transaction is the only gate against overdraft.
func (l *Ledger) UpdateBalance(addr string, delta int64, txHash string, blockNumber uint64, kind EntryKind, description string, gasCost int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.getOrCreateLocked(addr, 0)
	acct.Balance += delta
	acct.LastUpdated = time.Now().Unix()

	var from, to string
	if delta < 0 {
		from = addr
	} else {
		to = addr
	}

	l.appendEntryLocked(LedgerEntry{
		ID:          uuid.NewString(),
		TxHash:      txHash,
		BlockNumber: blockNumber,
		Timestamp:   time.Now().Unix(),
		From:        from,
		To:          to,
		Amount:      delta,
		Kind:        kind,
		Description: description,
		GasCost:     gasCost,
	})

	logrus.WithFields(logrus.Fields{
		"address": addr,
		"delta":   delta,
		"kind":    kind,
	}).Debug("ledger: balance updated")
}

// RecordTransaction performs the double-entry bookkeeping for a processed
// transaction: debit `from` by amount, credit `to` by amount, then debit
// `from` by gas_cost — three distinct LedgerEntry records in that order.
func (l *Ledger) RecordTransaction(txHash string, blockNumber uint64, from, to string, amount int64, kind EntryKind, description string, gasCost int64) {
	now := time.Now().Unix()

	l.mu.Lock()
	if from != "" && amount > 0 {
		acct := l.getOrCreateLocked(from, 0)
		acct.Balance -= amount
		acct.LastUpdated = now
		l.appendEntryLocked(LedgerEntry{
			ID: uuid.NewString(), TxHash: txHash, BlockNumber: blockNumber, Timestamp: now,
			From: from, Amount: -amount, Kind: EntryDebitAmount, Description: description,
		})
	}
	if to != "" && amount > 0 {
		acct := l.getOrCreateLocked(to, 0)
		acct.Balance += amount
		acct.LastUpdated = now
		l.appendEntryLocked(LedgerEntry{
			ID: uuid.NewString(), TxHash: txHash, BlockNumber: blockNumber, Timestamp: now,
			To: to, Amount: amount, Kind: EntryCreditAmount, Description: description,
		})
	}
	if from != "" && gasCost > 0 {
		acct := l.getOrCreateLocked(from, 0)
		acct.Balance -= gasCost
		acct.LastUpdated = now
		l.appendEntryLocked(LedgerEntry{
			ID: uuid.NewString(), TxHash: txHash, BlockNumber: blockNumber, Timestamp: now,
			From: from, Amount: -gasCost, Kind: EntryDebitGas, Description: "gas", GasCost: gasCost,
		})
	}
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"tx":     txHash,
		"from":   from,
		"to":     to,
		"amount": amount,
		"kind":   kind,
	}).Debug("ledger: transaction recorded")
}

// GetAccountHistory returns the most recent `limit` entries touching addr,
// oldest-first. limit <= 0 returns the full history.
func (l *Ledger) GetAccountHistory(addr string, limit int) []LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.byAcct[addr]
	start := 0
	if limit > 0 && len(idxs) > limit {
		start = len(idxs) - limit
	}
	out := make([]LedgerEntry, 0, len(idxs)-start)
	for _, i := range idxs[start:] {
		out = append(out, l.entries[i])
	}
	return out
}

// GlobalLog returns a copy of the full, append-only entry log in the order
// entries were created.
func (l *Ledger) GlobalLog() []LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ValidateSufficientBalance reports whether addr can cover amount+gasCost.
func (l *Ledger) ValidateSufficientBalance(addr string, amount, gasCost int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[addr]
	if !ok {
		return amount+gasCost <= 0
	}
	return acct.Balance >= amount+gasCost
}

// snapshotAccounts returns a deep copy of the account map, used by the chain
// engine's canonical state_root hash and by savepoint revert.
func (l *Ledger) snapshotAccounts() map[string]Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Account, len(l.accounts))
	for k, v := range l.accounts {
		out[k] = *v
	}
	return out
}

// restoreAccounts replaces the account map wholesale, used to revert a
// savepoint on mid-transaction failure. The entry log is intentionally left
// alone: entries already appended describe what was attempted, not what
// ultimately stuck, mirroring an audit trail.
func (l *Ledger) restoreAccounts(snap map[string]Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*Account, len(snap))
	for k, v := range snap {
		acct := v
		l.accounts[k] = &acct
	}
}

// ErrAccountUnknown reports an address with no ledger account. The Ledger's
// own lookups create accounts on demand and do not return it.
var ErrAccountUnknown = fmt.Errorf("ledger: account unknown")

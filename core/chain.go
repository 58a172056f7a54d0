package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineConfig groups the chain engine's process-wide constants.
type EngineConfig struct {
	MinimumStake   int64
	BlockTime      time.Duration
	BlockReward    int64
	GasPrice       uint64
	MaxTxsPerBlock int
}

// DefaultEngineConfig matches the spec's named constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinimumStake:   MinimumStake,
		BlockTime:      5 * time.Second,
		BlockReward:    1,
		GasPrice:       1,
		MaxTxsPerBlock: 100,
	}
}

const (
	// GenesisAddress is the sentinel producer of block 0.
	GenesisAddress = "genesis"
	// StakePoolAddress is the sentinel credit target for STAKE transactions.
	StakePoolAddress = "stake_pool"
	// PeerReviewEveryNBlocks controls how often AddBlock triggers a review round.
	PeerReviewEveryNBlocks = 5
)

// pendingValidator is a STAKE transaction that has been accepted into the
// mempool but not yet mined. RegisterValidator records one, keyed by the
// STAKE tx hash, and returns that hash instead of creating the Validator
// record immediately — see DESIGN.md's Open
// Question decision on gating creation to block inclusion.
type pendingValidator struct {
	address string
	stake   int64
}

// ChainEngine owns the chain, mempool, validator set, ledger and contract
// store, and is the only component permitted to mutate them (§5).
type ChainEngine struct {
	mu sync.Mutex

	cfg EngineConfig
	rng RandSource

	chain      []*Block
	mempool    []*Transaction
	validators map[string]*Validator
	pending    map[string]pendingValidator // keyed by the STAKE tx hash

	ledger   *Ledger
	contracts *ContractStore

	governance *GovernanceEngine
}

// NewChainEngine constructs a chain engine with a genesis block: block 0,
// validator "genesis", empty transactions, previous_hash "0", and a
// "genesis" account funded with 1,000,000.
func NewChainEngine(cfg EngineConfig, rng RandSource) *ChainEngine {
	e := &ChainEngine{
		cfg:        cfg,
		rng:        rng,
		validators: make(map[string]*Validator),
		pending:    make(map[string]pendingValidator),
		ledger:     NewLedger(),
		contracts:  NewContractStore(),
	}
	e.governance = NewGovernanceEngine(e)

	e.ledger.CreateAccount(GenesisAddress, 1_000_000)

	genesis := &Block{
		Index:        0,
		Timestamp:    time.Now().Unix(),
		Transactions: []*Transaction{},
		PreviousHash: "0",
		Validator:    GenesisAddress,
		StateRoot:    StateRoot(e.ledger, e.contracts),
	}
	genesis.ComputeHash()
	e.chain = append(e.chain, genesis)

	logrus.Info("chain engine: genesis block created")
	return e
}

// Ledger exposes the underlying ledger for read access (e.g. balance
// queries from the gossip /status route or the CLI).
func (e *ChainEngine) Ledger() *Ledger { return e.ledger }

// Contracts exposes the underlying contract store.
func (e *ChainEngine) Contracts() *ContractStore { return e.contracts }

// Chain returns a copy of the chain slice (not deep copies of the blocks).
func (e *ChainEngine) Chain() []*Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Block, len(e.chain))
	copy(out, e.chain)
	return out
}

// Tip returns the most recently appended block.
func (e *ChainEngine) Tip() *Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chain[len(e.chain)-1]
}

// Validators returns a snapshot of the currently registered validators.
func (e *ChainEngine) Validators() map[string]*Validator {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*Validator, len(e.validators))
	for k, v := range e.validators {
		out[k] = v
	}
	return out
}

// ValidateTransaction reports whether tx would be accepted by AddTransaction.
func (e *ChainEngine) ValidateTransaction(tx *Transaction) error {
	gasCost := tx.GasCost()
	if !e.ledger.ValidateSufficientBalance(tx.From, tx.Amount, gasCost) {
		return fmt.Errorf("%s: %w", tx.From, ErrInsufficientBalance)
	}
	switch tx.Kind {
	case TxTransfer:
		if tx.Amount <= 0 {
			return fmt.Errorf("transfer amount must be positive: %w", ErrInvalidTransaction)
		}
	case TxContractDeploy:
		if tx.Data == nil || tx.Data["contract_code"] == nil {
			return fmt.Errorf("contract deploy missing data.contract_code: %w", ErrInvalidTransaction)
		}
	case TxContractCall:
		if tx.Data == nil || tx.Data["contract_address"] == nil {
			return fmt.Errorf("contract call missing data.contract_address: %w", ErrInvalidTransaction)
		}
	case TxStake:
		if tx.Amount < e.cfg.MinimumStake {
			return fmt.Errorf("stake %d below minimum %d: %w", tx.Amount, e.cfg.MinimumStake, ErrInvalidTransaction)
		}
	}
	return nil
}

// AddTransaction validates tx and appends it to the mempool. No
// deduplication or fee ordering is performed.
func (e *ChainEngine) AddTransaction(tx *Transaction) error {
	if tx.Hash == "" {
		tx.ComputeHash()
	}
	if err := e.ValidateTransaction(tx); err != nil {
		return err
	}
	e.mu.Lock()
	e.mempool = append(e.mempool, tx)
	e.mu.Unlock()
	return nil
}

// RegisterValidator fails if stake is below the minimum or the account
// cannot cover it; otherwise it queues a STAKE transaction and returns its
// hash. The Validator record itself is created only once that transaction
// is mined — see DESIGN.md.
func (e *ChainEngine) RegisterValidator(addr string, stake int64) (string, error) {
	if stake < e.cfg.MinimumStake {
		return "", fmt.Errorf("stake %d below minimum %d: %w", stake, e.cfg.MinimumStake, ErrInvalidTransaction)
	}
	if e.ledger.GetBalance(addr) < stake {
		return "", fmt.Errorf("%s: %w", addr, ErrInsufficientBalance)
	}

	tx := &Transaction{
		From:     addr,
		To:       StakePoolAddress,
		Amount:   stake,
		Kind:     TxStake,
		Data:     map[string]interface{}{},
		GasLimit: 10,
		GasPrice: e.cfg.GasPrice,
		Timestamp: time.Now().Unix(),
	}
	tx.ComputeHash()

	if err := e.AddTransaction(tx); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.pending[tx.Hash] = pendingValidator{address: addr, stake: stake}
	e.mu.Unlock()

	return tx.Hash, nil
}

// SelectValidator performs PoCS-weighted random sampling over active
// validators, falling back to stake-weighted sampling when total score is
// non-positive. Returns ErrNoValidatorAvailable if there are no active
// validators.
func (e *ChainEngine) SelectValidator() (string, error) {
	e.mu.Lock()
	now := time.Now()
	addrs := make([]string, 0, len(e.validators))
	for addr, v := range e.validators {
		if v.IsActive {
			addrs = append(addrs, addr)
		}
	}
	e.mu.Unlock()
	sort.Strings(addrs) // fixed iteration order, so a seeded RandSource reproduces the pick

	if len(addrs) == 0 {
		return "", ErrNoValidatorAvailable
	}

	scores := make([]float64, len(addrs))
	total := 0.0
	for i, addr := range addrs {
		v := e.validators[addr]
		v.Touch(now)
		scores[i] = v.Score(now)
		total += scores[i]
	}

	if total <= 0 {
		total = 0
		stakes := make([]float64, len(addrs))
		for i, addr := range addrs {
			e.mu.Lock()
			stakes[i] = e.validators[addr].Stake
			e.mu.Unlock()
			total += stakes[i]
		}
		return e.weightedPick(addrs, stakes, total), nil
	}

	return e.weightedPick(addrs, scores, total), nil
}

// weightedPick draws r uniformly in [0, total) and returns the address whose
// running sum first meets or exceeds r, with the last address winning any
// floating-point rounding past the end.
func (e *ChainEngine) weightedPick(addrs []string, weights []float64, total float64) string {
	if total <= 0 {
		return addrs[len(addrs)-1]
	}
	r := e.rng.Float64() * total
	running := 0.0
	for i, w := range weights {
		running += w
		if running >= r {
			return addrs[i]
		}
	}
	return addrs[len(addrs)-1]
}

// CreateBlock assembles a block from up to MaxTxsPerBlock pending
// transactions, computing the state root and chaining from the tip. It does
// not mutate the mempool or append to the chain.
func (e *ChainEngine) CreateBlock(producer string) *Block {
	e.mu.Lock()
	n := len(e.mempool)
	if n > e.cfg.MaxTxsPerBlock {
		n = e.cfg.MaxTxsPerBlock
	}
	txs := make([]*Transaction, n)
	copy(txs, e.mempool[:n])
	tip := e.chain[len(e.chain)-1]
	index := tip.Index + 1
	e.mu.Unlock()

	blk := &Block{
		Index:        index,
		Timestamp:    time.Now().Unix(),
		Transactions: txs,
		PreviousHash: tip.Hash,
		Validator:    producer,
		StateRoot:    StateRoot(e.ledger, e.contracts),
	}
	blk.ComputeHash()
	return blk
}

// AddBlock validates chain-continuity invariants, applies each transaction
// (continuing past individual failures), removes applied transactions from
// the mempool, appends the block, credits the producer with the block
// reward, updates the producer's validator metrics, and every
// PeerReviewEveryNBlocks blocks triggers a peer-review round.
func (e *ChainEngine) AddBlock(blk *Block) error {
	e.mu.Lock()
	tip := e.chain[len(e.chain)-1]
	if blk.Index != tip.Index+1 || blk.PreviousHash != tip.Hash {
		e.mu.Unlock()
		return fmt.Errorf("block %d: %w", blk.Index, ErrInvalidBlock)
	}
	if !blk.VerifyHash() {
		e.mu.Unlock()
		return fmt.Errorf("block %d hash mismatch: %w", blk.Index, ErrInvalidBlock)
	}
	e.mu.Unlock()

	kinds := make(map[TxKind]struct{})
	applied := make(map[string]struct{}, len(blk.Transactions))

	for _, tx := range blk.Transactions {
		kinds[tx.Kind] = struct{}{}

		if err := e.processTransaction(tx, blk.Index); err != nil {
			logrus.WithFields(logrus.Fields{"tx": tx.Hash, "err": err}).Warn("transaction application failed; skipping")
			continue
		}
		applied[tx.Hash] = struct{}{}

		if pv, ok := e.pending[tx.Hash]; ok {
			e.mu.Lock()
			e.validators[pv.address] = NewValidator(pv.address, float64(pv.stake), time.Now())
			delete(e.pending, tx.Hash)
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	remaining := e.mempool[:0]
	for _, tx := range e.mempool {
		if _, done := applied[tx.Hash]; !done {
			remaining = append(remaining, tx)
		}
	}
	e.mempool = remaining
	e.chain = append(e.chain, blk)
	numBlocks := len(e.chain)
	e.mu.Unlock()

	e.ledger.UpdateBalance(blk.Validator, e.cfg.BlockReward, blk.Hash, blk.Index, EntryReward, "block reward", 0)

	e.mu.Lock()
	v := e.validators[blk.Validator]
	e.mu.Unlock()
	if v != nil {
		v.Touch(time.Now())
		v.UpdateContributionScore(10, "block_validated")
		v.UpdateReliabilityScore(true, 0)
		v.mu.Lock()
		v.TotalUptimeSeconds += e.cfg.BlockTime.Seconds()
		v.BlocksValidated++
		v.TotalRewards += e.cfg.BlockReward
		v.LastBlockTime = time.Now()
		if len(kinds) > v.UniqueTransactionTypes {
			v.UniqueTransactionTypes = len(kinds)
		}
		v.mu.Unlock()
		v.RecordBlockAttempt(true, len(blk.Transactions))
	}

	if numBlocks%PeerReviewEveryNBlocks == 0 {
		e.mu.Lock()
		activeCount := len(e.validators)
		e.mu.Unlock()
		if activeCount >= 2 {
			e.governance.TriggerPeerReviews()
		}
	}

	return nil
}

// processTransaction applies one transaction to the ledger and contract
// store by kind. On failure the ledger's account balances are restored from
// a savepoint taken before the transaction (entries already appended to the
// log stay); the contract store is not snapshotted here, and a failed
// contract call restores its own Data (see ContractStore.Call).
func (e *ChainEngine) processTransaction(tx *Transaction, blockNumber uint64) error {
	ledgerSnap := e.ledger.snapshotAccounts()

	if err := e.applyTransactionKind(tx, blockNumber); err != nil {
		e.ledger.restoreAccounts(ledgerSnap)
		return err
	}
	return nil
}

func (e *ChainEngine) applyTransactionKind(tx *Transaction, blockNumber uint64) error {
	switch tx.Kind {
	case TxTransfer:
		e.ledger.RecordTransaction(tx.Hash, blockNumber, tx.From, tx.To, tx.Amount, EntryDebitAmount, "transfer", tx.GasCost())
		return nil

	case TxContractDeploy:
		code, _ := tx.Data["contract_code"].(string)
		initial, _ := tx.Data["initial_state"].(map[string]interface{})
		cs, err := e.contracts.Deploy(code, initial, tx.From, tx.GasLimit)
		if err != nil {
			return err
		}
		tx.Data["deployed_address"] = cs.Address
		e.ledger.UpdateBalance(tx.From, -tx.GasCost(), tx.Hash, blockNumber, EntryDebitGas, "contract deploy gas", tx.GasCost())
		return nil

	case TxContractCall:
		addr, _ := tx.Data["contract_address"].(string)
		function, _ := tx.Data["function"].(string)
		args, _ := tx.Data["args"].(map[string]interface{})
		result, err := e.contracts.Call(addr, function, args, tx.From, blockNumber, tx.Hash)
		if err != nil {
			return err
		}
		tx.Data["result"] = result
		e.ledger.UpdateBalance(tx.From, -tx.GasCost(), tx.Hash, blockNumber, EntryDebitGas, "contract call gas", tx.GasCost())
		return nil

	case TxStake:
		e.ledger.RecordTransaction(tx.Hash, blockNumber, tx.From, StakePoolAddress, tx.Amount, EntryDebitAmount, "stake", tx.GasCost())
		return nil

	case TxUnstake:
		// Reserved: not implemented, matching the source.
		return fmt.Errorf("unstake: %w", ErrFunctionNotImplemented)

	default:
		return fmt.Errorf("unknown transaction kind %q: %w", tx.Kind, ErrInvalidTransaction)
	}
}

// MineBlock assembles and appends one block from the mempool. The producer
// is "genesis" only when the chain has exactly one block and no validators
// are registered yet; otherwise SelectValidator chooses. Returns
// ErrMempoolEmpty if the mempool is empty.
func (e *ChainEngine) MineBlock() (*Block, error) {
	e.mu.Lock()
	empty := len(e.mempool) == 0
	soleGenesis := len(e.chain) == 1 && len(e.validators) == 0
	e.mu.Unlock()

	if empty {
		return nil, ErrMempoolEmpty
	}

	var producer string
	if soleGenesis {
		producer = GenesisAddress
	} else {
		p, err := e.SelectValidator()
		if err != nil {
			return nil, err
		}
		producer = p
	}

	blk := e.CreateBlock(producer)
	if err := e.AddBlock(blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// NetworkSummary reports an operational snapshot of the chain, supplemented
// from original_source's GetNetworkPerformanceSummary (see SPEC_FULL.md §5).
// Exposed over the gossip node's /status route.
type NetworkSummary struct {
	ChainHeight     uint64 `json:"chain_height"`
	MempoolSize     int    `json:"mempool_size"`
	ValidatorCount  int    `json:"validator_count"`
	GenesisBalance  int64  `json:"genesis_balance"`
}

func (e *ChainEngine) NetworkSummary() NetworkSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NetworkSummary{
		ChainHeight:    e.chain[len(e.chain)-1].Index,
		MempoolSize:    len(e.mempool),
		ValidatorCount: len(e.validators),
		GenesisBalance: e.ledger.GetBalance(GenesisAddress),
	}
}

package core

import "testing"

func TestCreateAccountIsIdempotent(t *testing.T) {
	l := NewLedger()
	a1 := l.CreateAccount("alice", 100)
	a2 := l.CreateAccount("alice", 999)
	if a1 != a2 {
		t.Fatal("CreateAccount returned a different record on second call")
	}
	if a2.Balance != 100 {
		t.Fatalf("second CreateAccount call overwrote balance: got %d want 100", a2.Balance)
	}
}

func TestGetBalanceUnknownAddressIsZero(t *testing.T) {
	l := NewLedger()
	if bal := l.GetBalance("nobody"); bal != 0 {
		t.Fatalf("expected 0 balance for unknown address, got %d", bal)
	}
}

func TestUpdateBalancePermitsNegative(t *testing.T) {
	l := NewLedger()
	l.CreateAccount("alice", 10)
	l.UpdateBalance("alice", -50, "txhash", 1, EntryDebitAmount, "overdraft", 0)
	if bal := l.GetBalance("alice"); bal != -40 {
		t.Fatalf("expected negative balance -40, got %d", bal)
	}
}

func TestRecordTransactionDoubleEntryOrder(t *testing.T) {
	l := NewLedger()
	l.CreateAccount("alice", 100)
	l.CreateAccount("bob", 0)

	l.RecordTransaction("tx1", 1, "alice", "bob", 30, EntryDebitAmount, "transfer", 5)

	if bal := l.GetBalance("alice"); bal != 100-30-5 {
		t.Fatalf("alice balance = %d, want %d", bal, 100-30-5)
	}
	if bal := l.GetBalance("bob"); bal != 30 {
		t.Fatalf("bob balance = %d, want 30", bal)
	}

	entries := l.GlobalLog()
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
	wantKinds := []EntryKind{EntryDebitAmount, EntryCreditAmount, EntryDebitGas}
	for i, want := range wantKinds {
		if entries[i].Kind != want {
			t.Fatalf("entry %d kind = %s, want %s", i, entries[i].Kind, want)
		}
	}
	if entries[0].From != "alice" || entries[0].Amount != -30 {
		t.Fatalf("debit-amount entry malformed: %+v", entries[0])
	}
	if entries[1].To != "bob" || entries[1].Amount != 30 {
		t.Fatalf("credit-amount entry malformed: %+v", entries[1])
	}
	if entries[2].From != "alice" || entries[2].Amount != -5 {
		t.Fatalf("debit-gas entry malformed: %+v", entries[2])
	}
}

func TestValidateSufficientBalance(t *testing.T) {
	l := NewLedger()
	l.CreateAccount("alice", 100)

	if !l.ValidateSufficientBalance("alice", 50, 10) {
		t.Fatal("expected sufficient balance to validate")
	}
	if l.ValidateSufficientBalance("alice", 95, 10) {
		t.Fatal("expected insufficient balance to fail validation")
	}
	if l.ValidateSufficientBalance("nobody", 1, 0) {
		t.Fatal("unknown account with positive amount should not validate")
	}
	if !l.ValidateSufficientBalance("nobody", 0, 0) {
		t.Fatal("unknown account with zero amount should validate")
	}
}

func TestSnapshotRestoreAccounts(t *testing.T) {
	l := NewLedger()
	l.CreateAccount("alice", 100)

	snap := l.snapshotAccounts()
	l.UpdateBalance("alice", -100, "tx", 1, EntryDebitAmount, "spend", 0)
	if bal := l.GetBalance("alice"); bal != 0 {
		t.Fatalf("expected balance 0 after spend, got %d", bal)
	}

	l.restoreAccounts(snap)
	if bal := l.GetBalance("alice"); bal != 100 {
		t.Fatalf("expected balance restored to 100, got %d", bal)
	}
}

func TestGetAccountHistoryLimit(t *testing.T) {
	l := NewLedger()
	l.CreateAccount("alice", 1000)
	for i := 0; i < 5; i++ {
		l.UpdateBalance("alice", -1, "tx", uint64(i), EntryDebitAmount, "spend", 0)
	}
	hist := l.GetAccountHistory("alice", 2)
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries with limit, got %d", len(hist))
	}
	full := l.GetAccountHistory("alice", 0)
	if len(full) != 5 {
		t.Fatalf("expected 5 entries with no limit, got %d", len(full))
	}
}

package services

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/position"
)

func newTestService(t *testing.T) *TransactionService {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	return NewTransactionService(database.DB)
}

func seedUser(t *testing.T, username string) int64 {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		Password:     "hashed",
		AuthProvider: "local",
		IsVerified:   true,
	}
	if err := user.CreateUser(database.DB); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return user.ID
}

func seedClient(t *testing.T, userID int64) int64 {
	t.Helper()
	client := &model.Client{
		UserID:         userID,
		FullName:       "Test Client",
		BrokerageFirms: "[]",
	}
	if err := model.CreateClient(database.DB, client); err != nil {
		t.Fatalf("seeding client: %v", err)
	}
	return client.ID
}

func seedInvestment(t *testing.T, clientID int64, quantity string) int64 {
	t.Helper()
	inv := &model.Investment{
		ClientID:        clientID,
		StockName:       "Test Stock",
		StockSymbol:     "TST",
		AcquisitionDate: time.Now(),
		QuantityLots:    decimal.RequireFromString(quantity),
		AcquisitionCost: decimal.RequireFromString("10"),
	}
	if err := model.CreateInvestment(database.DB, inv); err != nil {
		t.Fatalf("seeding investment: %v", err)
	}
	return inv.ID
}

func testInput(investmentID int64, txType, quantity, price string) TransactionInput {
	q := decimal.RequireFromString(quantity)
	p := decimal.RequireFromString(price)
	return TransactionInput{
		InvestmentID:    investmentID,
		Type:            txType,
		QuantityLots:    q,
		PricePerLot:     p,
		TotalAmount:     q.Mul(p),
		TransactionDate: time.Now(),
	}
}

func quantityOf(t *testing.T, investmentID int64) decimal.Decimal {
	t.Helper()
	q, err := model.GetInvestmentQuantity(database.DB, investmentID)
	if err != nil {
		t.Fatalf("reading investment quantity: %v", err)
	}
	return q
}

func TestCreateTransactionMovesPosition(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	tx, err := svc.CreateTransaction(userID, testInput(invID, "BUY", "10", "25.50"))
	if err != nil {
		t.Fatalf("creating BUY: %v", err)
	}
	if tx.ID == 0 {
		t.Error("expected created transaction to have an ID")
	}
	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("110")) {
		t.Errorf("after BUY 10: quantity = %s, want 110", got)
	}

	if _, err := svc.CreateTransaction(userID, testInput(invID, "SELL", "30", "26")); err != nil {
		t.Fatalf("creating SELL: %v", err)
	}
	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("80")) {
		t.Errorf("after SELL 30: quantity = %s, want 80", got)
	}

	list, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("listing transactions: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("listed %d transactions, want 2", len(list))
	}
}

func TestCreateTransactionInsufficientPosition(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	_, err := svc.CreateTransaction(userID, testInput(invID, "SELL", "150", "26"))
	if !errors.Is(err, position.ErrInsufficientPosition) {
		t.Fatalf("SELL 150 against 100: err = %v, want ErrInsufficientPosition", err)
	}

	// A rejected sell must leave no trace.
	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("quantity = %s, want unchanged 100", got)
	}
	list, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("listing transactions: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("listed %d transactions, want 0", len(list))
	}
}

func TestCreateTransactionRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	tests := []struct {
		name    string
		input   TransactionInput
		wantErr error
	}{
		{"zero quantity", testInput(invID, "BUY", "0", "10"), position.ErrInvalidQuantity},
		{"negative quantity", testInput(invID, "SELL", "-5", "10"), position.ErrInvalidQuantity},
		{"unknown type", testInput(invID, "TRANSFER", "5", "10"), position.ErrInvalidType},
		{"negative price", testInput(invID, "BUY", "5", "-10"), ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateTransaction(userID, tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateTransactionScopedToOwner(t *testing.T) {
	svc := newTestService(t)
	alice := seedUser(t, "alice")
	bob := seedUser(t, "bob")
	invID := seedInvestment(t, seedClient(t, alice), "100")

	if _, err := svc.CreateTransaction(bob, testInput(invID, "BUY", "10", "25")); !errors.Is(err, ErrNotFound) {
		t.Errorf("create against another user's investment: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTransactionReReconciles(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	tx, err := svc.CreateTransaction(userID, testInput(invID, "BUY", "50", "20"))
	if err != nil {
		t.Fatalf("creating BUY: %v", err)
	}

	// Reverse BUY 50 (150 -> 100), then apply SELL 20 (100 -> 80).
	updated, err := svc.UpdateTransaction(userID, tx.ID, testInput(invID, "SELL", "20", "22"))
	if err != nil {
		t.Fatalf("updating transaction: %v", err)
	}
	if updated.Type != "SELL" {
		t.Errorf("updated type = %s, want SELL", updated.Type)
	}
	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("80")) {
		t.Errorf("after update: quantity = %s, want 80", got)
	}
}

func TestUpdateTransactionRejectsOverdraw(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	tx, err := svc.CreateTransaction(userID, testInput(invID, "SELL", "30", "26"))
	if err != nil {
		t.Fatalf("creating SELL: %v", err)
	}

	// Reverse SELL 30 (70 -> 100) then SELL 120 would go negative.
	if _, err := svc.UpdateTransaction(userID, tx.ID, testInput(invID, "SELL", "120", "26")); !errors.Is(err, position.ErrInsufficientPosition) {
		t.Fatalf("err = %v, want ErrInsufficientPosition", err)
	}

	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("70")) {
		t.Errorf("quantity = %s, want unchanged 70", got)
	}
	stored, err := svc.GetTransaction(userID, tx.ID)
	if err != nil {
		t.Fatalf("reloading transaction: %v", err)
	}
	if !stored.QuantityLots.Equal(decimal.RequireFromString("30")) {
		t.Errorf("stored quantity = %s, want unchanged 30", stored.QuantityLots)
	}
}

func TestUpdateTransactionCannotMoveInvestment(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	clientID := seedClient(t, userID)
	invA := seedInvestment(t, clientID, "100")
	invB := seedInvestment(t, clientID, "100")

	tx, err := svc.CreateTransaction(userID, testInput(invA, "BUY", "10", "20"))
	if err != nil {
		t.Fatalf("creating BUY: %v", err)
	}
	if _, err := svc.UpdateTransaction(userID, tx.ID, testInput(invB, "BUY", "10", "20")); !errors.Is(err, ErrInvestmentMismatch) {
		t.Errorf("err = %v, want ErrInvestmentMismatch", err)
	}
}

func TestDeleteTransactionReversesEvent(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	tx, err := svc.CreateTransaction(userID, testInput(invID, "SELL", "30", "26"))
	if err != nil {
		t.Fatalf("creating SELL: %v", err)
	}
	if err := svc.DeleteTransaction(userID, tx.ID); err != nil {
		t.Fatalf("deleting transaction: %v", err)
	}

	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("after delete: quantity = %s, want 100", got)
	}
	if _, err := svc.GetTransaction(userID, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("fetching deleted transaction: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteBuyRejectedWhenPositionSpent(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	buy, err := svc.CreateTransaction(userID, testInput(invID, "BUY", "50", "20"))
	if err != nil {
		t.Fatalf("creating BUY: %v", err)
	}
	if _, err := svc.CreateTransaction(userID, testInput(invID, "SELL", "120", "21")); err != nil {
		t.Fatalf("creating SELL: %v", err)
	}

	// Position is 30; reversing the BUY 50 would leave -20.
	if err := svc.DeleteTransaction(userID, buy.ID); !errors.Is(err, position.ErrInsufficientPosition) {
		t.Fatalf("err = %v, want ErrInsufficientPosition", err)
	}
	if got := quantityOf(t, invID); !got.Equal(decimal.RequireFromString("30")) {
		t.Errorf("quantity = %s, want unchanged 30", got)
	}
}

func TestConcurrentSellsNeverOversell(t *testing.T) {
	svc := newTestService(t)
	userID := seedUser(t, "alice")
	invID := seedInvestment(t, seedClient(t, userID), "100")

	// Two sells of 60 against 100 lots: one must win, one must be rejected.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateTransaction(userID, testInput(invID, "SELL", "60", "26"))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, position.ErrInsufficientPosition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("succeeded=%d rejected=%d, want exactly one of each", succeeded, rejected)
	}

	got := quantityOf(t, invID)
	if got.IsNegative() {
		t.Fatalf("quantity went negative: %s", got)
	}
	if !got.Equal(decimal.RequireFromString("40")) {
		t.Errorf("quantity = %s, want 40", got)
	}
}

package position

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconcileCreate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   Event
		want    string
		wantErr error
	}{
		{"buy adds lots", "0", Create{Buy, d("50")}, "50", nil},
		{"sell subtracts lots", "100", Create{Sell, d("30")}, "70", nil},
		{"sell to exactly zero is accepted", "30", Create{Sell, d("30")}, "0", nil},
		{"sell past zero is rejected", "70", Create{Sell, d("80")}, "", ErrInsufficientPosition},
		{"fractional lots", "0.5", Create{Buy, d("0.25")}, "0.75", nil},
		{"fractional sell to zero boundary", "0.1", Create{Sell, d("0.1")}, "0", nil},
		{"zero quantity rejected", "100", Create{Buy, d("0")}, "", ErrInvalidQuantity},
		{"negative quantity rejected", "100", Create{Sell, d("-5")}, "", ErrInvalidQuantity},
		{"unknown type rejected", "100", Create{Type("TRANSFER"), d("5")}, "", ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(d(tt.current), tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Reconcile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile() unexpected error: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Reconcile() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReconcileDelete(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   Event
		want    string
		wantErr error
	}{
		{"deleting a buy removes its lots", "50", Delete{Buy, d("20")}, "30", nil},
		{"deleting a sell restores its lots", "0", Delete{Sell, d("50")}, "50", nil},
		{"deleting a buy cannot overdraw", "10", Delete{Buy, d("20")}, "", ErrInsufficientPosition},
		{"deleting a buy to exactly zero", "20", Delete{Buy, d("20")}, "0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(d(tt.current), tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Reconcile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile() unexpected error: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Reconcile() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReconcileUpdate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   Event
		want    string
		wantErr error
	}{
		{"grow a buy", "50", Update{Buy, d("20"), Buy, d("35")}, "65", nil},
		{"shrink a buy", "50", Update{Buy, d("20"), Buy, d("5")}, "35", nil},
		{"flip buy to sell", "50", Update{Buy, d("50"), Sell, d("50")}, "", ErrInsufficientPosition},
		{"flip buy to sell with room", "100", Update{Buy, d("20"), Sell, d("30")}, "50", nil},
		{"flip sell to buy restores and adds", "0", Update{Sell, d("10"), Buy, d("10")}, "20", nil},
		{"update to exactly zero", "50", Update{Buy, d("20"), Sell, d("30")}, "0", nil},
		{"zero new quantity rejected", "50", Update{Buy, d("20"), Buy, d("0")}, "", ErrInvalidQuantity},
		{"zero old quantity rejected", "50", Update{Buy, d("0"), Buy, d("20")}, "", ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(d(tt.current), tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Reconcile() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile() unexpected error: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("Reconcile() = %s, want %s", got, tt.want)
			}
		})
	}
}

// A sequence of creates on a fresh investment must land on the sum of the
// signed deltas, and any event that would take the running total negative
// must be rejected at the point it is applied.
func TestReconcileRunningTotal(t *testing.T) {
	events := []struct {
		typ      Type
		quantity string
		rejected bool
	}{
		{Buy, "100", false},
		{Sell, "30", false},  // 70
		{Sell, "80", true},   // would be -10
		{Buy, "10", false},   // 80
		{Sell, "80", false},  // 0
		{Sell, "0.01", true}, // would be -0.01
		{Buy, "0.01", false}, // 0.01
	}

	current := decimal.Zero
	for i, ev := range events {
		next, err := Reconcile(current, Create{ev.typ, d(ev.quantity)})
		if ev.rejected {
			if !errors.Is(err, ErrInsufficientPosition) {
				t.Fatalf("event %d: expected ErrInsufficientPosition, got %v", i, err)
			}
			continue // quantity unchanged, keep going
		}
		if err != nil {
			t.Fatalf("event %d: unexpected error: %v", i, err)
		}
		current = next
	}
	if !current.Equal(d("0.01")) {
		t.Errorf("final quantity = %s, want 0.01", current)
	}
}

// Delete(t, q) applied after Create(t, q) must restore the starting quantity
// exactly.
func TestDeleteInvertsCreate(t *testing.T) {
	starts := []string{"0", "1", "100", "0.3333"}
	events := []struct {
		typ      Type
		quantity string
	}{
		{Buy, "25"},
		{Sell, "0.0001"},
		{Buy, "1000000.5"},
	}
	for _, start := range starts {
		for _, ev := range events {
			q0 := d(start)
			afterCreate, err := Reconcile(q0, Create{ev.typ, d(ev.quantity)})
			if err != nil {
				// SELL larger than the starting quantity; nothing to invert.
				continue
			}
			afterDelete, err := Reconcile(afterCreate, Delete{ev.typ, d(ev.quantity)})
			if err != nil {
				t.Fatalf("delete after create(%s %s) from %s: %v", ev.typ, ev.quantity, start, err)
			}
			if !afterDelete.Equal(q0) {
				t.Errorf("delete after create(%s %s) from %s = %s, want %s",
					ev.typ, ev.quantity, start, afterDelete, start)
			}
		}
	}
}

// An update is algebraically a delete of the old transaction followed by a
// create of the new one.
func TestUpdateEqualsDeleteThenCreate(t *testing.T) {
	cases := []struct {
		current          string
		oldType, newType Type
		oldQ, newQ       string
	}{
		{"100", Buy, Buy, "20", "35"},
		{"100", Buy, Sell, "20", "30"},
		{"50", Sell, Buy, "10", "10"},
		{"0", Sell, Sell, "10", "5"},
	}
	for _, c := range cases {
		direct, errDirect := Reconcile(d(c.current), Update{c.oldType, d(c.oldQ), c.newType, d(c.newQ)})

		intermediate, err := Reconcile(d(c.current), Delete{c.oldType, d(c.oldQ)})
		var twoStep decimal.Decimal
		var errTwoStep error
		if err != nil {
			errTwoStep = err
		} else {
			twoStep, errTwoStep = Reconcile(intermediate, Create{c.newType, d(c.newQ)})
		}

		if (errDirect == nil) != (errTwoStep == nil) {
			t.Fatalf("update(%+v) from %s: direct err %v, two-step err %v", c, c.current, errDirect, errTwoStep)
		}
		if errDirect == nil && !direct.Equal(twoStep) {
			t.Errorf("update(%+v) from %s: direct %s != two-step %s", c, c.current, direct, twoStep)
		}
	}
}

// Flipping a transaction's type replays both legs against the running
// quantity: reversing the BUY 50 empties the position, so the SELL 50
// has nothing left to sell (50 - 50 - 50 = -50) and must be rejected.
func TestBuyFlipToSellRejected(t *testing.T) {
	q, err := Reconcile(decimal.Zero, Create{Buy, d("50")})
	if err != nil {
		t.Fatalf("create BUY 50: %v", err)
	}
	if !q.Equal(d("50")) {
		t.Fatalf("after create, quantity = %s, want 50", q)
	}

	_, err = Reconcile(q, Update{Buy, d("50"), Sell, d("50")})
	if !errors.Is(err, ErrInsufficientPosition) {
		t.Fatalf("update BUY 50 -> SELL 50 from 50: err = %v, want ErrInsufficientPosition", err)
	}

	// The rejected update leaves the position untouched; deleting the
	// original BUY drains it back to zero.
	q, err = Reconcile(q, Delete{Buy, d("50")})
	if err != nil {
		t.Fatalf("delete BUY 50: %v", err)
	}
	if !q.Equal(decimal.Zero) {
		t.Fatalf("after delete, quantity = %s, want 0", q)
	}
}

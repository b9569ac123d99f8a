package wallet

import (
	"math/rand"
	"testing"

	"crowdship-platform/internal/platform"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCommissionSplitScenario(t *testing.T) {
	cfg := platform.Snapshot{CommissionPercentage: dec("5")}

	traveler, commission := CommissionSplit(cfg, dec("30"))
	if !traveler.Equal(dec("28.50")) {
		t.Fatalf("traveler amount = %s, want 28.50", traveler)
	}
	if !commission.Equal(dec("1.50")) {
		t.Fatalf("commission = %s, want 1.50", commission)
	}
}

func TestCommissionSplitRoundsHalfUp(t *testing.T) {
	// 10.01 * 2.5% = 0.250250 -> 0.25; 10.20 * 2.5% = 0.255 -> 0.26
	cfg := platform.Snapshot{CommissionPercentage: dec("2.5")}

	_, c1 := CommissionSplit(cfg, dec("10.01"))
	if !c1.Equal(dec("0.25")) {
		t.Fatalf("commission = %s, want 0.25", c1)
	}
	_, c2 := CommissionSplit(cfg, dec("10.20"))
	if !c2.Equal(dec("0.26")) {
		t.Fatalf("commission = %s, want 0.26", c2)
	}
}

func TestCommissionSplitIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		// Amounts in minor units up to 1,000,000.00; percentages 0..30 with
		// two decimals.
		amount := decimal.NewFromInt(rng.Int63n(100_000_000)).Div(dec("100"))
		pct := decimal.NewFromInt(rng.Int63n(3000)).Div(dec("100"))
		cfg := platform.Snapshot{CommissionPercentage: pct}

		traveler, commission := CommissionSplit(cfg, amount)

		if !traveler.Add(commission).Equal(amount) {
			t.Fatalf("split of %s at %s%% does not recompose: %s + %s", amount, pct, traveler, commission)
		}
		if commission.IsNegative() {
			t.Fatalf("negative commission %s for %s at %s%%", commission, amount, pct)
		}
		if !commission.Equal(commission.Round(2)) {
			t.Fatalf("commission %s not at minor-unit precision", commission)
		}
		if traveler.GreaterThan(amount) {
			t.Fatalf("traveler %s exceeds locked %s", traveler, amount)
		}
	}
}

func TestSufficientForRequest(t *testing.T) {
	cfg := platform.Snapshot{MinBalanceForPackageRequest: dec("10")}

	w := Wallet{Balance: dec("100")}
	if !SufficientForRequest(w, cfg, dec("30")) {
		t.Fatalf("balance 100 should cover fee 10 + price 30")
	}
	if !SufficientForRequest(w, cfg, dec("90")) {
		t.Fatalf("balance 100 should cover fee 10 + price 90 exactly")
	}
	if SufficientForRequest(w, cfg, dec("90.01")) {
		t.Fatalf("balance 100 must not cover fee 10 + price 90.01")
	}
}

func TestSufficientForListing(t *testing.T) {
	cfg := platform.Snapshot{MinBalanceForTravelListing: dec("10")}

	if SufficientForListing(Wallet{Balance: dec("5")}, cfg) {
		t.Fatalf("balance 5 must not cover fee 10")
	}
	if !SufficientForListing(Wallet{Balance: dec("10")}, cfg) {
		t.Fatalf("balance 10 should cover fee 10")
	}
}

func TestAmountWithinBounds(t *testing.T) {
	cfg := platform.Snapshot{
		MinDeposit:    dec("10"),
		MaxDeposit:    dec("5000"),
		MinWithdrawal: dec("25"),
		// MaxWithdrawal zero: unbounded.
	}

	cases := []struct {
		name   string
		check  func(decimal.Decimal) bool
		amount string
		want   bool
	}{
		{"deposit below min", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "9.99", false},
		{"deposit at min", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "10", true},
		{"deposit at max", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "5000", true},
		{"deposit above max", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "5000.01", false},
		{"deposit zero", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "0", false},
		{"deposit negative", func(a decimal.Decimal) bool { return AmountWithinDepositBounds(cfg, a) }, "-5", false},
		{"withdrawal unbounded max", func(a decimal.Decimal) bool { return AmountWithinWithdrawalBounds(cfg, a) }, "999999", true},
		{"withdrawal below min", func(a decimal.Decimal) bool { return AmountWithinWithdrawalBounds(cfg, a) }, "24.99", false},
	}
	for _, tc := range cases {
		if got := tc.check(dec(tc.amount)); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

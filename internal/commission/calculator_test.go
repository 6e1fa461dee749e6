package commission

import (
	"testing"

	"github.com/shopspring/decimal"
)

func cents(v int64) *int64 {
	return &v
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		amount     *int64
		percentage string
		want       int64
	}{
		{
			// договор на 100 000 руб. при ставке агента 3% даёт 3 000 руб.
			name:       "contract one hundred thousand at three percent",
			amount:     cents(10000000),
			percentage: "3",
			want:       300000,
		},
		{
			name:       "referral half percent",
			amount:     cents(10000000),
			percentage: "0.5",
			want:       50000,
		},
		{
			name:       "rounds half up to a kopeck",
			amount:     cents(101),
			percentage: "0.5",
			want:       1, // 0.505 копейки
		},
		{
			name:       "rounds down below half",
			amount:     cents(99),
			percentage: "0.5",
			want:       0, // 0.495 копейки
		},
		{
			name:       "nil amount",
			amount:     nil,
			percentage: "10",
			want:       0,
		},
		{
			name:       "zero amount",
			amount:     cents(0),
			percentage: "10",
			want:       0,
		},
		{
			name:       "negative amount",
			amount:     cents(-500),
			percentage: "10",
			want:       0,
		},
		{
			name:       "negative percentage is zero commission",
			amount:     cents(10000),
			percentage: "-1",
			want:       0,
		},
		{
			name:       "percentage above hundred is zero commission",
			amount:     cents(10000),
			percentage: "100.01",
			want:       0,
		},
		{
			name:       "full hundred percent",
			amount:     cents(10000),
			percentage: "100",
			want:       10000,
		},
		{
			name:       "zero percentage",
			amount:     cents(10000),
			percentage: "0",
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pct, err := decimal.NewFromString(tt.percentage)
			if err != nil {
				t.Fatalf("parse percentage: %v", err)
			}

			got := Calculate(tt.amount, pct)
			if got != tt.want {
				t.Fatalf("Calculate(%v, %s) = %d, want %d", tt.amount, tt.percentage, got, tt.want)
			}
		})
	}
}

func TestCalculateDeterministic(t *testing.T) {
	pct := decimal.NewFromFloat(7.25)
	a := Calculate(cents(123456789), pct)
	b := Calculate(cents(123456789), pct)
	if a != b {
		t.Fatalf("Calculate must be deterministic, got %d and %d", a, b)
	}
}

func TestCalculateFromPercent(t *testing.T) {
	got := CalculateFromPercent(cents(10000000), 3)
	if got != 300000 {
		t.Fatalf("CalculateFromPercent = %d, want 300000", got)
	}
}

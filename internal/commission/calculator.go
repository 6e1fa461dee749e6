// Package commission содержит расчёт комиссионного вознаграждения.
package commission

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ReferralPercentage — фиксированный процент реферальной программы.
var ReferralPercentage = decimal.NewFromFloat(0.5)

// Calculate возвращает комиссию в копейках: сумма сделки, умноженная на
// процент, с округлением до копейки (половина вверх). Для отсутствующей
// или неположительной суммы, а также процента вне диапазона [0, 100],
// возвращает 0 — такие входы считаются нулевой комиссией, а не ошибкой.
func Calculate(amountCents *int64, percentage decimal.Decimal) int64 {
	if amountCents == nil || *amountCents <= 0 {
		return 0
	}
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return 0
	}

	return decimal.NewFromInt(*amountCents).
		Mul(percentage).
		Div(hundred).
		Round(0).
		IntPart()
}

// CalculateFromPercent — вспомогательная форма Calculate для процента,
// хранящегося как float64.
func CalculateFromPercent(amountCents *int64, percentage float64) int64 {
	return Calculate(amountCents, decimal.NewFromFloat(percentage))
}

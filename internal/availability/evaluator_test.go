package availability

import (
	"testing"
	"time"

	"github.com/ametelin/bonus-system/internal/model"
)

func contractDeal(status string, payment model.PartnerPaymentStatus, active bool) model.Deal {
	return model.Deal{
		ID:                   1,
		Kind:                 model.DealKindContract,
		Status:               status,
		PartnerPaymentStatus: payment,
		IsActive:             active,
	}
}

func orderDeal(status string, active bool) model.Deal {
	return model.Deal{
		ID:       2,
		Kind:     model.DealKindOrder,
		Status:   status,
		IsActive: active,
	}
}

func TestShouldBeAvailable_Contract(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		deal model.Deal
		want bool
	}{
		{
			name: "completed and paid and active",
			deal: contractDeal(model.ContractStatusCompleted, model.PartnerPaymentPaid, true),
			want: true,
		},
		{
			name: "completed but partner not paid",
			deal: contractDeal(model.ContractStatusCompleted, model.PartnerPaymentPending, true),
			want: false,
		},
		{
			name: "paid but not completed",
			deal: contractDeal(model.ContractStatusInWork, model.PartnerPaymentPaid, true),
			want: false,
		},
		{
			name: "completed and paid but inactive",
			deal: contractDeal(model.ContractStatusCompleted, model.PartnerPaymentPaid, false),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.ShouldBeAvailable(tt.deal); got != tt.want {
				t.Fatalf("ShouldBeAvailable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldBeAvailable_Order(t *testing.T) {
	e := NewEvaluator()

	// Для заказов оплата партнёра не проверяется: достаточно доставки
	// и активности.
	deal := orderDeal(model.OrderStatusDelivered, true)
	deal.PartnerPaymentStatus = model.PartnerPaymentPending
	if !e.ShouldBeAvailable(deal) {
		t.Fatalf("delivered active order must be available regardless of partner payment")
	}

	if e.ShouldBeAvailable(orderDeal(model.OrderStatusInWork, true)) {
		t.Fatalf("undelivered order must not be available")
	}

	if e.ShouldBeAvailable(orderDeal(model.OrderStatusDelivered, false)) {
		t.Fatalf("inactive order must not be available")
	}
}

func TestPlan_SetsAndClears(t *testing.T) {
	e := NewEvaluator()
	now := time.Now()
	earlier := now.Add(-time.Hour)

	bonuses := []model.Bonus{
		{ID: 1},                          // получит отметку
		{ID: 2, AvailableAt: &earlier},   // уже отмечен, изменений нет
		{ID: 3, AvailableAt: &earlier, PaidAt: &earlier}, // выплачен, не трогаем
	}

	changes := e.Plan(bonuses, orderDeal(model.OrderStatusDelivered, true), now)
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(changes))
	}
	if changes[0].BonusID != 1 || changes[0].AvailableAt == nil {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestPlan_RegressionClearsAvailability(t *testing.T) {
	e := NewEvaluator()
	now := time.Now()
	earlier := now.Add(-time.Hour)

	bonuses := []model.Bonus{
		{ID: 1, AvailableAt: &earlier},
		{ID: 2, AvailableAt: &earlier, PaidAt: &earlier},
	}

	// Сделка деактивирована: условие регрессировало.
	changes := e.Plan(bonuses, orderDeal(model.OrderStatusDelivered, false), now)
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(changes))
	}
	if changes[0].BonusID != 1 || changes[0].AvailableAt != nil {
		t.Fatalf("expected cleared availability for bonus 1, got %+v", changes[0])
	}
}

func TestPlan_NoChangesWhenStateMatches(t *testing.T) {
	e := NewEvaluator()
	now := time.Now()

	bonuses := []model.Bonus{{ID: 1}, {ID: 2}}

	changes := e.Plan(bonuses, contractDeal(model.ContractStatusCompleted, model.PartnerPaymentPending, true), now)
	if len(changes) != 0 {
		t.Fatalf("changes = %d, want 0", len(changes))
	}
}

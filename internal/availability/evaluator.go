// Package availability реализует правила открытия бонусов к выплате.
package availability

import (
	"time"

	"github.com/ametelin/bonus-system/internal/model"
)

// Evaluator вычисляет признак доступности бонусов к выплате по состоянию сделки.
type Evaluator struct{}

// NewEvaluator создаёт новый вычислитель доступности.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// ShouldBeAvailable сообщает, открыта ли выплата бонусов по сделке.
// Для договора требуется статус "completed", оплата партнёра и активность.
// Для заказа — только статус "delivered" и активность: оплата партнёра
// для заказов намеренно не проверяется.
func (e *Evaluator) ShouldBeAvailable(deal model.Deal) bool {
	if !deal.IsActive {
		return false
	}

	switch deal.Kind {
	case model.DealKindContract:
		return deal.Status == model.ContractStatusCompleted &&
			deal.PartnerPaymentStatus == model.PartnerPaymentPaid
	case model.DealKindOrder:
		return deal.Status == model.OrderStatusDelivered
	default:
		return false
	}
}

// Change описывает одно изменение поля available_at бонуса.
type Change struct {
	BonusID     int64
	AvailableAt *time.Time
}

// Plan возвращает набор изменений available_at для всех бонусов сделки.
// Бонусы с установленным paid_at не пересматриваются. Если условия
// выполняются, а отметка отсутствует — она ставится; если условия
// перестали выполняться — отметка снимается.
func (e *Evaluator) Plan(bonuses []model.Bonus, deal model.Deal, now time.Time) []Change {
	available := e.ShouldBeAvailable(deal)

	var changes []Change
	for _, b := range bonuses {
		if b.PaidAt != nil {
			continue
		}

		switch {
		case available && b.AvailableAt == nil:
			at := now
			changes = append(changes, Change{BonusID: b.ID, AvailableAt: &at})
		case !available && b.AvailableAt != nil:
			changes = append(changes, Change{BonusID: b.ID, AvailableAt: nil})
		}
	}

	return changes
}

// Package settlement реализует погашение бонусов заявками на выплату:
// распределение суммы заявки по очереди бонусов и планы разделения
// и обратного слияния бонусных записей.
package settlement

import (
	"errors"
	"time"

	"github.com/ametelin/bonus-system/internal/model"
)

// ErrNotCovered возвращается, когда доступных бонусов не хватает
// для покрытия суммы заявки.
var ErrNotCovered = errors.New("available bonuses do not cover requested amount")

// LinkPlan описывает намерение покрыть часть суммы заявки одним бонусом.
type LinkPlan struct {
	BonusID      int64
	CoveredCents int64
}

// PlanLinks распределяет сумму заявки по бонусам в порядке их начисления:
// каждый бонус покрывает min(своя сумма, остаток), пока остаток не станет
// нулевым. Бонусы на этом шаге не изменяются — фиксируется только намерение.
// Список должен быть отсортирован по accrued_at по возрастанию.
func PlanLinks(available []model.Bonus, amountCents int64) ([]LinkPlan, error) {
	remaining := amountCents

	var links []LinkPlan
	for _, b := range available {
		if remaining == 0 {
			break
		}

		covered := b.AmountCents
		if covered > remaining {
			covered = remaining
		}
		if covered <= 0 {
			continue
		}

		links = append(links, LinkPlan{BonusID: b.ID, CoveredCents: covered})
		remaining -= covered
	}

	if remaining > 0 {
		return nil, ErrNotCovered
	}

	return links, nil
}

// SettlePlan описывает изменения одного бонуса при погашении.
// Если покрытие частичное, Remainder содержит новую бонусную запись
// с непокрытой частью: она наследует accrued_at и available_at оригинала
// и возвращается в очередь на прежней позиции.
type SettlePlan struct {
	BonusID     int64
	AmountCents int64
	PaidAt      time.Time
	Remainder   *model.Bonus
}

// PlanSettle строит план погашения одного бонуса на указанную сумму.
// Полное покрытие только ставит paid_at. Частичное покрытие уменьшает
// сумму оригинала до покрытой части и порождает запись-остаток.
func PlanSettle(bonus model.Bonus, coveredCents int64, now time.Time) SettlePlan {
	plan := SettlePlan{
		BonusID:     bonus.ID,
		AmountCents: bonus.AmountCents,
		PaidAt:      now,
	}

	if coveredCents >= bonus.AmountCents {
		return plan
	}

	remainder := bonus
	remainder.ID = 0
	remainder.AmountCents = bonus.AmountCents - coveredCents
	remainder.PaidAt = nil

	plan.AmountCents = coveredCents
	plan.Remainder = &remainder

	return plan
}

// MatchRemainder находит среди кандидатов запись-остаток, созданную при
// частичном погашении оригинала: тот же получатель, та же сделка, те же
// accrued_at, роль и referral_user_id, без paid_at и созданную позже
// оригинала. Возвращает nil, если остатка нет (бонус был покрыт целиком).
func MatchRemainder(original model.Bonus, candidates []model.Bonus) *model.Bonus {
	for i, c := range candidates {
		if c.ID == original.ID || c.PaidAt != nil {
			continue
		}
		if c.UserID != original.UserID || c.Role != original.Role {
			continue
		}
		if !c.SameDealRef(original) {
			continue
		}
		if !c.AccruedAt.Equal(original.AccruedAt) {
			continue
		}
		if !sameReferralUser(c.ReferralUserID, original.ReferralUserID) {
			continue
		}
		if !c.CreatedAt.After(original.CreatedAt) {
			continue
		}
		return &candidates[i]
	}
	return nil
}

func sameReferralUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Package referral реализует реферальное расширение бонусной программы.
package referral

import (
	"time"

	"github.com/ametelin/bonus-system/internal/commission"
	"github.com/ametelin/bonus-system/internal/model"
)

// ProgramWindow — срок действия реферальной программы с момента
// регистрации агента.
const ProgramWindow = 2 // years

// Extension планирует реферальные бонусы по сделкам агентов.
type Extension struct{}

// NewExtension создаёт реферальное расширение.
func NewExtension() *Extension {
	return &Extension{}
}

// WindowOpen сообщает, действует ли ещё реферальная программа для агента.
// Отсчёт ведётся от даты регистрации агента, а не от даты сделки.
func (e *Extension) WindowOpen(agent model.User, now time.Time) bool {
	return now.Before(agent.RegisteredAt.AddDate(ProgramWindow, 0, 0))
}

// PlanReferralBonus строит бонус реферера по сделке агента. Возвращает nil,
// если программа для агента истекла или сделка не проходит предусловия:
// сделка должна быть активна с заполненной суммой, причём для заказов
// сумма должна быть строго положительной, а для договоров допускается ноль.
// Все отказы — молчаливые, они не мешают созданию основных бонусов.
func (e *Extension) PlanReferralBonus(deal model.Deal, agent model.User, referrerID int64, now time.Time) *model.Bonus {
	if !e.WindowOpen(agent, now) {
		return nil
	}
	if !deal.IsActive || deal.AmountCents == nil {
		return nil
	}
	if deal.Kind == model.DealKindOrder && *deal.AmountCents <= 0 {
		return nil
	}

	var bonus model.Bonus
	if deal.Kind == model.DealKindOrder {
		bonus = model.NewOrderBonus(referrerID, deal.ID, model.BonusRoleReferrer)
	} else {
		bonus = model.NewContractBonus(referrerID, deal.ID, model.BonusRoleReferrer)
	}

	agentID := agent.ID
	bonus.ReferralUserID = &agentID
	bonus.Percentage, _ = commission.ReferralPercentage.Float64()
	bonus.AmountCents = commission.Calculate(deal.AmountCents, commission.ReferralPercentage)
	bonus.AccruedAt = now

	return &bonus
}

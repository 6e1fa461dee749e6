// Package ledger ведёт бонусные записи в соответствии с жизненным циклом сделок.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ametelin/bonus-system/internal/commission"
	"github.com/ametelin/bonus-system/internal/model"
)

// Ledger планирует создание и пересчёт бонусов по сделкам.
type Ledger struct{}

// NewLedger создаёт новый реестр бонусов.
func NewLedger() *Ledger {
	return &Ledger{}
}

// PlanDealBonuses строит бонусы агента и куратора для сделки.
// Возвращает nil без ошибки, если сделка неактивна, сумма не заполнена
// или агент не передан: отсутствие бонуса в этих случаях — штатное
// поведение, а не сбой. Нулевая сумма активной сделки — валидный вход,
// по ней создаётся запись с нулевой комиссией.
func (l *Ledger) PlanDealBonuses(deal model.Deal, agentID int64, curatorID *int64, now time.Time) []model.Bonus {
	if !deal.IsActive || deal.AmountCents == nil || agentID == 0 {
		return nil
	}

	agent := newDealBonus(deal, agentID, model.BonusRoleAgent)
	agent.Percentage = deal.AgentPercentage
	agent.AmountCents = commission.CalculateFromPercent(deal.AmountCents, deal.AgentPercentage)
	agent.AccruedAt = now

	bonuses := []model.Bonus{agent}

	if curatorID != nil {
		curator := newDealBonus(deal, *curatorID, model.BonusRoleCurator)
		curator.Percentage = deal.CuratorPercentage
		curator.AmountCents = commission.CalculateFromPercent(deal.AmountCents, deal.CuratorPercentage)
		curator.AccruedAt = now
		bonuses = append(bonuses, curator)
	}

	return bonuses
}

// Recalculate возвращает бонус с суммой и процентом, пересчитанными по
// текущему состоянию сделки. Деактивированная сделка обнуляет сумму, не
// удаляя запись. Уже выплаченные бонусы не пересчитываются. Повторный
// вызов при неизменной сделке записывает те же значения.
func (l *Ledger) Recalculate(bonus model.Bonus, deal model.Deal) model.Bonus {
	if bonus.PaidAt != nil {
		return bonus
	}

	if !deal.IsActive {
		bonus.AmountCents = 0
		return bonus
	}

	pct := dealPercentage(deal, bonus.Role)
	bonus.Percentage = pctFloat(pct)
	bonus.AmountCents = commission.Calculate(deal.AmountCents, pct)

	return bonus
}

func newDealBonus(deal model.Deal, userID int64, role model.BonusRole) model.Bonus {
	if deal.Kind == model.DealKindOrder {
		return model.NewOrderBonus(userID, deal.ID, role)
	}
	return model.NewContractBonus(userID, deal.ID, role)
}

func dealPercentage(deal model.Deal, role model.BonusRole) decimal.Decimal {
	switch role {
	case model.BonusRoleCurator:
		return decimal.NewFromFloat(deal.CuratorPercentage)
	case model.BonusRoleReferrer:
		return commission.ReferralPercentage
	default:
		return decimal.NewFromFloat(deal.AgentPercentage)
	}
}

func pctFloat(pct decimal.Decimal) float64 {
	f, _ := pct.Float64()
	return f
}

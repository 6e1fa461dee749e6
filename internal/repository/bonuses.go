package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ametelin/bonus-system/internal/availability"
	"github.com/ametelin/bonus-system/internal/model"
)

// ErrInvalidDealRef возвращается при попытке сохранить бонус,
// нарушающий инвариант "ровно одна ссылка на сделку".
var ErrInvalidDealRef = errors.New("bonus must reference exactly one deal")

const (
	bonusColumns          = `id, user_id, contract_id, order_id, amount_cents, percentage, role, referral_user_id, accrued_at, available_at, paid_at, created_at`
	qualifiedBonusColumns = `b.id, b.user_id, b.contract_id, b.order_id, b.amount_cents, b.percentage, b.role, b.referral_user_id, b.accrued_at, b.available_at, b.paid_at, b.created_at`
)

// Условие доступности бонуса к выплате, вычисляемое по текущему состоянию
// сделки: для договора — статус "completed" и оплата партнёра, для заказа —
// только статус "delivered". Выплаченные и нулевые бонусы исключаются.
const availableBonusFilter = `
	b.paid_at IS NULL
	AND b.amount_cents > 0
	AND d.is_active
	AND ((d.kind = 'contract' AND d.status = 'completed' AND d.partner_payment_status = 'paid')
	  OR (d.kind = 'order' AND d.status = 'delivered'))`

// InsertBonuses сохраняет набор бонусов одной транзакцией: либо создаются
// все записи (агент, куратор, реферер), либо ни одной.
func (r *PostgresRepository) InsertBonuses(ctx context.Context, bonuses []model.Bonus) error {
	if len(bonuses) == 0 {
		return nil
	}

	for _, b := range bonuses {
		if !b.DealRefValid() {
			return ErrInvalidDealRef
		}
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, b := range bonuses {
			_, err := tx.Exec(ctx,
				`INSERT INTO bonuses (user_id, contract_id, order_id, amount_cents, percentage, role, referral_user_id, accrued_at, available_at, paid_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				b.UserID, b.ContractID, b.OrderID, b.AmountCents, b.Percentage,
				string(b.Role), b.ReferralUserID, b.AccruedAt, b.AvailableAt, b.PaidAt,
			)
			if err != nil {
				return fmt.Errorf("insert bonus: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetBonusesByDeal возвращает все бонусы, привязанные к сделке.
func (r *PostgresRepository) GetBonusesByDeal(ctx context.Context, deal model.Deal) ([]model.Bonus, error) {
	column := "contract_id"
	if deal.Kind == model.DealKindOrder {
		column = "order_id"
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE `+column+` = $1 ORDER BY id`,
		deal.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select deal bonuses: %w", err)
	}
	defer rows.Close()

	return scanBonuses(rows)
}

// UpdateBonusCalculations записывает пересчитанные суммы и проценты бонусов
// одной транзакцией.
func (r *PostgresRepository) UpdateBonusCalculations(ctx context.Context, bonuses []model.Bonus) error {
	if len(bonuses) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, b := range bonuses {
			_, err := tx.Exec(ctx,
				`UPDATE bonuses SET amount_cents = $2, percentage = $3 WHERE id = $1 AND paid_at IS NULL`,
				b.ID, b.AmountCents, b.Percentage,
			)
			if err != nil {
				return fmt.Errorf("update bonus: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// ApplyAvailabilityChanges применяет изменения отметок available_at одной
// транзакцией. Выплаченные бонусы не затрагиваются.
func (r *PostgresRepository) ApplyAvailabilityChanges(ctx context.Context, changes []availability.Change) error {
	if len(changes) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, c := range changes {
			_, err := tx.Exec(ctx,
				`UPDATE bonuses SET available_at = $2 WHERE id = $1 AND paid_at IS NULL`,
				c.BonusID, c.AvailableAt,
			)
			if err != nil {
				return fmt.Errorf("update availability: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetAvailableBonuses возвращает бонусы получателя, доступные к выплате,
// в порядке начисления (старые первыми).
func (r *PostgresRepository) GetAvailableBonuses(ctx context.Context, userID int64) ([]model.Bonus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+qualifiedBonusColumns+`
		 FROM bonuses b
		 JOIN deals d ON d.id = COALESCE(b.contract_id, b.order_id)
		 WHERE b.user_id = $1 AND `+availableBonusFilter+`
		 ORDER BY b.accrued_at, b.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select available bonuses: %w", err)
	}
	defer rows.Close()

	return scanBonuses(rows)
}

// GetBalance возвращает доступный к выплате баланс и сумму выплаченных
// бонусов получателя в копейках.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	var available int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(b.amount_cents), 0)
		 FROM bonuses b
		 JOIN deals d ON d.id = COALESCE(b.contract_id, b.order_id)
		 WHERE b.user_id = $1 AND `+availableBonusFilter,
		userID,
	).Scan(&available)
	if err != nil {
		return 0, 0, fmt.Errorf("sum available bonuses: %w", err)
	}

	var paid int64
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM bonuses WHERE user_id = $1 AND paid_at IS NOT NULL`,
		userID,
	).Scan(&paid)
	if err != nil {
		return 0, 0, fmt.Errorf("sum paid bonuses: %w", err)
	}

	return available, paid, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanBonuses(rows rowScanner) ([]model.Bonus, error) {
	var res []model.Bonus
	for rows.Next() {
		var (
			b    model.Bonus
			role string
		)
		err := rows.Scan(&b.ID, &b.UserID, &b.ContractID, &b.OrderID,
			&b.AmountCents, &b.Percentage, &role, &b.ReferralUserID,
			&b.AccruedAt, &b.AvailableAt, &b.PaidAt, &b.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan bonus: %w", err)
		}
		b.Role = model.BonusRole(role)
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

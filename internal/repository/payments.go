package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ametelin/bonus-system/internal/model"
	"github.com/ametelin/bonus-system/internal/settlement"
)

// CreatePaymentRequestWithLinks создаёт заявку на выплату и привязывает к ней
// доступные бонусы получателя в порядке начисления. Строка пользователя
// блокируется на время транзакции, чтобы две одновременные заявки не могли
// израсходовать одни и те же бонусы.
func (r *PostgresRepository) CreatePaymentRequestWithLinks(ctx context.Context, userID, amountCents int64, method, reference string) (*model.PaymentRequest, error) {
	var req *model.PaymentRequest

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Сериализация заявок одного получателя.
		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		available, err := r.availableBonusesTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		links, err := settlement.PlanLinks(available, amountCents)
		if err != nil {
			if errors.Is(err, settlement.ErrNotCovered) {
				return ErrInsufficientBalance
			}
			return err
		}

		var created model.PaymentRequest
		created.UserID = userID
		created.AmountCents = amountCents
		created.Method = method
		created.Reference = reference
		created.Status = model.RequestStatusRequested

		err = tx.QueryRow(ctx,
			`INSERT INTO payment_requests (reference, user_id, amount_cents, method, status)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
			reference, userID, amountCents, method, string(model.RequestStatusRequested),
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payment request: %w", err)
		}

		for _, l := range links {
			_, err := tx.Exec(ctx,
				`INSERT INTO settlement_links (request_id, bonus_id, covered_cents) VALUES ($1, $2, $3)`,
				created.ID, l.BonusID, l.CoveredCents,
			)
			if err != nil {
				return fmt.Errorf("insert settlement link: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		req = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (r *PostgresRepository) availableBonusesTx(ctx context.Context, tx pgx.Tx, userID int64) ([]model.Bonus, error) {
	rows, err := tx.Query(ctx,
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

// GetPaymentRequestsByUser возвращает заявки получателя, новые первыми.
func (r *PostgresRepository) GetPaymentRequestsByUser(ctx context.Context, userID int64) ([]model.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reference, user_id, amount_cents, method, status, paid_at, created_at
		 FROM payment_requests
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment requests: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentRequest
	for rows.Next() {
		var (
			p      model.PaymentRequest
			status string
		)
		if err := rows.Scan(&p.ID, &p.Reference, &p.UserID, &p.AmountCents, &p.Method, &status, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		p.Status = model.RequestStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdatePaymentRequestStatus переводит заявку в новый статус. Переход в
// "paid" погашает привязанные бонусы, переход из "paid" откатывает
// погашение; всё происходит в одной транзакции. Повторный перевод в тот же
// статус — запрет на двойное погашение — завершается без изменений.
func (r *PostgresRepository) UpdatePaymentRequestStatus(ctx context.Context, requestID int64, newStatus model.RequestStatus) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID  int64
			current string
		)
		err = tx.QueryRow(ctx,
			`SELECT user_id, status FROM payment_requests WHERE id = $1 FOR UPDATE`,
			requestID,
		).Scan(&userID, &current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock payment request: %w", err)
		}

		if model.RequestStatus(current) == newStatus {
			return tx.Commit(ctx)
		}

		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy); err != nil {
			return fmt.Errorf("lock user for update: %w", err)
		}

		now := time.Now()

		switch {
		case newStatus == model.RequestStatusPaid:
			if err := r.settleRequest(ctx, tx, requestID, now); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE payment_requests SET status = $2, paid_at = $3 WHERE id = $1`,
				requestID, string(newStatus), now,
			)
		case model.RequestStatus(current) == model.RequestStatusPaid:
			if err := r.rollbackRequest(ctx, tx, requestID); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE payment_requests SET status = $2, paid_at = NULL WHERE id = $1`,
				requestID, string(newStatus),
			)
		default:
			_, err = tx.Exec(ctx,
				`UPDATE payment_requests SET status = $2 WHERE id = $1`,
				requestID, string(newStatus),
			)
		}
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// settleRequest погашает бонусы по привязкам заявки. Частично покрытый
// бонус разделяется: непокрытая часть возвращается в очередь отдельной
// записью с исходным accrued_at.
func (r *PostgresRepository) settleRequest(ctx context.Context, tx pgx.Tx, requestID int64, now time.Time) error {
	links, err := r.requestLinks(ctx, tx, requestID)
	if err != nil {
		return err
	}

	for _, l := range links {
		bonus, err := r.bonusForUpdate(ctx, tx, l.BonusID)
		if err != nil {
			return err
		}

		plan := settlement.PlanSettle(*bonus, l.CoveredCents, now)

		if plan.Remainder != nil {
			rem := plan.Remainder
			_, err := tx.Exec(ctx,
				`INSERT INTO bonuses (user_id, contract_id, order_id, amount_cents, percentage, role, referral_user_id, accrued_at, available_at, paid_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`,
				rem.UserID, rem.ContractID, rem.OrderID, rem.AmountCents, rem.Percentage,
				string(rem.Role), rem.ReferralUserID, rem.AccruedAt, rem.AvailableAt,
			)
			if err != nil {
				return fmt.Errorf("insert remainder bonus: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE bonuses SET amount_cents = $2, paid_at = $3 WHERE id = $1`,
			plan.BonusID, plan.AmountCents, plan.PaidAt,
		)
		if err != nil {
			return fmt.Errorf("settle bonus: %w", err)
		}
	}

	return nil
}

// rollbackRequest восстанавливает бонусы после отмены выплаты: остаток,
// созданный при разделении, вливается обратно в оригинал и удаляется, а
// отметка paid_at снимается.
func (r *PostgresRepository) rollbackRequest(ctx context.Context, tx pgx.Tx, requestID int64) error {
	links, err := r.requestLinks(ctx, tx, requestID)
	if err != nil {
		return err
	}

	for _, l := range links {
		bonus, err := r.bonusForUpdate(ctx, tx, l.BonusID)
		if err != nil {
			return err
		}

		candidates, err := r.dealBonusesForUpdate(ctx, tx, *bonus)
		if err != nil {
			return err
		}

		remainder := settlement.MatchRemainder(*bonus, candidates)
		if remainder == nil {
			_, err := tx.Exec(ctx,
				`UPDATE bonuses SET paid_at = NULL WHERE id = $1`,
				bonus.ID,
			)
			if err != nil {
				return fmt.Errorf("restore bonus: %w", err)
			}
			continue
		}

		_, err = tx.Exec(ctx,
			`UPDATE bonuses SET amount_cents = amount_cents + $2, paid_at = NULL WHERE id = $1`,
			bonus.ID, remainder.AmountCents,
		)
		if err != nil {
			return fmt.Errorf("merge remainder: %w", err)
		}

		_, err = tx.Exec(ctx, `DELETE FROM bonuses WHERE id = $1`, remainder.ID)
		if err != nil {
			return fmt.Errorf("delete remainder: %w", err)
		}
	}

	return nil
}

func (r *PostgresRepository) requestLinks(ctx context.Context, tx pgx.Tx, requestID int64) ([]model.SettlementLink, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, request_id, bonus_id, covered_cents FROM settlement_links WHERE request_id = $1 ORDER BY id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("select settlement links: %w", err)
	}
	defer rows.Close()

	var res []model.SettlementLink
	for rows.Next() {
		var l model.SettlementLink
		if err := rows.Scan(&l.ID, &l.RequestID, &l.BonusID, &l.CoveredCents); err != nil {
			return nil, fmt.Errorf("scan settlement link: %w", err)
		}
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) bonusForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Bonus, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE id = $1 FOR UPDATE`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select bonus: %w", err)
	}
	defer rows.Close()

	bonuses, err := scanBonuses(rows)
	if err != nil {
		return nil, err
	}
	if len(bonuses) == 0 {
		return nil, fmt.Errorf("bonus %d not found", id)
	}

	return &bonuses[0], nil
}

func (r *PostgresRepository) dealBonusesForUpdate(ctx context.Context, tx pgx.Tx, bonus model.Bonus) ([]model.Bonus, error) {
	column := "contract_id"
	dealID := bonus.ContractID
	if bonus.OrderID != nil {
		column = "order_id"
		dealID = bonus.OrderID
	}

	rows, err := tx.Query(ctx,
		`SELECT `+bonusColumns+` FROM bonuses
		 WHERE `+column+` = $1 AND user_id = $2 AND id <> $3
		 ORDER BY created_at, id
		 FOR UPDATE`,
		dealID, bonus.UserID, bonus.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sibling bonuses: %w", err)
	}
	defer rows.Close()

	return scanBonuses(rows)
}

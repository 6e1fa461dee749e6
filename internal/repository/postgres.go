// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ametelin/bonus-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrDealNotFound возвращается, если сделка не найдена.
	ErrDealNotFound = errors.New("deal not found")
	// ErrRequestNotFound возвращается, если заявка на выплату не найдена.
	ErrRequestNotFound = errors.New("payment request not found")
	// ErrInsufficientBalance возвращается при заявке на сумму, превышающую доступный баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks, переподключением
		// pgxpool занимается сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с реферальными ключами.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, referralKey, referredByKey string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, referral_key, referred_by_key)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		login, passwordHash, referralKey, referredByKey,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getUser(ctx, `WHERE login = $1`, login)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

// GetReferrerForUser находит реферера пользователя по взаимному ключу:
// ключ "referred_by_key" пользователя должен совпадать с публичным
// "referral_key" реферера. Возвращает nil без ошибки, если реферера нет.
func (r *PostgresRepository) GetReferrerForUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ReferredByKey == "" {
		return nil, nil
	}

	referrer, err := r.getUser(ctx, `WHERE referral_key = $1`, u.ReferredByKey)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return referrer, nil
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, referral_key, referred_by_key, registered_at
		 FROM users `+where,
		arg,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.ReferralKey, &u.ReferredByKey, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateDeal сохраняет новую сделку и возвращает её идентификатор.
func (r *PostgresRepository) CreateDeal(ctx context.Context, deal model.Deal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deals (project_id, kind, amount_cents, agent_percentage, curator_percentage, is_active, status, partner_payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		deal.ProjectID, string(deal.Kind), deal.AmountCents,
		deal.AgentPercentage, deal.CuratorPercentage,
		deal.IsActive, deal.Status, string(deal.PartnerPaymentStatus),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create deal: %w", err)
	}
	return id, nil
}

// GetDeal возвращает сделку по идентификатору.
func (r *PostgresRepository) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, project_id, kind, amount_cents, agent_percentage, curator_percentage, is_active, status, partner_payment_status, created_at
		 FROM deals WHERE id = $1`,
		id,
	)

	var (
		d       model.Deal
		kind    string
		ppState string
	)
	err := row.Scan(&d.ID, &d.ProjectID, &kind, &d.AmountCents,
		&d.AgentPercentage, &d.CuratorPercentage, &d.IsActive, &d.Status, &ppState, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("get deal: %w", err)
	}

	d.Kind = model.DealKind(kind)
	d.PartnerPaymentStatus = model.PartnerPaymentStatus(ppState)

	return &d, nil
}

// UpdateDealTerms обновляет сумму и проценты сделки.
func (r *PostgresRepository) UpdateDealTerms(ctx context.Context, id int64, amountCents *int64, agentPct, curatorPct float64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deals SET amount_cents = $2, agent_percentage = $3, curator_percentage = $4 WHERE id = $1`,
		id, amountCents, agentPct, curatorPct,
	)
	if err != nil {
		return fmt.Errorf("update deal terms: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

// SetDealActive переключает признак активности сделки.
func (r *PostgresRepository) SetDealActive(ctx context.Context, id int64, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deals SET is_active = $2 WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("set deal active: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

// SetDealStatus обновляет статус сделки.
func (r *PostgresRepository) SetDealStatus(ctx context.Context, id int64, status string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deals SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("set deal status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

// SetPartnerPaymentStatus обновляет статус оплаты партнёра по договору.
func (r *PostgresRepository) SetPartnerPaymentStatus(ctx context.Context, id int64, status model.PartnerPaymentStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE deals SET partner_payment_status = $2 WHERE id = $1 AND kind = 'contract'`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("set partner payment status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

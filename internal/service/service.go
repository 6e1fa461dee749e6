// Package service реализует бизнес-логику сервиса бонусов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ametelin/bonus-system/internal/availability"
	"github.com/ametelin/bonus-system/internal/ledger"
	"github.com/ametelin/bonus-system/internal/model"
	"github.com/ametelin/bonus-system/internal/projects"
	"github.com/ametelin/bonus-system/internal/referral"
	"github.com/ametelin/bonus-system/internal/validation"
)

// Ошибки валидации пользовательского ввода. В отличие от молчаливых
// пропусков при начислении бонусов, эти ошибки доводятся до вызывающей
// стороны.
var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrUnknownStatus = errors.New("unknown status")
	ErrUnknownMethod = errors.New("unknown payment method")
	ErrUnknownKind   = errors.New("unknown deal kind")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, referralKey, referredByKey string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetReferrerForUser(ctx context.Context, userID int64) (*model.User, error)
	CreateDeal(ctx context.Context, deal model.Deal) (int64, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	UpdateDealTerms(ctx context.Context, id int64, amountCents *int64, agentPct, curatorPct float64) error
	SetDealActive(ctx context.Context, id int64, active bool) error
	SetDealStatus(ctx context.Context, id int64, status string) error
	SetPartnerPaymentStatus(ctx context.Context, id int64, status model.PartnerPaymentStatus) error
	InsertBonuses(ctx context.Context, bonuses []model.Bonus) error
	GetBonusesByDeal(ctx context.Context, deal model.Deal) ([]model.Bonus, error)
	UpdateBonusCalculations(ctx context.Context, bonuses []model.Bonus) error
	ApplyAvailabilityChanges(ctx context.Context, changes []availability.Change) error
	GetAvailableBonuses(ctx context.Context, userID int64) ([]model.Bonus, error)
	GetBalance(ctx context.Context, userID int64) (int64, int64, error)
	CreatePaymentRequestWithLinks(ctx context.Context, userID, amountCents int64, method, reference string) (*model.PaymentRequest, error)
	GetPaymentRequestsByUser(ctx context.Context, userID int64) ([]model.PaymentRequest, error)
	UpdatePaymentRequestStatus(ctx context.Context, requestID int64, newStatus model.RequestStatus) error
}

// ProjectResolver возвращает назначение агента и куратора на проект.
type ProjectResolver interface {
	GetAssignment(ctx context.Context, projectID int64) (*projects.Assignment, error)
}

// Service связывает жизненный цикл сделок с реестром бонусов,
// вычислителем доступности и реферальным расширением. Все зависимости
// передаются явно через конструктор.
type Service struct {
	repo      Repository
	resolver  ProjectResolver
	ledger    *ledger.Ledger
	evaluator *availability.Evaluator
	referral  *referral.Extension
	logger    *zap.Logger
}

// NewService создаёт новый сервис с указанными зависимостями.
func NewService(repo Repository, resolver ProjectResolver, l *ledger.Ledger, e *availability.Evaluator, ref *referral.Extension, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		resolver:  resolver,
		ledger:    l,
		evaluator: e,
		referral:  ref,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового участника и выдаёт ему публичный
// реферальный ключ.
func (s *Service) RegisterUser(ctx context.Context, login, password, referredByKey string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, uuid.NewString(), referredByKey)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateDeal сохраняет новую сделку и начисляет по ней бонусы.
func (s *Service) CreateDeal(ctx context.Context, deal model.Deal) (int64, error) {
	if deal.Kind != model.DealKindContract && deal.Kind != model.DealKindOrder {
		return 0, ErrUnknownKind
	}
	if deal.Status == "" {
		deal.Status = model.ContractStatusNew
	}
	if !validation.IsValidDealStatus(deal.Kind, deal.Status) {
		return 0, ErrUnknownStatus
	}
	if deal.PartnerPaymentStatus == "" {
		deal.PartnerPaymentStatus = model.PartnerPaymentPending
	}

	id, err := s.repo.CreateDeal(ctx, deal)
	if err != nil {
		return 0, err
	}
	deal.ID = id

	s.accrueDealBonuses(ctx, deal)

	return id, nil
}

// accrueDealBonuses создаёт бонусы агента, куратора и реферера по сделке.
// Все отказы здесь — неразрешимое назначение, отсутствие реферера,
// истёкшая реферальная программа — штатные молчаливые пропуски.
func (s *Service) accrueDealBonuses(ctx context.Context, deal model.Deal) {
	if !deal.IsActive || deal.AmountCents == nil {
		return
	}
	if s.resolver == nil {
		s.logger.Debug("project resolver not configured, skipping bonus accrual", zap.Int64("dealID", deal.ID))
		return
	}

	assignment, err := s.resolver.GetAssignment(ctx, deal.ProjectID)
	if err != nil {
		s.logger.Warn("resolve project assignment", zap.Error(err), zap.Int64("projectID", deal.ProjectID))
		return
	}
	if assignment == nil {
		s.logger.Debug("project has no agent assignment", zap.Int64("projectID", deal.ProjectID))
		return
	}

	now := time.Now()
	bonuses := s.ledger.PlanDealBonuses(deal, assignment.AgentUserID, assignment.CuratorUserID, now)
	if len(bonuses) == 0 {
		return
	}

	if rb := s.planReferral(ctx, deal, assignment.AgentUserID, now); rb != nil {
		bonuses = append(bonuses, *rb)
	}

	if err := s.repo.InsertBonuses(ctx, bonuses); err != nil {
		s.logger.Error("insert bonuses", zap.Error(err), zap.Int64("dealID", deal.ID))
		return
	}

	s.refreshAvailability(ctx, deal)
}

func (s *Service) planReferral(ctx context.Context, deal model.Deal, agentID int64, now time.Time) *model.Bonus {
	agent, err := s.repo.GetUserByID(ctx, agentID)
	if err != nil {
		s.logger.Debug("load agent for referral", zap.Error(err), zap.Int64("agentID", agentID))
		return nil
	}

	referrer, err := s.repo.GetReferrerForUser(ctx, agentID)
	if err != nil {
		s.logger.Debug("resolve referrer", zap.Error(err), zap.Int64("agentID", agentID))
		return nil
	}
	if referrer == nil {
		return nil
	}

	return s.referral.PlanReferralBonus(deal, *agent, referrer.ID, now)
}

// UpdateDealTerms обновляет сумму и проценты сделки и пересчитывает
// все её бонусы.
func (s *Service) UpdateDealTerms(ctx context.Context, dealID int64, amountCents *int64, agentPct, curatorPct float64) error {
	if err := s.repo.UpdateDealTerms(ctx, dealID, amountCents, agentPct, curatorPct); err != nil {
		return err
	}
	return s.recalculateDealBonuses(ctx, dealID)
}

// SetDealActive переключает активность сделки: деактивация обнуляет
// бонусы и закрывает их доступность, активация пересчитывает и то и другое.
func (s *Service) SetDealActive(ctx context.Context, dealID int64, active bool) error {
	if err := s.repo.SetDealActive(ctx, dealID, active); err != nil {
		return err
	}
	return s.recalculateDealBonuses(ctx, dealID)
}

func (s *Service) recalculateDealBonuses(ctx context.Context, dealID int64) error {
	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}

	bonuses, err := s.repo.GetBonusesByDeal(ctx, *deal)
	if err != nil {
		return err
	}

	updated := make([]model.Bonus, 0, len(bonuses))
	for _, b := range bonuses {
		if b.PaidAt != nil {
			continue
		}
		updated = append(updated, s.ledger.Recalculate(b, *deal))
	}

	if err := s.repo.UpdateBonusCalculations(ctx, updated); err != nil {
		return err
	}

	s.refreshAvailability(ctx, *deal)
	return nil
}

// SetDealStatus переводит сделку в новый статус и пересматривает
// доступность её бонусов. Неизвестный статус отклоняется.
func (s *Service) SetDealStatus(ctx context.Context, dealID int64, status string) error {
	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}

	if !validation.IsValidDealStatus(deal.Kind, status) {
		return ErrUnknownStatus
	}

	if err := s.repo.SetDealStatus(ctx, dealID, status); err != nil {
		return err
	}

	deal.Status = status
	s.refreshAvailability(ctx, *deal)
	return nil
}

// SetPartnerPaymentStatus обновляет статус оплаты партнёра по договору
// и пересматривает доступность бонусов.
func (s *Service) SetPartnerPaymentStatus(ctx context.Context, dealID int64, status model.PartnerPaymentStatus) error {
	if !validation.IsValidPartnerPaymentStatus(status) {
		return ErrUnknownStatus
	}

	if err := s.repo.SetPartnerPaymentStatus(ctx, dealID, status); err != nil {
		return err
	}

	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}

	s.refreshAvailability(ctx, *deal)
	return nil
}

func (s *Service) refreshAvailability(ctx context.Context, deal model.Deal) {
	bonuses, err := s.repo.GetBonusesByDeal(ctx, deal)
	if err != nil {
		s.logger.Error("load deal bonuses", zap.Error(err), zap.Int64("dealID", deal.ID))
		return
	}

	changes := s.evaluator.Plan(bonuses, deal, time.Now())
	if err := s.repo.ApplyAvailabilityChanges(ctx, changes); err != nil {
		s.logger.Error("apply availability changes", zap.Error(err), zap.Int64("dealID", deal.ID))
	}
}

// GetBalance возвращает баланс получателя в виде структуры model.Balance.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	available, paid, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		Available: float64(available) / 100,
		Paid:      float64(paid) / 100,
	}, nil
}

// GetAvailableBonuses возвращает бонусы получателя, доступные к выплате.
func (s *Service) GetAvailableBonuses(ctx context.Context, userID int64) ([]model.Bonus, error) {
	return s.repo.GetAvailableBonuses(ctx, userID)
}

// CreatePaymentRequest создаёт заявку на выплату указанной суммы.
func (s *Service) CreatePaymentRequest(ctx context.Context, userID int64, sum float64, method string) (*model.PaymentRequest, error) {
	sumCents := decimal.NewFromFloat(sum).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if sumCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validation.IsValidPaymentMethod(method) {
		return nil, ErrUnknownMethod
	}

	return s.repo.CreatePaymentRequestWithLinks(ctx, userID, sumCents, method, uuid.NewString())
}

// UpdatePaymentRequestStatus переводит заявку на выплату в новый статус.
func (s *Service) UpdatePaymentRequestStatus(ctx context.Context, requestID int64, status model.RequestStatus) error {
	if !validation.IsValidRequestStatus(status) {
		return ErrUnknownStatus
	}
	return s.repo.UpdatePaymentRequestStatus(ctx, requestID, status)
}

// GetPaymentRequestsByUser возвращает историю заявок получателя.
func (s *Service) GetPaymentRequestsByUser(ctx context.Context, userID int64) ([]model.PaymentRequest, error) {
	return s.repo.GetPaymentRequestsByUser(ctx, userID)
}

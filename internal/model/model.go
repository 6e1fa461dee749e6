// Package model содержит доменные сущности сервиса бонусов.
package model

import "time"

// User представляет зарегистрированного участника партнёрской программы.
type User struct {
	ID            int64
	Login         string
	PasswordHash  []byte
	ReferralKey   string
	ReferredByKey string
	RegisteredAt  time.Time
}

// DealKind различает два типа сделок: договор и заказ.
type DealKind string

const (
	DealKindContract DealKind = "contract"
	DealKindOrder    DealKind = "order"
)

// Статусы сделок. Для договоров выплата открывается на статусе "completed",
// для заказов — на статусе "delivered".
const (
	ContractStatusNew       = "new"
	ContractStatusInWork    = "in_work"
	ContractStatusCompleted = "completed"
	ContractStatusCancelled = "cancelled"

	OrderStatusNew       = "new"
	OrderStatusInWork    = "in_work"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// PartnerPaymentStatus описывает статус оплаты со стороны партнёра по договору.
type PartnerPaymentStatus string

const (
	PartnerPaymentPending PartnerPaymentStatus = "pending"
	PartnerPaymentPaid    PartnerPaymentStatus = "paid"
)

// Deal описывает сделку (договор или заказ), порождающую бонусы.
// Денежные суммы хранятся в копейках.
type Deal struct {
	ID                   int64
	ProjectID            int64
	Kind                 DealKind
	AmountCents          *int64
	AgentPercentage      float64
	CuratorPercentage    float64
	IsActive             bool
	Status               string
	PartnerPaymentStatus PartnerPaymentStatus
	CreatedAt            time.Time
}

// BonusRole определяет получателя бонуса относительно сделки.
type BonusRole string

const (
	BonusRoleAgent    BonusRole = "agent"
	BonusRoleCurator  BonusRole = "curator"
	BonusRoleReferrer BonusRole = "referrer"
)

// Bonus представляет начисленную комиссию по одной сделке.
// Заполнено ровно одно из полей ContractID и OrderID.
type Bonus struct {
	ID             int64
	UserID         int64
	ContractID     *int64
	OrderID        *int64
	AmountCents    int64
	Percentage     float64
	Role           BonusRole
	ReferralUserID *int64
	AccruedAt      time.Time
	AvailableAt    *time.Time
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// NewContractBonus создаёт бонус, привязанный к договору.
func NewContractBonus(userID, contractID int64, role BonusRole) Bonus {
	return Bonus{UserID: userID, ContractID: &contractID, Role: role}
}

// NewOrderBonus создаёт бонус, привязанный к заказу.
func NewOrderBonus(userID, orderID int64, role BonusRole) Bonus {
	return Bonus{UserID: userID, OrderID: &orderID, Role: role}
}

// DealRefValid сообщает, выполняется ли инвариант "ровно одна ссылка на сделку".
func (b Bonus) DealRefValid() bool {
	return (b.ContractID != nil) != (b.OrderID != nil)
}

// SameDealRef сообщает, ссылаются ли два бонуса на одну и ту же сделку.
func (b Bonus) SameDealRef(other Bonus) bool {
	if b.ContractID != nil && other.ContractID != nil {
		return *b.ContractID == *other.ContractID
	}
	if b.OrderID != nil && other.OrderID != nil {
		return *b.OrderID == *other.OrderID
	}
	return false
}

// RequestStatus описывает статус заявки на выплату.
type RequestStatus string

const (
	RequestStatusRequested RequestStatus = "requested"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusPaid      RequestStatus = "paid"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// PaymentRequest представляет заявку получателя на выплату накопленных бонусов.
type PaymentRequest struct {
	ID          int64
	Reference   string
	UserID      int64
	AmountCents int64
	Method      string
	Status      RequestStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
}

// SettlementLink связывает заявку на выплату с бонусом и фиксирует
// покрываемую этим бонусом часть суммы заявки.
type SettlementLink struct {
	ID           int64
	RequestID    int64
	BonusID      int64
	CoveredCents int64
}

// Balance содержит доступный к выплате баланс получателя и сумму всех выплат.
type Balance struct {
	Available float64 `json:"available"`
	Paid      float64 `json:"paid"`
}

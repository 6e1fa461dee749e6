// Package validation содержит функции валидации входных данных.
package validation

import "github.com/ametelin/bonus-system/internal/model"

var paymentMethods = map[string]struct{}{
	"bank_transfer": {},
	"card":          {},
	"cash":          {},
}

// IsValidPaymentMethod проверяет, что способ выплаты входит в список поддерживаемых.
func IsValidPaymentMethod(method string) bool {
	_, ok := paymentMethods[method]
	return ok
}

var contractStatuses = map[string]struct{}{
	model.ContractStatusNew:       {},
	model.ContractStatusInWork:    {},
	model.ContractStatusCompleted: {},
	model.ContractStatusCancelled: {},
}

var orderStatuses = map[string]struct{}{
	model.OrderStatusNew:       {},
	model.OrderStatusInWork:    {},
	model.OrderStatusDelivered: {},
	model.OrderStatusCancelled: {},
}

// IsValidDealStatus проверяет статус сделки для указанного типа.
func IsValidDealStatus(kind model.DealKind, status string) bool {
	switch kind {
	case model.DealKindContract:
		_, ok := contractStatuses[status]
		return ok
	case model.DealKindOrder:
		_, ok := orderStatuses[status]
		return ok
	default:
		return false
	}
}

// IsValidRequestStatus проверяет статус заявки на выплату.
func IsValidRequestStatus(status model.RequestStatus) bool {
	switch status {
	case model.RequestStatusRequested, model.RequestStatusApproved,
		model.RequestStatusPaid, model.RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidPartnerPaymentStatus проверяет статус оплаты партнёра.
func IsValidPartnerPaymentStatus(status model.PartnerPaymentStatus) bool {
	return status == model.PartnerPaymentPending || status == model.PartnerPaymentPaid
}

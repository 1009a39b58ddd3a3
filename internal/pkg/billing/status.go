package billing

import (
	"strings"

	"github.com/ManuelReschke/AssetVault/app/models"
)

// MapGatewayStatus translates a Mercado Pago payment status to a local one.
// Statuses the reconciler does not act on (refunded, charged_back) report false.
func MapGatewayStatus(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return models.PaymentStatusApproved, true
	case "rejected":
		return models.PaymentStatusRejected, true
	case "in_process", "in_mediation", "authorized":
		return models.PaymentStatusInProcess, true
	case "pending":
		return models.PaymentStatusPending, true
	case "cancelled":
		return models.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

// IsTerminal reports whether a payment status never changes again.
func IsTerminal(status string) bool {
	switch status {
	case models.PaymentStatusApproved, models.PaymentStatusRejected, models.PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a payment may move from one status to another.
// Equal statuses are not a transition.
func CanTransition(from, to string) bool {
	if from == to || IsTerminal(from) {
		return false
	}
	switch from {
	case models.PaymentStatusPending:
		return to == models.PaymentStatusApproved ||
			to == models.PaymentStatusRejected ||
			to == models.PaymentStatusInProcess ||
			to == models.PaymentStatusCancelled
	case models.PaymentStatusInProcess:
		return to != models.PaymentStatusPending
	default:
		return false
	}
}

// GenericRejectionReason is shown when the gateway's status_detail is unknown.
const GenericRejectionReason = "Não foi possível processar o seu pagamento. Tente novamente ou escolha outra forma de pagamento."

var rejectionReasons = map[string]string{
	"cc_rejected_bad_filled_card_number":   "Revise o número do cartão.",
	"cc_rejected_bad_filled_date":          "Revise a data de vencimento do cartão.",
	"cc_rejected_bad_filled_other":         "Revise os dados do cartão.",
	"cc_rejected_bad_filled_security_code": "Revise o código de segurança do cartão.",
	"cc_rejected_blacklist":                "Não pudemos processar o seu pagamento.",
	"cc_rejected_call_for_authorize":       "Autorize o pagamento junto ao emissor do cartão.",
	"cc_rejected_card_disabled":            "Ligue para o emissor do cartão para ativá-lo.",
	"cc_rejected_card_error":               "Não conseguimos processar o seu pagamento.",
	"cc_rejected_duplicated_payment":       "Você já efetuou um pagamento com esse valor.",
	"cc_rejected_high_risk":                "O seu pagamento foi recusado. Escolha outra forma de pagamento.",
	"cc_rejected_insufficient_amount":      "O cartão possui saldo insuficiente.",
	"cc_rejected_invalid_installments":     "O cartão não processa pagamentos parcelados.",
	"cc_rejected_max_attempts":             "Você atingiu o limite de tentativas. Escolha outro cartão ou forma de pagamento.",
	"cc_rejected_other_reason":             "O emissor do cartão não processou o pagamento.",
	"cc_amount_rate_limit_exceeded":        "O valor ultrapassa o limite disponível para este meio de pagamento.",
	"rejected_high_risk":                   "O seu pagamento foi recusado. Escolha outra forma de pagamento.",
	"rejected_insufficient_data":           "Faltam dados para processar o pagamento.",
	"rejected_by_bank":                     "O banco recusou o pagamento.",
	"rejected_by_regulations":              "O pagamento foi recusado por regras regulatórias.",
	"expired":                              "O prazo para pagamento expirou.",
}

// RejectionReason maps a gateway status_detail to a customer-facing message.
func RejectionReason(statusDetail string) string {
	if reason, ok := rejectionReasons[strings.ToLower(strings.TrimSpace(statusDetail))]; ok {
		return reason
	}
	return GenericRejectionReason
}

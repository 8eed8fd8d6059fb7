package types

type OrderSide string

type OrderType string

type OrderState string

type OrderTrigger string

type TimeInForce string

type MarketHours string

type SessionStatus string

type CancelMode string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

const (
	OrderStateUnconfirmed OrderState = "unconfirmed"
	OrderStateConfirmed   OrderState = "confirmed"
	OrderStateQueued      OrderState = "queued"
	OrderStateFilled      OrderState = "filled"
	OrderStateRejected    OrderState = "rejected"
	OrderStateFailed      OrderState = "failed"
	OrderStateCanceled    OrderState = "canceled"
)

const (
	TriggerImmediate OrderTrigger = "immediate"
	TriggerStop      OrderTrigger = "stop"
)

const (
	TimeInForceGFD TimeInForce = "gfd"
	TimeInForceGTC TimeInForce = "gtc"
)

const (
	MarketHoursRegular  MarketHours = "regular_hours"
	MarketHoursExtended MarketHours = "extended_hours"
	MarketHoursAllDay   MarketHours = "all_day_hours"
)

const (
	SessionInit                 SessionStatus = "init"
	SessionLoggingIn            SessionStatus = "logging_in"
	SessionLoggedIn             SessionStatus = "logged_in"
	SessionLoggedInCached       SessionStatus = "logged_in_cached"
	SessionVerificationRequired SessionStatus = "verification_required"
	SessionMFARequired          SessionStatus = "mfa_required"
	SessionApprovalRequired     SessionStatus = "approval_required"
	SessionPromptValidated      SessionStatus = "prompt_validated"
	SessionError                SessionStatus = "error"
)

const (
	CancelModeStop CancelMode = "stop"
	CancelModeAll  CancelMode = "all"
	CancelModeNone CancelMode = "none"
)

// Terminal reports whether an order state is final and cannot progress.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateRejected, OrderStateFailed, OrderStateCanceled:
		return true
	}
	return false
}

package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the trading and auth layers. Handlers match on
// these with errors.Is to pick a status code; everything else passes through
// as-is.
var (
	ErrMissingCredentials      = errors.New("missing_credentials")
	ErrLoginFailed             = errors.New("login_failed")
	ErrVerificationRequired    = errors.New("verification_required")
	ErrInvalidCode             = errors.New("invalid_code")
	ErrNoChallenge             = errors.New("no_challenge")
	ErrNotLoggedIn             = errors.New("not_logged_in")
	ErrMissingSymbol           = errors.New("missing_symbol")
	ErrInvalidSide             = errors.New("invalid_side")
	ErrInvalidQty              = errors.New("invalid_qty")
	ErrInvalidAmount           = errors.New("invalid_amount_usd")
	ErrInvalidLimitPrice       = errors.New("invalid_limit_price")
	ErrMissingLimitOffset      = errors.New("missing_limit_offset")
	ErrMissingStopRefPrice     = errors.New("missing_stop_ref_price")
	ErrInvalidStopPrice        = errors.New("invalid_stop_price")
	ErrAmountTooSmallForLimit  = errors.New("amount_too_small_for_limit")
	ErrAmountTooSmallForMarket = errors.New("amount_too_small_for_market")
	ErrNoPosition              = errors.New("no_position")
	ErrNoWholeShares           = errors.New("no_whole_shares_for_limit")
	ErrQuoteUnavailable        = errors.New("quote_unavailable")
	ErrInstrumentUnavailable   = errors.New("instrument_unavailable")
	ErrAccountURLUnavailable   = errors.New("account_url_unavailable")
	ErrOrderSubmitFailed       = errors.New("order_submit_failed")
	ErrUnexpectedOrderResponse = errors.New("unexpected_order_response")
)

// RejectError carries a broker-declared rejection verbatim: either the
// free-text reject reason or an order_<state> kind for terminal states.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return e.Reason
}

// OrderStateError builds the order_<state> reject for a terminal state.
func OrderStateError(state OrderState) *RejectError {
	return &RejectError{Reason: fmt.Sprintf("order_%s", state)}
}

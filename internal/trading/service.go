// Package trading turns buy/sell intents into brokerage submissions: auth
// gating, sizing, preflight cancellation, bounded retries, and the detached
// protective-stop run after a filled buy.
package trading

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rhbridge/internal/auth"
	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/metrics"
	"rhbridge/internal/orders"
	"rhbridge/internal/stoploss"
	"rhbridge/internal/types"
)

// TradeIntent is the client-facing request shape. Quantity and AmountUSD
// are mutually exclusive sizing modes; LimitPrice and LimitOffset likewise
// for limit pricing.
type TradeIntent struct {
	Symbol       string
	Quantity     *decimal.Decimal
	AmountUSD    *decimal.Decimal
	OrderType    types.OrderType
	LimitPrice   *decimal.Decimal
	LimitOffset  *decimal.Decimal
	AutoStop     *bool
	StopPrice    *decimal.Decimal
	StopRefPrice *decimal.Decimal
}

type StopInfo struct {
	Enabled   bool             `json:"enabled"`
	Status    string           `json:"status,omitempty"`
	StopPrice *decimal.Decimal `json:"stop_price,omitempty"`
	Source    string           `json:"source,omitempty"`
	RefPrice  *decimal.Decimal `json:"ref_price,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type BuyResult struct {
	Order    orders.Result `json:"order"`
	AutoStop *StopInfo     `json:"auto_stop,omitempty"`
}

type SellResult struct {
	Order     orders.Result    `json:"order"`
	Preflight *PreflightReport `json:"preflight,omitempty"`
}

type Options struct {
	CancelMode      types.CancelMode
	AutoStopEnabled bool
	AutoStopMaxWait time.Duration
	BuyWholeShares  bool
}

// protectAll sizes the intended protection when a fractional dollar buy has
// no share count up front; the observed fill delta is the real limit.
const protectAll int64 = 1 << 30

type Service struct {
	auth      *auth.Manager
	client    *brokerage.Client
	resolver  *instrument.Resolver
	builder   *orders.Builder
	submitter *orders.Submitter
	tracker   *orders.Tracker
	stops     *stoploss.Cache
	coord     *stoploss.Coordinator
	preflight *Preflight
	opts      Options

	// bg outlives individual requests; detached stop runs hang off it and
	// are cancelled cooperatively at shutdown.
	bg          context.Context
	wg          sync.WaitGroup
	retryDelays []time.Duration
}

func NewService(bg context.Context, mgr *auth.Manager, client *brokerage.Client, resolver *instrument.Resolver, tracker *orders.Tracker, stops *stoploss.Cache, coord *stoploss.Coordinator, opts Options) *Service {
	return &Service{
		auth:        mgr,
		client:      client,
		resolver:    resolver,
		builder:     orders.NewBuilder(client, resolver),
		submitter:   orders.NewSubmitter(client),
		tracker:     tracker,
		stops:       stops,
		coord:       coord,
		preflight:   NewPreflight(client, resolver, stops),
		opts:        opts,
		bg:          bg,
		retryDelays: []time.Duration{0, 180 * time.Millisecond, 350 * time.Millisecond},
	}
}

// SetRetryDelays overrides the sell retry schedule; tests shrink it.
func (s *Service) SetRetryDelays(delays []time.Duration) {
	s.retryDelays = delays
}

// Wait blocks until detached background runs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) StopOutcomes() map[string]stoploss.Outcome {
	return s.coord.Outcomes()
}

func (s *Service) StopRecords() map[string]stoploss.Record {
	return s.stops.Snapshot()
}

func normalizeOrderType(t types.OrderType) types.OrderType {
	if strings.EqualFold(strings.TrimSpace(string(t)), string(types.OrderTypeLimit)) {
		return types.OrderTypeLimit
	}
	return types.OrderTypeMarket
}

// positionQty mirrors the original's forgiving read: any failure counts as
// a flat position.
func (s *Service) positionQty(ctx context.Context, symbol string) decimal.Decimal {
	instURL, err := s.resolver.InstrumentURL(ctx, symbol, nil)
	if err != nil {
		return decimal.Zero
	}
	qty, err := s.client.PositionQuantity(ctx, instURL)
	if err != nil {
		return decimal.Zero
	}
	return qty
}

// resolveLimit turns an explicit price or an offset from the last trade
// into a rounded limit. Buys offset upward from last→ask, sells downward
// from last→bid.
func (s *Service) resolveLimit(ctx context.Context, symbol string, side types.OrderSide, intent TradeIntent, quote **brokerage.Quote) (decimal.Decimal, error) {
	var limit decimal.Decimal
	switch {
	case intent.LimitOffset != nil:
		start := time.Now()
		q, err := s.client.Quote(ctx, symbol)
		if err != nil {
			return limit, err
		}
		*quote = q
		log.Printf("[trade] %s quote %s %.3fs", side, symbol, time.Since(start).Seconds())
		ref := q.LastTrade()
		if !ref.IsPositive() {
			if side == types.OrderSideBuy {
				ref = q.Ask
			} else {
				ref = q.Bid
			}
		}
		if !ref.IsPositive() {
			return limit, types.ErrQuoteUnavailable
		}
		if side == types.OrderSideBuy {
			limit = ref.Add(*intent.LimitOffset)
		} else {
			limit = ref.Sub(*intent.LimitOffset)
		}
	case intent.LimitPrice != nil:
		limit = *intent.LimitPrice
	default:
		return limit, types.ErrMissingLimitOffset
	}
	if !limit.IsPositive() {
		return limit, types.ErrInvalidLimitPrice
	}
	return orders.RoundPrice(limit), nil
}

// Buy places a buy per the intent and, when auto-stop applies, launches the
// detached protection run once the order is on its way.
func (s *Service) Buy(ctx context.Context, intent TradeIntent) (*BuyResult, error) {
	start := time.Now()
	if err := s.auth.EnsureLoggedIn(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(intent.Symbol))
	if symbol == "" {
		return nil, types.ErrMissingSymbol
	}
	orderType := normalizeOrderType(intent.OrderType)

	autoStop := s.opts.AutoStopEnabled
	if intent.AutoStop != nil {
		autoStop = *intent.AutoStop
	}
	if autoStop && intent.StopPrice == nil && intent.StopRefPrice == nil {
		return nil, types.ErrMissingStopRefPrice
	}

	// Baseline position fetched concurrently with the quote work so the
	// submit itself is not delayed.
	var beforeCh chan decimal.Decimal
	if autoStop {
		beforeCh = make(chan decimal.Decimal, 1)
		go func() { beforeCh <- s.positionQty(ctx, symbol) }()
	}

	var (
		raw       map[string]any
		submitErr error
		intended  int64
		quote     *brokerage.Quote
	)

	switch {
	case intent.AmountUSD != nil:
		amount := *intent.AmountUSD
		if !amount.IsPositive() {
			return nil, types.ErrInvalidAmount
		}
		if orderType == types.OrderTypeLimit {
			limit, err := s.resolveLimit(ctx, symbol, types.OrderSideBuy, intent, &quote)
			if err != nil {
				return nil, err
			}
			qty := amount.Div(limit).IntPart()
			if qty <= 0 {
				return nil, types.ErrAmountTooSmallForLimit
			}
			log.Printf("[trade] buy dollars->shares %s $%s @ %s => %d sh", symbol, amount, limit, qty)
			raw, submitErr = s.submit(ctx, orders.Request{
				Symbol: symbol, Side: types.OrderSideBuy, Quantity: qty,
				LimitPrice: &limit, TimeInForce: types.TimeInForceGFD, Quote: quote,
			})
			intended = qty
		} else if !s.opts.BuyWholeShares {
			// Fractional fast path: size by dollars, submit by-quantity at
			// the ask, and let the coordinator protect whatever whole
			// shares actually fill.
			amount = amount.Round(2)
			if amount.LessThan(decimal.New(1, -2)) {
				return nil, types.ErrAmountTooSmallForMarket
			}
			raw, submitErr = s.submitFractionalBuy(ctx, symbol, amount)
			if autoStop {
				intended = protectAll
			}
		} else {
			q, err := s.client.Quote(ctx, symbol)
			if err != nil {
				return nil, err
			}
			quote = q
			ref := q.Ask
			if !ref.IsPositive() {
				ref = q.LastTrade()
			}
			if !ref.IsPositive() {
				return nil, types.ErrQuoteUnavailable
			}
			qty := amount.Div(ref).IntPart()
			if qty <= 0 {
				return nil, types.ErrAmountTooSmallForMarket
			}
			log.Printf("[trade] buy dollars->shares %s $%s @ %s => %d sh", symbol, amount, ref, qty)
			raw, submitErr = s.submit(ctx, orders.Request{
				Symbol: symbol, Side: types.OrderSideBuy, Quantity: qty,
				TimeInForce: types.TimeInForceGFD, Quote: quote,
			})
			intended = qty
		}

	default:
		qty := decimal.NewFromInt(1)
		if intent.Quantity != nil {
			qty = *intent.Quantity
		}
		if !qty.IsPositive() || !qty.Equal(qty.Truncate(0)) {
			return nil, types.ErrInvalidQty
		}
		whole := qty.IntPart()
		if orderType == types.OrderTypeLimit {
			limit, err := s.resolveLimit(ctx, symbol, types.OrderSideBuy, intent, &quote)
			if err != nil {
				return nil, err
			}
			raw, submitErr = s.submit(ctx, orders.Request{
				Symbol: symbol, Side: types.OrderSideBuy, Quantity: whole,
				LimitPrice: &limit, TimeInForce: types.TimeInForceGFD, Quote: quote,
			})
		} else {
			raw, submitErr = s.submit(ctx, orders.Request{
				Symbol: symbol, Side: types.OrderSideBuy, Quantity: whole,
				TimeInForce: types.TimeInForceGFD,
			})
		}
		intended = whole
	}

	var beforeQty decimal.Decimal
	if beforeCh != nil {
		beforeQty = <-beforeCh
	}

	stopInfo := s.resolveStopInfo(autoStop, intent)
	log.Printf("[trade] buy total %s %.3fs", symbol, time.Since(start).Seconds())

	res, err := orders.Require(raw, submitErr)
	if err != nil {
		metrics.Order("buy", "rejected")
		return nil, err
	}
	metrics.Order("buy", "accepted")
	if orderType == types.OrderTypeLimit {
		res = s.tracker.Await(ctx, res)
	}

	if stopInfo != nil && stopInfo.Enabled && stopInfo.Status == "pending" {
		req := stoploss.ProtectRequest{
			Symbol:      symbol,
			BeforeQty:   beforeQty,
			IntendedQty: intended,
			StopPrice:   *stopInfo.StopPrice,
			MaxWait:     s.opts.AutoStopMaxWait,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.coord.Protect(s.bg, s.stops, req)
		}()
	}
	return &BuyResult{Order: res, AutoStop: stopInfo}, nil
}

// resolveStopInfo settles the stop price for the pending protection run:
// an explicit price wins, else the cursor reference price.
func (s *Service) resolveStopInfo(enabled bool, intent TradeIntent) *StopInfo {
	if !enabled {
		return &StopInfo{Enabled: false}
	}
	var stop decimal.Decimal
	source := "cursor"
	switch {
	case intent.StopPrice != nil:
		stop = orders.RoundPrice(*intent.StopPrice)
		source = "explicit"
	case intent.StopRefPrice != nil:
		stop = orders.RoundPrice(*intent.StopRefPrice)
	default:
		return &StopInfo{Enabled: true, Status: "error", Error: types.ErrMissingStopRefPrice.Error()}
	}
	if !stop.IsPositive() {
		return &StopInfo{Enabled: true, Status: "error", Error: types.ErrInvalidStopPrice.Error()}
	}
	info := &StopInfo{Enabled: true, Status: "pending", StopPrice: &stop, Source: source}
	if source == "cursor" {
		info.RefPrice = intent.StopRefPrice
	}
	return info
}

func (s *Service) submit(ctx context.Context, req orders.Request) (map[string]any, error) {
	payload, err := s.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	raw, submitErr := s.submitter.Submit(ctx, payload)
	log.Printf("[trade] %s %s submit %s %.3fs", req.Side, payload.Type, req.Symbol, time.Since(start).Seconds())
	return raw, submitErr
}

func (s *Service) submitFractionalBuy(ctx context.Context, symbol string, amount decimal.Decimal) (map[string]any, error) {
	quote, err := s.client.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ref := quote.Ask
	if !ref.IsPositive() {
		ref = quote.LastTrade()
	}
	if !ref.IsPositive() {
		return nil, types.ErrQuoteUnavailable
	}
	accountURL, err := s.resolver.AccountURL(ctx)
	if err != nil {
		return nil, err
	}
	instURL, err := s.resolver.InstrumentURL(ctx, symbol, quote)
	if err != nil {
		return nil, err
	}
	payload, err := orders.FractionalPayload(types.OrderSideBuy, quote, amount.Div(ref), accountURL, instURL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	raw, submitErr := s.submitter.Submit(ctx, payload)
	log.Printf("[trade] buy market $ submit %s %.3fs", symbol, time.Since(start).Seconds())
	return raw, submitErr
}

// Sell cancels conflicting protective orders, sizes to the whole position,
// and retries once-twice on the insufficient-shares race.
func (s *Service) Sell(ctx context.Context, intent TradeIntent) (*SellResult, error) {
	start := time.Now()
	if err := s.auth.EnsureLoggedIn(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(intent.Symbol))
	if symbol == "" {
		return nil, types.ErrMissingSymbol
	}
	mode := s.opts.CancelMode
	var report *PreflightReport
	var cancelCh chan CancelOutcome
	cachedStopID := ""

	if rec, ok := s.stops.Get(symbol); ok {
		cachedStopID = rec.OrderID
		report = &PreflightReport{Mode: string(mode), CachedStopID: cachedStopID, Canceled: []string{}}
		cancelCh = make(chan CancelOutcome, 1)
		go func() { cancelCh <- s.preflight.CancelCached(ctx, symbol, cachedStopID) }()
	} else if mode != types.CancelModeNone {
		r := s.preflight.ScanAndCancel(ctx, symbol, mode)
		report = &r
	}

	posQty := s.positionQty(ctx, symbol)
	if !posQty.IsPositive() {
		return nil, types.ErrNoPosition
	}
	orderType := normalizeOrderType(intent.OrderType)

	var (
		raw       map[string]any
		submitErr error
	)
	if orderType == types.OrderTypeLimit {
		var quote *brokerage.Quote
		limit, err := s.resolveLimit(ctx, symbol, types.OrderSideSell, intent, &quote)
		if err != nil {
			return nil, err
		}
		whole := posQty.IntPart()
		if whole <= 0 {
			return nil, types.ErrNoWholeShares
		}
		raw, submitErr = s.submit(ctx, orders.Request{
			Symbol: symbol, Side: types.OrderSideSell, Quantity: whole,
			LimitPrice: &limit, TimeInForce: types.TimeInForceGFD, Quote: quote,
		})
	} else {
		raw, submitErr = s.sellMarketWithRetry(ctx, symbol, posQty, mode, cachedStopID, cancelCh, report)
	}

	log.Printf("[trade] sell total %s %.3fs", symbol, time.Since(start).Seconds())
	res, err := orders.Require(raw, submitErr)
	if err != nil {
		metrics.Order("sell", "rejected")
		return &SellResult{Preflight: report}, err
	}
	metrics.Order("sell", "accepted")
	if orderType == types.OrderTypeLimit {
		res = s.tracker.Await(ctx, res)
	}

	// Attach the in-flight cached cancel outcome when it finishes quickly;
	// the sell result does not wait on it otherwise.
	if cancelCh != nil && report != nil && report.CachedCancel == nil {
		select {
		case outcome := <-cancelCh:
			report.CachedCancel = &outcome
		case <-time.After(350 * time.Millisecond):
		}
	}
	return &SellResult{Order: res, Preflight: report}, nil
}

// sellMarketWithRetry submits the market sell up to three times. Only an
// insufficient-shares reject earns a retry: the first one awaits the
// in-flight cached cancellation and falls back to a full scan when that
// did not free the shares.
func (s *Service) sellMarketWithRetry(ctx context.Context, symbol string, posQty decimal.Decimal, mode types.CancelMode, cachedStopID string, cancelCh chan CancelOutcome, report *PreflightReport) (map[string]any, error) {
	wholeQty := posQty.Equal(posQty.Truncate(0))
	maxAttempts := len(s.retryDelays)

	var raw map[string]any
	var submitErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if d := s.retryDelays[attempt]; d > 0 {
			select {
			case <-ctx.Done():
				return raw, ctx.Err()
			case <-time.After(d):
			}
		}

		if wholeQty {
			raw, submitErr = s.submit(ctx, orders.Request{
				Symbol: symbol, Side: types.OrderSideSell, Quantity: posQty.IntPart(),
				TimeInForce: types.TimeInForceGFD,
			})
		} else {
			raw, submitErr = s.submitFractionalSell(ctx, symbol, posQty.Round(6))
		}

		detail := orders.ErrorDetail(raw)
		if reject := orders.Normalize(raw).RejectReason; reject != "" {
			detail = reject
		}
		if !orders.IsInsufficientShares(detail) || attempt+1 >= maxAttempts {
			break
		}

		var cancelOutcome *CancelOutcome
		if cancelCh != nil {
			outcome := <-cancelCh
			cancelOutcome = &outcome
			cancelCh = nil
			if report != nil {
				report.CachedCancel = cancelOutcome
			}
		}
		shouldScan := mode != types.CancelModeNone && attempt == 0 &&
			(cachedStopID == "" || (cancelOutcome != nil && !cancelOutcome.OK))
		if shouldScan {
			r := s.preflight.ScanAndCancel(ctx, symbol, mode)
			if report != nil {
				cached := report.CachedCancel
				*report = r
				report.CachedStopID = cachedStopID
				report.CachedCancel = cached
			}
		}
	}
	return raw, submitErr
}

func (s *Service) submitFractionalSell(ctx context.Context, symbol string, qty decimal.Decimal) (map[string]any, error) {
	quote, err := s.client.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	accountURL, err := s.resolver.AccountURL(ctx)
	if err != nil {
		return nil, err
	}
	instURL, err := s.resolver.InstrumentURL(ctx, symbol, quote)
	if err != nil {
		return nil, err
	}
	payload, err := orders.FractionalPayload(types.OrderSideSell, quote, qty, accountURL, instURL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	raw, submitErr := s.submitter.Submit(ctx, payload)
	log.Printf("[trade] sell market submit %s %.3fs", symbol, time.Since(start).Seconds())
	return raw, submitErr
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rhbridge/internal/types"
)

type Config struct {
	HTTPAddr        string
	APIBase         string
	Username        string
	Password        string
	AutoLoginDelay  time.Duration
	CredFile        string
	CredKey         string
	InternalToken   string
	WebSocketOrigin string
	SellCancelMode  types.CancelMode
	AutoStopEnabled bool
	AutoStopMaxWait time.Duration
	BuyWholeShares  bool
	TickerLimit     int
}

func Load() (Config, error) {
	var c Config
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		c.HTTPAddr = "127.0.0.1:8787"
	}
	c.APIBase = strings.TrimRight(os.Getenv("RH_API_BASE"), "/")
	c.Username = os.Getenv("RH_USERNAME")
	c.Password = os.Getenv("RH_PASSWORD")

	delay := os.Getenv("RH_AUTO_LOGIN_DELAY")
	if delay == "" {
		c.AutoLoginDelay = 5 * time.Second
	} else {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return c, errors.New("invalid RH_AUTO_LOGIN_DELAY")
		}
		c.AutoLoginDelay = d
	}

	c.CredFile = os.Getenv("CRED_FILE")
	if c.CredFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return c, err
		}
		c.CredFile = filepath.Join(home, ".tokens", "robinhood.json")
	}
	c.CredKey = os.Getenv("CRED_KEY")
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}

	mode, err := parseCancelMode(os.Getenv("RH_SELL_CANCEL_OPEN"))
	if err != nil {
		return c, err
	}
	c.SellCancelMode = mode

	autoStop := os.Getenv("AUTO_STOP_ENABLED")
	if autoStop != "" {
		b, err := strconv.ParseBool(autoStop)
		if err != nil {
			return c, errors.New("invalid AUTO_STOP_ENABLED")
		}
		c.AutoStopEnabled = b
	}
	maxWait := os.Getenv("AUTO_STOP_MAX_WAIT")
	if maxWait == "" {
		c.AutoStopMaxWait = 12 * time.Second
	} else {
		d, err := time.ParseDuration(maxWait)
		if err != nil {
			return c, errors.New("invalid AUTO_STOP_MAX_WAIT")
		}
		c.AutoStopMaxWait = d
	}

	whole := os.Getenv("RH_BUY_DOLLARS_WHOLE_SHARES")
	if whole != "" {
		b, err := strconv.ParseBool(whole)
		if err != nil {
			return c, errors.New("invalid RH_BUY_DOLLARS_WHOLE_SHARES")
		}
		c.BuyWholeShares = b
	}

	limit := os.Getenv("TICKER_LIMIT")
	if limit == "" {
		c.TickerLimit = 30
	} else {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return c, errors.New("invalid TICKER_LIMIT")
		}
		c.TickerLimit = n
	}
	return c, nil
}

// parseCancelMode accepts the loose spellings the original bridge honored.
func parseCancelMode(raw string) (types.CancelMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "1", "true", "on", "yes", "y", "stop", "stops", "stoploss", "stop_loss":
		return types.CancelModeStop, nil
	case "all", "any":
		return types.CancelModeAll, nil
	case "0", "off", "false", "none", "no":
		return types.CancelModeNone, nil
	}
	return "", errors.New("invalid RH_SELL_CANCEL_OPEN: use stop, all or none")
}

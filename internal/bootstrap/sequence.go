package bootstrap

import (
	"context"
	"fmt"
	"time"

	"hedgegrid/config"
	"hedgegrid/internal/alert"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/exchange/binanceport"
	"hedgegrid/internal/exchange/bybitport"
	"hedgegrid/internal/exchange/hyperliquidport"
	"hedgegrid/internal/netcfg"
	"hedgegrid/internal/scheduler"
	"hedgegrid/internal/signal/indicator"
	"hedgegrid/logger"
	"hedgegrid/store"
)

// DefaultHooks is the engine's startup sequence: config → logger →
// store → exchange port → signal source → alerts → scheduler. main
// wires the status API on top of the returned Context once Run
// succeeds, since the API server's lifetime (not its construction)
// belongs to main's signal-handling loop.
func DefaultHooks(cfgPath string) []*Hook {
	return []*Hook{
		NewHook("config", 0, func(c *Context) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			c.Cfg = cfg
			return nil
		}).Build(),

		NewHook("logger", 10, func(c *Context) error {
			return logger.Init(&logger.Config{Level: c.Cfg.Log.Level})
		}).Build(),

		NewHook("store", 20, func(c *Context) error {
			st, err := store.Open(c.Cfg.DBPath)
			if err != nil {
				return err
			}
			c.Store = st
			return nil
		}).Build(),

		NewHook("exchange-port", 30, func(c *Context) error {
			port, err := buildPort(c.Cfg)
			if err != nil {
				return err
			}
			c.Port = port
			return nil
		}).Build(),

		NewHook("signal-source", 40, func(c *Context) error {
			c.Signal = indicator.NewSource()
			return nil
		}).Build(),

		NewHook("alerts", 50, func(c *Context) error {
			t, err := alert.NewTelegram(c.Cfg.TelegramBotToken, c.Cfg.TelegramChatID)
			if err != nil {
				return err
			}
			if t == nil {
				c.Alerts = alert.NoopSink{}
			} else {
				c.Alerts = t
			}
			return nil
		}).Build(),

		NewHook("scheduler", 60, func(c *Context) error {
			equityFn := c.Port.AccountEquity
			c.Scheduler = scheduler.New(c.Cfg, c.Port, c.Signal, c.Alerts, equityFn)
			return nil
		}).Build(),
	}
}

func buildPort(cfg *config.Config) (exchange.Port, error) {
	httpClient := netcfg.HTTPClient(10 * time.Second)
	switch cfg.Exchange.Venue {
	case "binance":
		return binanceport.New(cfg.Exchange.APIKey, cfg.Exchange.APISecret, httpClient), nil
	case "bybit":
		return bybitport.New(cfg.Exchange.APIKey, cfg.Exchange.APISecret, httpClient), nil
	case "hyperliquid":
		return hyperliquidport.New(context.Background(), cfg.Exchange.APISecret, cfg.Exchange.APIKey, false)
	default:
		return nil, fmt.Errorf("unknown exchange venue %q (want binance, bybit, or hyperliquid)", cfg.Exchange.Venue)
	}
}

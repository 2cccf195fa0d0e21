// Command engine runs the hedge-mode grid-trading engine: bootstrap
// sequence, per-symbol scheduler, and the read-only status API.
//
// Grounded on the teacher's main.go signal-handling/graceful-shutdown
// shape (sigChan/signal.Notify/StopAll), trimmed of the admin-mode,
// JWT, and config.json-to-database sync concerns that belonged to its
// multi-tenant web frontend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hedgegrid/api"
	"hedgegrid/internal/bootstrap"
	"hedgegrid/logger"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to the engine config file")
	flag.Parse()

	hooks := bootstrap.DefaultHooks(*cfgPath)
	runner := bootstrap.NewRunner(hooks)
	bootCtx := &bootstrap.Context{}
	if err := runner.Run(bootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootCtx.Scheduler.Start(ctx)
	logger.Infof("engine: scheduler started for %d symbols", len(bootCtx.Cfg.SymbolsAllowed))

	apiServer := api.NewServer(bootCtx.Scheduler, bootCtx.Store, bootCtx.Cfg.APIPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Errorf("engine: status api error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Infof("engine: shutdown signal received, stopping")
	if err := apiServer.Shutdown(context.Background()); err != nil {
		logger.Warnf("engine: status api shutdown error: %v", err)
	}
	bootCtx.Scheduler.Stop()
	if err := bootCtx.Store.Close(); err != nil {
		logger.Warnf("engine: store close error: %v", err)
	}
	logger.Infof("engine: stopped")
}

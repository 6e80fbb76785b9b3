package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
)

func main() {
	srvCfg := loadServerConfig()
	logger := NewLogger(srvCfg.LogLevel)

	simCfg, err := sim.LoadConfig(srvCfg.ConfigFile)
	if err != nil {
		logger.Fatalf("loading simulation config: %v", err)
	}

	srv := NewServer(simCfg, logger)
	srv.Start()

	httpSrv := &http.Server{Addr: srvCfg.Addr, Handler: srv.routes()}
	go func() {
		logger.Infof("swarm-server listening on %s", srvCfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down")
	httpSrv.Close()
	srv.Shutdown()

	if srvCfg.HistoryCSV != "" {
		if err := srv.history.WriteCSVFile(srvCfg.HistoryCSV); err != nil {
			logger.Errorf("writing run history: %v", err)
		} else {
			logger.Infof("run history written to %s", srvCfg.HistoryCSV)
		}
	}
}

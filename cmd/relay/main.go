// Command relay runs the WebSocket signaling hub for deployments without a
// message broker.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"carelink/core"
	"carelink/signaling"
)

func main() {
	var addr, logFile string
	flag.StringVar(&addr, "addr", ":19310", "listen address")
	flag.StringVar(&logFile, "log", "", "rotating log file (stdout only when empty)")
	flag.Parse()

	if logFile != "" {
		core.SetLogger(*core.NewProductionLogger(logFile))
	}
	logger := core.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	server := signaling.NewRelayServer(logger)
	if err := server.Serve(ctx, addr); err != nil {
		logger.Error("relay server failed", "error", err)
		os.Exit(1)
	}
}

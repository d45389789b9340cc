package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"telnet_testserver/internal/client/telnet"
	"telnet_testserver/internal/shared/config"
	"telnet_testserver/internal/shared/logger"
	"telnet_testserver/internal/shared/types"
)

// errDone ends the run once enough messages were verified.
var errDone = errors.New("requested message count reached")

func main() {
	host := flag.String("host", config.DefaultHost, "Server host")
	port := flag.Int("port", config.DefaultPort, "Server port")
	maxAttempts := flag.Int("max-attempts", 0, "Maximum reconnection attempts (0 for infinite)")
	count := flag.Int("count", 0, "Stop after this many verified messages (0 runs until interrupted)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := logger.Init(types.LogConf{Level: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	client, err := telnet.NewClient(telnet.LinkConfig{
		Host:                 *host,
		Port:                 *port,
		MaxReconnectAttempts: *maxAttempts,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid link configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		splitter telnet.LineSplitter
		checker  = telnet.NewChecker()
		verified int
	)
	handler := func(data []byte) error {
		for _, line := range splitter.Feed(data) {
			msg, err := checker.Line(line)
			if err != nil {
				logger.Error().Err(err).Str("line", line).Msg("Stream check failed")
				return err
			}
			if msg == nil {
				logger.Info().Msg("Banner received")
				continue
			}
			verified++
			logger.Info().Int("count", msg.Count).Str("timestamp", msg.Timestamp).Msg(msg.Message)
			if *count > 0 && verified >= *count {
				return errDone
			}
		}
		return nil
	}

	// every connection starts a fresh stream
	client.OnConnect = func() {
		splitter = telnet.LineSplitter{}
		checker.Reset()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = client.Run(runCtx, func(data []byte) error {
		if herr := handler(data); herr != nil {
			if errors.Is(herr, errDone) {
				cancel()
				return nil
			}
			return herr
		}
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Int("verified", verified).Msg("Stream check failed")
	}
	logger.Info().Int("verified", verified).Msg("Stream check finished")
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/guardian-recovery/cmd/flags"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/httpserver"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/keystore"
	"github.com/ruteri/guardian-recovery/kms"
	"github.com/ruteri/guardian-recovery/notify"
	"github.com/ruteri/guardian-recovery/recovery"
	"github.com/ruteri/guardian-recovery/storage"
	"github.com/urfave/cli/v2"
)

var flagUnsealTimeout = &cli.DurationFlag{
	Name:  "unseal-timeout",
	Value: 0,
	Usage: "give up if operators have not unsealed within this duration (0 waits forever)",
}

var flagSharesOut = &cli.StringFlag{
	Name:     "out",
	Required: true,
	Usage:    "file to write the encrypted operator shares to",
}

func main() {
	serverFlags := append([]cli.Flag{
		flags.ListenAddrFlag,
		flags.StorageFlag,
		flags.TimelockFlag,
		flags.InactivityDefaultFlag,
		flags.MinGuardiansFlag,
		flags.MaxGuardiansFlag,
		flags.SealOperatorsFlag,
		flags.SealThresholdFlag,
		flagUnsealTimeout,
	}, flags.CommonFlags...)

	app := &cli.App{
		Name:   "recovery-server",
		Usage:  "Serve the guardian recovery API",
		Flags:  serverFlags,
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:  "seal-init",
				Usage: "Generate a sealing key and split it among the operators",
				Flags: append([]cli.Flag{
					flags.SealOperatorsFlag,
					flags.SealThresholdFlag,
					flagSharesOut,
				}, flags.LogFlags...),
				Action: runSealInit,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger)

	recoveryCfg, err := flags.ConfigureRecovery(cCtx)
	if err != nil {
		logger.Error("Invalid recovery configuration", "err", err)
		return err
	}

	locations, err := flags.StorageLocations(cCtx)
	if err != nil {
		logger.Error("Invalid storage configuration", "err", err)
		return err
	}
	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Failed to create storage backend", "err", err)
		return err
	}
	logger.Info("Storage ready", slog.String("backend", backend.Name()))

	sealerConfig, err := flags.SealerConfig(cCtx)
	if err != nil {
		logger.Error("Failed to load seal operators", "err", err)
		return err
	}

	var sealer *kms.ShamirSealer
	var recordSealer interfaces.Sealer = kms.NoopSealer{}
	if sealerConfig != nil {
		sealer, err = kms.NewShamirSealerRecovery(*sealerConfig)
		if err != nil {
			logger.Error("Failed to create sealer", "err", err)
			return err
		}
		recordSealer = sealer
		logger.Info("At-rest sealing enabled",
			"threshold", sealerConfig.Threshold,
			"operators", len(sealerConfig.OperatorPubKeys))
	}

	verifier := cryptoutils.PersonalSignVerifier{}
	records := storage.NewRecordStore(backend, recordSealer, logger)
	keys := keystore.NewKeystore(backend, logger)
	transport := notify.NewMailboxTransport(backend, nil, logger)

	svc, err := recovery.NewService(recoveryCfg, recovery.Dependencies{
		Configs:   records.Configs(),
		Requests:  records.Requests(),
		Keys:      keys,
		Transport: transport,
		Verifier:  verifier,
	}, logger)
	if err != nil {
		logger.Error("Failed to create recovery service", "err", err)
		return err
	}

	metricsSrv, err := httpserver.NewMetricsServer(cfg)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	handler := httpserver.NewHandler(httpserver.HandlerConfig{
		Service:      svc,
		Keys:         keys,
		Transport:    transport,
		Verifier:     verifier,
		Metrics:      metricsSrv.Metrics,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}, logger)

	var opts []httpserver.Option
	if sealer != nil {
		opts = append(opts, httpserver.WithSealing(httpserver.NewSealHandler(sealer, metricsSrv.Metrics, logger), sealer))
	}

	server, err := httpserver.New(cfg, metricsSrv, handler, opts...)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	if sealer != nil {
		if err := waitUnsealed(sealer, cCtx.Duration(flagUnsealTimeout.Name), exit, logger); err != nil {
			server.Shutdown()
			return err
		}
	}

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// waitUnsealed blocks until operators unseal, the timeout passes or a signal arrives.
func waitUnsealed(sealer *kms.ShamirSealer, timeout time.Duration, exit <-chan os.Signal, logger *slog.Logger) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-exit:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Waiting for operators to unseal", "timeout", timeout)
	if err := sealer.WaitUnlocked(ctx); err != nil {
		logger.Error("Sealer was not unlocked", "err", err)
		return err
	}
	logger.Info("Sealer unlocked, recovery API is available")
	return nil
}

func runSealInit(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	sealerConfig, err := flags.SealerConfig(cCtx)
	if err != nil {
		return err
	}
	if sealerConfig == nil {
		return errors.New("--seal-operators is required")
	}

	key, err := kms.GenerateSealingKey()
	if err != nil {
		return err
	}
	defer cryptoutils.WipeBytes(key)

	_, shares, err := kms.NewShamirSealer(key, *sealerConfig)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(kms.SharesFile{Threshold: sealerConfig.Threshold, Shares: shares}, "", "  ")
	if err != nil {
		return err
	}
	out := cCtx.String(flagSharesOut.Name)
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write shares: %w", err)
	}

	logger.Info("Sealing key generated",
		slog.String("out", out),
		"operators", len(shares),
		"threshold", sealerConfig.Threshold)
	return nil
}

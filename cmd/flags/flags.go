package flags

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/common"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/kms"
	"github.com/ruteri/guardian-recovery/recovery"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		MaxBodyBytes:             api.DefaultMaxBodyBytes,
	}
}

// ConfigureRecovery builds the service limits from flags.
func ConfigureRecovery(cCtx *cli.Context) (recovery.Config, error) {
	cfg := recovery.Config{
		MinGuardians:            cCtx.Int(MinGuardiansFlag.Name),
		MaxGuardians:            cCtx.Int(MaxGuardiansFlag.Name),
		Timelock:                cCtx.Duration(TimelockFlag.Name),
		DefaultInactivityPeriod: cCtx.Duration(InactivityDefaultFlag.Name),
	}
	return cfg, cfg.Validate()
}

// StorageLocations parses every --storage URI.
func StorageLocations(cCtx *cli.Context) ([]interfaces.StorageBackendLocation, error) {
	uris := cCtx.StringSlice(StorageFlag.Name)
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("storage %q: %w", uri, err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}

// SealerConfig loads the operators file. It returns nil when sealing is disabled.
func SealerConfig(cCtx *cli.Context) (*kms.SealerConfig, error) {
	path := cCtx.String(SealOperatorsFlag.Name)
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	operators, err := kms.LoadOperatorKeys(f)
	if err != nil {
		return nil, err
	}
	return &kms.SealerConfig{
		Threshold:       cCtx.Int(SealThresholdFlag.Name),
		OperatorPubKeys: kms.PubKeys(operators),
	}, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Value: cli.NewStringSlice("memory://"),
	Usage: "storage backend URI (memory://, file://, s3://, vault://, redis://, badger://); repeat for replicated storage",
}

var TimelockFlag = &cli.DurationFlag{
	Name:  "timelock",
	Value: recovery.DefaultTimelock,
	Usage: "delay between initiating and completing a recovery",
}
var InactivityDefaultFlag = &cli.DurationFlag{
	Name:  "inactivity-default",
	Value: recovery.DefaultInactivityPeriod,
	Usage: "inactivity period used when inheritance is configured without one",
}
var MinGuardiansFlag = &cli.IntFlag{
	Name:  "min-guardians",
	Value: recovery.DefaultMinGuardians,
	Usage: "minimum number of guardians per wallet",
}
var MaxGuardiansFlag = &cli.IntFlag{
	Name:  "max-guardians",
	Value: recovery.DefaultMaxGuardians,
	Usage: "maximum number of guardians per wallet",
}

var SealOperatorsFlag = &cli.StringFlag{
	Name:  "seal-operators",
	Usage: "JSON file with operator public keys; enables at-rest sealing of recovery records",
}
var SealThresholdFlag = &cli.IntFlag{
	Name:  "seal-threshold",
	Value: 2,
	Usage: "number of operator shares required to unseal",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "guardian-recovery",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var CommonFlags = append([]cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}, LogFlags...)

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/agent"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/cluster"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/config"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/stores"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
	sshtransport "github.com/ldd91/integrated-manager-for-lustre/pkg/transports/ssh"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the manager",
		Long: `Start the manager: open the store, register the configured hosts and
their cluster service configurations, and run the scheduling engine until
interrupted. The configuration file is watched so the log level can be
changed without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	log, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if cfg.Telemetry.Metrics.Enabled {
		if err := metrics.StartMetricsServer(log); err != nil {
			return err
		}
	}

	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing,
		cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	recorder := events.NewRecorder(store, log)
	alertSvc := alerts.NewService(store, recorder, log, metrics)
	cluster.RegisterAlerts(alertSvc)

	registry := engine.NewObjectRegistry()
	inventory := cluster.NewInventory(registry, recorder)

	transport := sshtransport.NewTransport(sshResolver(cfg), log)
	defer transport.Close()
	caller := agent.NewClient(transport, cfg.Engine.AgentTimeout, log, metrics)

	scheduler := engine.NewScheduler(engine.Config{
		StepTimeout:    cfg.Engine.StepTimeout,
		MaxStepRetries: cfg.Engine.MaxStepRetries,
	}, registry, store, caller, alertSvc, log, metrics)
	defer scheduler.Close()

	if err := registerHosts(ctx, cfg, inventory, store, alertSvc, log); err != nil {
		return err
	}

	log.WithField("hosts", len(cfg.Hosts)).Info("manager started")

	if _, err := os.Stat(configPath); err == nil {
		err = config.Watch(ctx, configPath, log)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return err
	}

	<-ctx.Done()
	return nil
}

// registerHosts rebuilds the object graph from configuration, restoring
// persisted states where the store has seen the object before.
func registerHosts(
	ctx context.Context,
	cfg *config.Config,
	inventory *cluster.Inventory,
	store *stores.SQLiteStore,
	alertSvc *alerts.Service,
	log *telemetry.Logger,
) error {
	for _, hc := range cfg.Hosts {
		address := hc.Address
		if address == "" {
			address = hc.FQDN
		}
		host, err := cluster.NewManagedHost(hc.ID, hc.FQDN, address, alertSvc)
		if err != nil {
			return err
		}
		for _, obj := range []engine.StatefulObject{host, host.Corosync, host.Pacemaker} {
			state, modifiedAt, err := store.LoadObjectState(ctx, obj.Ref())
			if err != nil {
				// First sight of the object: persist its initial state.
				if err := store.SaveObjectState(ctx, obj.Ref(), obj.State(), obj.StateModifiedAt()); err != nil {
					return err
				}
				continue
			}
			if err := obj.(stateRestorer).RestoreState(state, modifiedAt); err != nil {
				return err
			}
		}
		if err := inventory.AddHost(host); err != nil {
			return err
		}
		log.WithHost(hc.FQDN).WithField("state", host.State()).Debug("registered host")
	}
	return nil
}

type stateRestorer interface {
	RestoreState(state string, modifiedAt time.Time) error
}

func sshResolver(cfg *config.Config) sshtransport.ConfigResolver {
	return func(host string) (*sshtransport.Config, error) {
		for _, hc := range cfg.Hosts {
			if hc.FQDN != host {
				continue
			}
			user := hc.User
			if user == "" {
				user = cfg.SSH.User
			}
			sc := sshtransport.DefaultConfig(host, user)
			if hc.Address != "" {
				sc.Host = hc.Address
			}
			if hc.Port != 0 {
				sc.Port = hc.Port
			} else if cfg.SSH.Port != 0 {
				sc.Port = cfg.SSH.Port
			}
			if cfg.SSH.PrivateKeyPath != "" {
				sc.PrivateKeyPath = cfg.SSH.PrivateKeyPath
			}
			if cfg.SSH.KnownHostsPath != "" {
				sc.KnownHostsPath = cfg.SSH.KnownHostsPath
			}
			sc.StrictHostKeyChecking = cfg.SSH.StrictHostKeyChecking
			if cfg.SSH.ConnectionTimeout > 0 {
				sc.ConnectionTimeout = cfg.SSH.ConnectionTimeout
			}
			if cfg.SSH.AgentBinaryPath != "" {
				sc.AgentBinaryPath = cfg.SSH.AgentBinaryPath
				sc.AgentCommand = cfg.SSH.AgentBinaryPath + " session"
			}
			return sc, nil
		}
		return nil, fmt.Errorf("host not in inventory: %s", host)
	}
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

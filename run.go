package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/admin"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cache"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/connection"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/dedup"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/dispatch"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/fetch"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/polling"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/realtime"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/telemetry"
)

const statsInterval = 5 * time.Second

func newRunCommand() *cobra.Command {
	var (
		configPath string
		overrides  cfg.Overrides
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath, overrides)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&overrides.ChannelURL, "url", "", "Push channel URL (overrides config)")
	cmd.Flags().StringVar(&overrides.Transport, "transport", "", "Push transport: websocket, nats or kafka (overrides config)")
	cmd.Flags().IntVar(&overrides.AdminPort, "admin-port", 0, "Admin HTTP port (overrides config)")
	cmd.Flags().StringVar(&overrides.ClientID, "client-id", "", "Client ID (overrides config, empty=auto)")
	cmd.Flags().BoolVarP(&overrides.Verbose, "verbose", "v", false, "Debug logging")
	return cmd
}

func runDaemon(ctx context.Context, configPath string, overrides cfg.Overrides) error {
	if err := cfg.Load(configPath, overrides); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging()

	log.Info().Str("version", version).Msg("Wasilah realtime sync")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	conf := cfg.Config

	transport, err := channel.New(conf.Channel, conf.ClientID)
	if err != nil {
		return err
	}
	conn := connection.NewManager(transport, connection.Options{
		ReconnectInterval:    conf.Channel.ReconnectInterval(),
		MaxReconnectAttempts: conf.Channel.MaxReconnectAttempts,
		MaxBackoff:           conf.Channel.MaxBackoff(),
		HeartbeatInterval:    conf.Channel.HeartbeatInterval(),
		DialTimeout:          conf.Channel.DialTimeout(),
		SendQueueSize:        conf.Channel.SendQueueSize,
		OnError: func(err error) {
			log.Debug().Err(err).Msg("Push channel error")
		},
		OnReconnectAttempt: func(attempt int, delay time.Duration) {
			log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Push channel reconnect scheduled")
		},
	})

	mem, err := cache.NewMemory(conf.Cache.Size)
	if err != nil {
		return err
	}
	defer mem.Close()

	table, err := dispatch.TableFromConfig(conf.Entities)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(mem, table)

	source, err := fetch.Open(ctx, conf.Source, func(e event.Entity) string {
		return conf.TableFor(string(e))
	})
	if err != nil {
		return err
	}
	defer source.Close()

	fetchers := make(map[event.Entity]polling.Fetcher)
	for _, e := range dispatcher.Entities() {
		fetchers[e] = source.Fetcher(e)
	}

	poller := polling.New(polling.Options{
		InitialInterval:     conf.Polling.InitialInterval(),
		MinInterval:         conf.Polling.MinInterval(),
		MaxInterval:         conf.Polling.MaxInterval(),
		IdleRounds:          conf.Polling.IdleRounds,
		FetchTimeout:        conf.Polling.FetchTimeout(),
		EmitInitialSnapshot: conf.Polling.EmitInitialSnapshot,
		OnError: func(err error) {
			log.Debug().Err(err).Msg("Poll cycle error")
		},
	})

	rt, err := realtime.New(realtime.Options{
		Conn:           conn,
		Poller:         poller,
		Dispatcher:     dispatcher,
		Dedup:          dedup.New(conf.Dedup.Window()),
		Cache:          mem,
		DisablePolling: !conf.Polling.Enabled,
		Fetchers:       fetchers,
		AlwaysPoll:     alwaysPoll(conf),
	})
	if err != nil {
		return err
	}

	release := observeMappings(dispatcher, fetchers, mem)
	defer release()

	rt.Start()
	defer rt.Stop()

	collector := telemetry.NewMetricsCollector(rt, statsInterval)
	collector.Start()
	defer collector.Stop()

	if conf.Admin.Enabled {
		handlers := admin.NewAdminHandlers(rt, mem)
		srv := admin.NewServer(conf.Admin.BindAddress, conf.Admin.Port,
			admin.NewRouter(handlers, conf.Admin.Secret, telemetry.GetMetricsHandler()))
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	go func() {
		err := cfg.Watch(ctx, configPath, func(next *cfg.Configuration) {
			applyReload(next, dispatcher, rt)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Configuration hot reload disabled")
		}
	}()

	log.Info().
		Str("transport", transport.Name()).
		Str("source", string(conf.Source.Type)).
		Int("entities", len(fetchers)).
		Msg("Realtime sync is operational")

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping realtime sync")
	return nil
}

func alwaysPoll(c *cfg.Configuration) []event.Entity {
	var out []event.Entity
	for _, name := range c.EntityNames() {
		if c.AlwaysPoll(name) {
			out = append(out, event.Entity(name))
		}
	}
	return out
}

// observeMappings keeps every key the dispatcher invalidates observed, with
// the entity snapshot as its loader, so the daemon's cache refetches on
// change. It returns a function releasing all observers.
func observeMappings(d *dispatch.Dispatcher, fetchers map[event.Entity]polling.Fetcher, mem *cache.Memory) func() {
	var releases []func()
	for entity, fetcher := range fetchers {
		query := func(ctx context.Context) (any, error) {
			return fetcher(ctx)
		}
		for _, m := range d.Mappings(entity) {
			key := m.CacheKey
			if m.Policy == dispatch.PolicyPatch {
				key = m.ListKey()
			}
			releases = append(releases, mem.Observe(key, query))
		}
	}
	return func() {
		for _, release := range releases {
			release()
		}
	}
}

// applyReload pushes the reloadable parts of a new configuration into the
// running components. Transport and source changes need a restart.
func applyReload(next *cfg.Configuration, d *dispatch.Dispatcher, rt *realtime.Realtime) {
	table, err := dispatch.TableFromConfig(next.Entities)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring reloaded entity mappings")
	} else {
		d.SetTable(table)
	}
	rt.SetPollBounds(next.Polling.MinInterval(), next.Polling.MaxInterval())
	rt.SetAlwaysPoll(alwaysPoll(next))
	log.Info().Msg("Configuration reloaded")
}

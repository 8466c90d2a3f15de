// rfc5444d is the RFC 5444 packet codec and in-node distribution daemon:
// it decodes packets arriving on configured interfaces, dispatches their
// messages to registered consumers, and re-floods eligible messages
// according to the hop-limit/duplicate-set forwarding rules.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/oonf-project/rfc5444d/internal/config"
	"github.com/oonf-project/rfc5444d/internal/metrics"
	"github.com/oonf-project/rfc5444d/internal/netio"
	"github.com/oonf-project/rfc5444d/internal/rfc5444"
	"github.com/oonf-project/rfc5444d/internal/server"
	appversion "github.com/oonf-project/rfc5444d/internal/version"
)

// shutdownTimeout bounds how long HTTP servers are given to drain active
// connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

var (
	errNoTimerForTarget = errors.New("no aggregation timer registered for target")
	errNoLocalAddr      = errors.New("no local address of matching family on interface")
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rfc5444d starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	registry := rfc5444.NewRegistry(logger)

	if err := runDaemon(cfg, registry, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("rfc5444d exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("rfc5444d stopped")
	return 0
}

// binding ties one configured interface to its transport, the protocol
// it belongs to, its default multicast target, and that target's
// aggregation timer.
type binding struct {
	protocolName string
	ifaceName    string
	protocol     *rfc5444.Protocol
	transport    *netio.UDPTransport
	target       *rfc5444.Target
	timer        *rfc5444.AggregationTimer
	self         netip.Addr
	holdTime     time.Duration
}

// runDaemon builds the protocol/interface/target topology from cfg,
// starts the receive loops, admin/metrics HTTP servers, and systemd
// integration goroutines under one errgroup, and blocks until shutdown.
func runDaemon(
	cfg *config.Config,
	registry *rfc5444.Registry,
	collector *metrics.Collector,
	promReg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	tm := newTimerManager()

	bindings, err := buildTopology(cfg, registry, tm, logger)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}
	defer closeBindings(bindings, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	for _, b := range bindings {
		if b.timer != nil {
			b.timer.Arm(gCtx)
		}
		g.Go(func() error {
			runReceiveLoop(gCtx, b, collector, logger)
			return nil
		})
	}

	adminSrv := newAdminServer(cfg.Admin, registry, tm, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, promReg)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(gCtx, &lc, adminSrv, cfg.Admin.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// addressFamily names one of an interface's two independently-enabled
// multicast families (spec.md §6: "absence disables that family").
type addressFamily struct {
	name      string
	groupAddr func(config.InterfaceConfig) (netip.Addr, error)
	bindAddr  func(config.InterfaceConfig) (netip.Addr, error)
}

var addressFamilies = []addressFamily{
	{name: "v4", groupAddr: config.InterfaceConfig.MulticastV4Addr, bindAddr: config.InterfaceConfig.BindToV4Addr},
	{name: "v6", groupAddr: config.InterfaceConfig.MulticastV6Addr, bindAddr: config.InterfaceConfig.BindToV6Addr},
}

// buildTopology creates one rfc5444.Protocol per config.ProtocolConfig,
// one rfc5444.Interface per config.InterfaceConfig, and one
// netio.UDPTransport per interface/address-family for which a multicast
// group is configured (each family is independent per spec.md §6), with
// a default multicast Target and its own aggregation timer.
func buildTopology(
	cfg *config.Config,
	registry *rfc5444.Registry,
	tm *timerManager,
	logger *slog.Logger,
) ([]binding, error) {
	var bindings []binding

	for _, pc := range cfg.Protocols {
		protocol := registry.AddProtocol(pc.Name, pc.AggregationInterval, pc.MTU)

		for _, ic := range pc.Interfaces {
			iface := protocol.AddInterface(ic.Name)

			allow, deny, err := ic.ACL.Parse()
			if err != nil {
				return nil, fmt.Errorf("protocol %s interface %s: %w", pc.Name, ic.Name, err)
			}
			acl := netio.ACL{Allow: allow, Deny: deny}

			for _, fam := range addressFamilies {
				group, err := fam.groupAddr(ic)
				if err != nil {
					return nil, fmt.Errorf("protocol %s interface %s: %w", pc.Name, ic.Name, err)
				}
				if !group.IsValid() {
					continue
				}

				bindAddr, err := fam.bindAddr(ic)
				if err != nil {
					return nil, fmt.Errorf("protocol %s interface %s: %w", pc.Name, ic.Name, err)
				}

				transport, err := netio.NewUDPTransport(ic.Name, bindAddr, group, ic.Port, acl)
				if err != nil {
					return nil, fmt.Errorf("protocol %s interface %s (%s): create transport: %w", pc.Name, ic.Name, fam.name, err)
				}

				self, selfErr := localAddrOn(ic.Name, group)
				if selfErr != nil {
					logger.Warn("could not determine local address, forwarding is disabled on this interface",
						slog.String("protocol", pc.Name), slog.String("interface", ic.Name),
						slog.String("family", fam.name), slog.String("error", selfErr.Error()))
				}

				b := binding{
					protocolName: pc.Name,
					ifaceName:    ic.Name,
					protocol:     protocol,
					transport:    transport,
					self:         self,
					holdTime:     pc.HoldTime,
				}

				target := iface.AddTarget(group, transport)
				if ic.RequireSequenceNumbers {
					target.RequireSequenceNumbers(1)
				}
				timer := rfc5444.NewAggregationTimer(protocol.Writer(), target, pc.AggregationInterval, logger)
				tm.register(target, timer)
				b.target = target
				b.timer = timer

				bindings = append(bindings, b)
			}
		}
	}

	return bindings, nil
}

// localAddrOn returns the first address on ifaceName matching group's
// address family, used as the node's own address for forwarding's
// self-origination check.
func localAddrOn(ifaceName string, group netip.Addr) (netip.Addr, error) {
	if ifaceName == "" {
		return netip.Addr{}, fmt.Errorf("no interface name: %w", errNoLocalAddr)
	}

	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("lookup interface %s: %w", ifaceName, err)
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list addresses on %s: %w", ifaceName, err)
	}

	wantV6 := group.Is6() && !group.Is4In6()
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is6() == wantV6 {
			return addr, nil
		}
	}

	return netip.Addr{}, fmt.Errorf("interface %s: %w", ifaceName, errNoLocalAddr)
}

func closeBindings(bindings []binding, logger *slog.Logger) {
	for _, b := range bindings {
		if b.timer != nil {
			b.timer.Stop()
		}
		if err := b.transport.Close(); err != nil {
			logger.Warn("failed to close transport",
				slog.String("interface", b.ifaceName), slog.String("error", err.Error()))
		}
	}
}

// -------------------------------------------------------------------------
// Receive Loop
// -------------------------------------------------------------------------

// runReceiveLoop reads packets from b.transport until ctx is cancelled,
// dispatching each decoded message to the protocol's registered
// consumers and re-flooding eligible ones via the binding's default
// target.
func runReceiveLoop(ctx context.Context, b binding, collector *metrics.Collector, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		buf, meta, err := b.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("transport recv error",
				slog.String("interface", b.ifaceName), slog.String("error", err.Error()))
			continue
		}

		pkt, err := b.protocol.ProcessPacket(buf)
		if err != nil {
			collector.IncPacketsDropped(b.ifaceName, "decode_error")
			rfc5444.LogMalformed(logger.With(
				slog.String("interface", b.ifaceName),
				slog.String("src", meta.SrcAddr.String())), buf, err)
			continue
		}

		collector.IncPacketsReceived(b.ifaceName)

		for _, msg := range pkt.Messages {
			collector.IncMessagesProcessed(msg.Header.Type)
			forwardMessage(ctx, b, msg, collector, logger)
		}
	}
}

func forwardMessage(ctx context.Context, b binding, msg rfc5444.Message, collector *metrics.Collector, logger *slog.Logger) {
	if b.target == nil || !b.self.IsValid() {
		return
	}

	raw, forward, err := b.protocol.ProcessForward(msg, b.self, b.holdTime)
	if err != nil {
		collector.IncMessagesDropped(msg.Header.Type)
		logger.Warn("prepare forward failed",
			slog.String("protocol", b.protocolName), slog.String("error", err.Error()))
		return
	}
	if !forward {
		return
	}

	if err := b.protocol.Writer().ForwardMessage(b.target, raw); err != nil {
		collector.IncMessagesDropped(msg.Header.Type)
		logger.Warn("enqueue forward failed",
			slog.String("protocol", b.protocolName), slog.String("error", err.Error()))
		return
	}
	if b.timer != nil {
		b.timer.Arm(ctx)
	}
	collector.IncMessagesForwarded(msg.Header.Type)
}

// -------------------------------------------------------------------------
// Admin/Metrics Servers
// -------------------------------------------------------------------------

// timerManager maps each live Target to its AggregationTimer so the
// admin surface (internal/server) can force an immediate flush without
// owning the timer lifecycle itself.
type timerManager struct {
	mu     sync.Mutex
	timers map[*rfc5444.Target]*rfc5444.AggregationTimer
}

func newTimerManager() *timerManager {
	return &timerManager{timers: make(map[*rfc5444.Target]*rfc5444.AggregationTimer)}
}

func (tm *timerManager) register(t *rfc5444.Target, timer *rfc5444.AggregationTimer) {
	tm.mu.Lock()
	tm.timers[t] = timer
	tm.mu.Unlock()
}

// FlushTarget implements server.AggregationTimers.
func (tm *timerManager) FlushTarget(ctx context.Context, _ string, target *rfc5444.Target) error {
	tm.mu.Lock()
	timer, ok := tm.timers[target]
	tm.mu.Unlock()

	if !ok {
		return fmt.Errorf("flush target %s: %w", target.Addr, errNoTimerForTarget)
	}
	return timer.FlushNow(ctx)
}

func newAdminServer(cfg config.AdminConfig, registry *rfc5444.Registry, tm *timerManager, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(registry, tm, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Systemd Integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig reloads the log level from a fresh read of the config
// file. Topology changes (added/removed protocols, interfaces) require
// a restart: reconciling live sockets and duplicate-set state on SIGHUP
// is not implemented.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()), slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Config + Logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

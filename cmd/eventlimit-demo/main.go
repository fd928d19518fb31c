// Command eventlimit-demo is a small UDP command server for exercising the
// limiter against a real (or dry-run) Sentry project. Each datagram is a
// command that raises an error or captures a message; the limiter decides
// which of those reach the backend.
//
//	echo 1 | nc -u 127.0.0.1 8000
//
// Commands: 1, 2 (two distinct errors), 3 (wrapped error), 4 (stackless
// log-style message), storm <n> <rps>, stats.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/eventlimit"
	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/fingerprint"
	"github.com/keithlinneman/eventlimit/internal/cfg"
	"github.com/keithlinneman/eventlimit/internal/health"
	"github.com/keithlinneman/eventlimit/internal/log"
	"github.com/keithlinneman/eventlimit/internal/metrics"
	"github.com/keithlinneman/eventlimit/internal/opshttp"
	"github.com/keithlinneman/eventlimit/internal/otelx"
	"github.com/keithlinneman/eventlimit/internal/prof"
	v "github.com/keithlinneman/eventlimit/internal/version"
	"github.com/keithlinneman/eventlimit/sentryhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix EVENTLIMIT_ and validate
	cfg.FillFromEnv(flag.CommandLine, "EVENTLIMIT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "demo")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"listen_addr", conf.ListenAddr,
		"admin_port", conf.AdminPort,
		"max_events_per_window", conf.MaxEventsPerWindow,
		"window", conf.Window,
		"max_fingerprints", conf.MaxFingerprints,
		"stack_depth", conf.StackDepth,
		"sentry_enabled", conf.SentryDSN != "",
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "demo",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "demo",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "demo", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// Build the fingerprinter from config
	rules, err := fingerprint.ParseRules(conf.NormalizeRules)
	if err != nil {
		L.Error(ctx, err, "invalid normalize rules")
		os.Exit(1)
	}
	fp, err := fingerprint.New(fingerprint.Options{
		StackDepth: conf.StackDepth,
		Rules:      rules,
	})
	if err != nil {
		L.Error(ctx, err, "fingerprinter init failed")
		os.Exit(1)
	}

	// The limiter itself. Drops and evictions feed metrics through the
	// callbacks; the first drop of a window is also logged so a storm shows
	// up once in the logs instead of per event.
	limiter, err := eventlimit.New(ctx,
		eventlimit.WithLimit(conf.MaxEventsPerWindow),
		eventlimit.WithWindow(conf.Window),
		eventlimit.WithMaxFingerprints(conf.MaxFingerprints),
		eventlimit.WithFingerprinter(fp),
		eventlimit.WithOnDrop(func(fpr string) {
			m.IncDropped()
		}),
		eventlimit.WithOnFirstDrop(func(fpr string) {
			L.Warn(ctx, "issue budget exhausted, dropping until window resets",
				"fingerprint", fpr,
				"budget", conf.MaxEventsPerWindow,
				"window", conf.Window,
			)
		}),
		eventlimit.WithOnEvict(func(fpr string) {
			m.IncEvicted()
		}),
	)
	if err != nil {
		L.Error(ctx, err, "limiter init failed")
		os.Exit(1)
	}

	// Wrap the hook so every decision is timed and counted, whichever path
	// (real SDK or dry-run) invokes it.
	hook := sentryhook.BeforeSend(limiter)
	beforeSend := func(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
		start := time.Now()
		out := hook(ev, hint)
		m.ObserveDecision(time.Since(start).Seconds())
		if out != nil {
			m.IncAllowed()
		}
		m.SetTracked(limiter.Len())
		return out
	}

	rep := &reporter{
		enabled: conf.SentryDSN != "",
		hook:    beforeSend,
		L:       L,
	}
	if rep.enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              conf.SentryDSN,
			Release:          vi.Version,
			AttachStacktrace: true,
			BeforeSend:       beforeSend,
		}); err != nil {
			L.Error(ctx, err, "sentry init failed")
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	} else {
		L.Info(ctx, "no sentry DSN configured, running dry: decisions are made and logged, nothing is transmitted")
	}

	// Admin listener: metrics, health, pprof
	var gate health.ShutdownGate
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   gate.Probe(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start admin http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	srv := &commandServer{
		L:       L,
		m:       m,
		rep:     rep,
		limiter: limiter,
		tracer:  otel.Tracer("eventlimit-demo"),
	}

	pc, err := net.ListenPacket("udp", conf.ListenAddr)
	if err != nil {
		L.Error(ctx, err, "udp listen failed", "listen_addr", conf.ListenAddr)
		os.Exit(1)
	}

	L.Info(ctx, "listening for commands",
		"listen_addr", conf.ListenAddr,
		"hint", fmt.Sprintf("send commands with: nc -u %s", strings.ReplaceAll(conf.ListenAddr, ":", " ")),
	)

	// Close the socket when the signal context fires so ReadFrom unblocks.
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			L.Error(ctx, err, "udp read failed")
			continue
		}
		srv.handle(ctx, strings.TrimSpace(string(buf[:n])))
	}

	L.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gate.Set("draining")

	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "admin http server shutdown")
	}
	if rep.enabled {
		sentry.Flush(2 * time.Second)
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

type commandServer struct {
	L       log.Logger
	m       *metrics.LimiterMetrics
	rep     *reporter
	limiter *eventlimit.Limiter
	tracer  trace.Tracer
}

func (s *commandServer) handle(ctx context.Context, line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd := fields[0]

	ctx, span := s.tracer.Start(ctx, "command",
		trace.WithAttributes(attribute.String("command", cmd)))
	defer span.End()

	s.m.IncCommand(cmd)

	switch cmd {
	case "1":
		s.rep.reportError(ctx, errorOne())
	case "2":
		s.rep.reportError(ctx, errorTwo())
	case "3":
		s.rep.reportError(ctx, openConfig())
	case "4":
		s.rep.reportMessage(ctx, "demo", fmt.Sprintf("something went wrong with %q", randomName()))
	case "storm":
		s.storm(ctx, fields[1:])
	case "stats":
		s.L.Info(ctx, "limiter stats", "fingerprints_tracked", s.limiter.Len())
	default:
		s.L.Warn(ctx, "unknown command received", "command", cmd)
	}
}

// storm paces n copies of the same synthetic error at rps events per second,
// so budget exhaustion and the window reset can be watched live.
func (s *commandServer) storm(ctx context.Context, args []string) {
	n, rps := 200, 50
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil && v > 0 {
			rps = v
		}
	}

	s.L.Info(ctx, "starting storm", "events", n, "rate_per_second", rps)
	pace := rate.NewLimiter(rate.Limit(rps), 1)
	for i := 0; i < n; i++ {
		if err := pace.Wait(ctx); err != nil {
			s.L.Warn(ctx, "storm interrupted", "sent", i)
			return
		}
		s.rep.reportError(ctx, errorOne())
	}
	s.L.Info(ctx, "storm complete", "events", n)
}

func errorOne() error {
	return errstack.New("one")
}

func errorTwo() error {
	return errstack.New("two")
}

func openConfig() error {
	_, err := os.Open("/nonexistent/eventlimit-demo.conf")
	return errstack.Wrap(err, "load config")
}

func randomName() string {
	names := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	return names[int(time.Now().UnixNano())%len(names)]
}

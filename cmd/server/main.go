package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"

	"github.com/RuslanFatikhov/Collections/internal/admin"
	"github.com/RuslanFatikhov/Collections/internal/api"
	"github.com/RuslanFatikhov/Collections/internal/audit"
	"github.com/RuslanFatikhov/Collections/internal/auth"
	"github.com/RuslanFatikhov/Collections/internal/cfg"
	"github.com/RuslanFatikhov/Collections/internal/collections"
	"github.com/RuslanFatikhov/Collections/internal/fields"
	"github.com/RuslanFatikhov/Collections/internal/health"
	"github.com/RuslanFatikhov/Collections/internal/httpmw"
	"github.com/RuslanFatikhov/Collections/internal/httpserver"
	"github.com/RuslanFatikhov/Collections/internal/log"
	"github.com/RuslanFatikhov/Collections/internal/metrics"
	"github.com/RuslanFatikhov/Collections/internal/opshttp"
	"github.com/RuslanFatikhov/Collections/internal/otelx"
	"github.com/RuslanFatikhov/Collections/internal/prof"
	"github.com/RuslanFatikhov/Collections/internal/ratelimit"
	"github.com/RuslanFatikhov/Collections/internal/secrets"
	"github.com/RuslanFatikhov/Collections/internal/store"
	"github.com/RuslanFatikhov/Collections/internal/uploads"
	v "github.com/RuslanFatikhov/Collections/internal/version"
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
		fmt.Printf("%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix COLLECTIONS_ and validate
	cfg.FillFromEnv(flag.CommandLine, "COLLECTIONS_", func(format string, args ...any) {
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
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"ops_port", conf.OpsPort,
		"rate_limit_backend", conf.RateLimitBackend,
		"upload_backend", conf.UploadBackend,
		"trust_proxy_headers", conf.TrustProxyHeaders,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// AWS clients are only needed for the SSM secret and the S3 upload
	// backend; a pure-local deployment never touches them.
	var awsCfg aws.Config
	if conf.SessionSecretSSMParam != "" || conf.UploadBackend == "s3" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
	}

	// Resolve session signing secret
	secret := conf.SessionSecret
	if conf.SessionSecretSSMParam != "" {
		src, err := secrets.NewSSMSource(ctx, &awsCfg)
		if err != nil {
			L.Error(ctx, err, "failed to create SSM secret source")
			os.Exit(1)
		}
		secret, err = src.Get(ctx, conf.SessionSecretSSMParam)
		if err != nil {
			L.Error(ctx, err, "failed to fetch session secret",
				"ssm_param", conf.SessionSecretSSMParam)
			os.Exit(1)
		}
	}

	// Stores and audit trail
	users := store.NewMemoryUsers()
	cols := store.NewMemoryCollections()
	items := store.NewMemoryItems()
	trail := audit.NewMemoryStore(conf.AuditTrailCap)
	recorder := audit.NewRecorder(trail, L,
		audit.WithOnRecord(func(action audit.Action) {
			m.IncAuditEvent(string(action))
		}),
	)

	// Services
	validator := fields.NewValidator(fields.WithMaxTextLen(conf.MaxTextLen))
	authSvc := auth.NewService(users, recorder, []byte(secret),
		auth.WithTokenTTL(conf.SessionTTL))
	colSvc := collections.NewService(cols, items, recorder, L,
		collections.WithValidator(validator),
		collections.WithOnInvalid(m.IncValidationFailed))
	admSvc := admin.NewService(users, cols, recorder)

	// Rate limiter backend
	var limiter ratelimit.Limiter
	var memLimiter *ratelimit.Memory
	switch conf.RateLimitBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewRedis(rdb)
		L.Info(ctx, "rate limiter using redis backend", "redis_addr", conf.RedisAddr)
	default:
		memLimiter = ratelimit.NewMemory(ctx)
		limiter = memLimiter
	}

	enforcer := ratelimit.NewEnforcer(limiter, L,
		ratelimit.WithOnDenied(func(policy, key string) {
			m.IncRateLimitDenied(policy)
		}),
		ratelimit.WithOnBlocked(func(policy, key string) {
			m.IncRateLimitBlocked(policy)
			L.Warn(ctx, "rate limit lockout started", "policy", policy, "key", key)
		}),
	)

	// Export limiter gauges; only the in-process backend can be asked
	// cheaply for a snapshot.
	if memLimiter != nil {
		go func() {
			t := time.NewTicker(30 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					st := memLimiter.Stats()
					m.SetRateLimitKeys(st.Keys, st.Blocked)
				}
			}
		}()
	}

	// Upload storage backend
	var files uploads.ObjectStore
	switch conf.UploadBackend {
	case "s3":
		s3Store, err := uploads.NewS3Store(ctx, uploads.S3Options{
			Bucket:    conf.UploadS3Bucket,
			Prefix:    conf.UploadS3Prefix,
			AWSConfig: &awsCfg,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create S3 upload store",
				"bucket", conf.UploadS3Bucket)
			os.Exit(1)
		}
		files = s3Store
		L.Info(ctx, "uploads using s3 backend", "bucket", conf.UploadS3Bucket)
	default:
		files = uploads.NewMemStore()
	}

	apiHandler := api.New(api.Options{
		Logger:      L,
		Auth:        authSvc,
		Collections: colSvc,
		Admin:       admSvc,
		Files:       files,
		Trail:       trail,
		Recorder:    recorder,
		Limits:      enforcer,
	})

	ceiling := ratelimit.NewCeiling(conf.GlobalRPS, conf.GlobalBurst)

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	appStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    apiHandler.Routes,
		AuthMW:       authSvc.Authenticate,
		CeilingMW:    ceiling.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustProxyHeaders: conf.TrustProxyHeaders},
		MaxBodyBytes: conf.MaxBodyBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start app http listener")
		os.Exit(1)
	}
	defer func() { _ = appStop(context.Background()) }()

	// ops listener serves metrics, health checks and pprof; the network
	// keeps it internal, it carries no auth of its own
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.OpsPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending traffic, then
	// give in-flight requests a window to finish
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(10 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := appStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}

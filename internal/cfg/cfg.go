package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/RuslanFatikhov/Collections/internal/log"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	HTTPPort int
	OpsPort  int

	TrustProxyHeaders bool

	// Session secret: either SessionSecret inline (development) or
	// SessionSecretSSMParam to resolve from Parameter Store.
	SessionSecret         string
	SessionSecretSSMParam string
	SessionTTL            time.Duration

	// Rate limit backend: "memory" or "redis".
	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Uploads backend: "memory" or "s3".
	UploadBackend  string
	UploadS3Bucket string
	UploadS3Prefix string

	AuditTrailCap int
	MaxBodyBytes  int64
	MaxTextLen    int

	// Process-wide request ceiling, on top of the per-key policies.
	// Zero disables it.
	GlobalRPS   float64
	GlobalBurst int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.OpsPort, "ops-port", 9000, "ops listen TCP port (1..65535)")
	fs.BoolVar(&c.TrustProxyHeaders, "trust-proxy-headers", false, "trust X-Forwarded-For / X-Real-IP from the fronting proxy")
	fs.StringVar(&c.SessionSecret, "session-secret", "", "session signing secret (development only, prefer -session-secret-ssm-param)")
	fs.StringVar(&c.SessionSecretSSMParam, "session-secret-ssm-param", "", "SSM parameter holding the session signing secret")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 24*time.Hour, "session token lifetime")
	fs.StringVar(&c.RateLimitBackend, "rate-limit-backend", "memory", "rate limiter backend: memory|redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", "localhost:6379", "redis address (host:port) for the redis rate limit backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.StringVar(&c.UploadBackend, "upload-backend", "memory", "upload storage backend: memory|s3")
	fs.StringVar(&c.UploadS3Bucket, "upload-s3-bucket", "", "s3 bucket for uploaded images")
	fs.StringVar(&c.UploadS3Prefix, "upload-s3-prefix", "", "s3 key prefix for uploaded images")
	fs.IntVar(&c.AuditTrailCap, "audit-trail-cap", 10000, "max in-memory audit records (1..1000000)")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "max request body size in bytes")
	fs.IntVar(&c.MaxTextLen, "max-text-len", 10000, "max text field length in characters")
	fs.Float64Var(&c.GlobalRPS, "global-rps", 0, "process-wide sustained requests/sec ceiling (0 disables)")
	fs.IntVar(&c.GlobalBurst, "global-burst", 0, "process-wide request burst on top of -global-rps")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.OpsPort < 1 || c.OpsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid OPS_PORT %d (must be 1..65535)", c.OpsPort))
	}
	if c.OpsPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("OPS_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.SessionSecret == "" && c.SessionSecretSSMParam == "" {
		errs = append(errs, fmt.Errorf("one of SESSION_SECRET or SESSION_SECRET_SSM_PARAM is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive (got %s)", c.SessionTTL))
	}

	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when RATE_LIMIT_BACKEND=redis"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q (must be memory or redis)", c.RateLimitBackend))
	}

	switch c.UploadBackend {
	case "memory":
	case "s3":
		if c.UploadS3Bucket == "" {
			errs = append(errs, fmt.Errorf("UPLOAD_S3_BUCKET required when UPLOAD_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid UPLOAD_BACKEND %q (must be memory or s3)", c.UploadBackend))
	}

	if c.AuditTrailCap < 1 || c.AuditTrailCap > 1000000 {
		errs = append(errs, fmt.Errorf("AUDIT_TRAIL_CAP must be 1..1000000 (got %d)", c.AuditTrailCap))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive (got %d)", c.MaxBodyBytes))
	}
	if c.MaxTextLen < 1 {
		errs = append(errs, fmt.Errorf("MAX_TEXT_LEN must be positive (got %d)", c.MaxTextLen))
	}
	if c.GlobalRPS < 0 {
		errs = append(errs, fmt.Errorf("GLOBAL_RPS must not be negative (got %g)", c.GlobalRPS))
	}
	if c.GlobalRPS > 0 && c.GlobalBurst < 1 {
		errs = append(errs, fmt.Errorf("GLOBAL_BURST must be at least 1 when GLOBAL_RPS is set"))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

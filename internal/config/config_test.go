package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Clear all env that might affect defaults. t.Setenv isolates per test.
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Storage / presence
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PRESENCE_RETENTION", "3h")
	t.Setenv("WEBHOOK_SECRET", "s3cret")

	// External APIs / jobs
	t.Setenv("OPENTOK_API_KEY", "12345")
	t.Setenv("VIDEO_HOST_TOKEN", "vt")
	t.Setenv("BLOB_BASE_URL", "https://blobs.example.com")
	t.Setenv("SWEEP_SCHEDULE", "*/5 * * * *")
	t.Setenv("EXPORT_BATCH_SIZE", "4")
	t.Setenv("EXPORT_MAX_JITTER", "0s")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 20.0
	t.Setenv("RATE_BURST", "nope") // -> default 40

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// Storage / presence
	if cfg.DBPath != "db.sqlite" || cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 2 ||
		cfg.PresenceRetention != 3*time.Hour || cfg.SweepPageSize != 100 || cfg.WebhookSecret != "s3cret" {
		t.Fatalf("storage fields unexpected: %+v", cfg)
	}

	// External APIs / jobs
	if cfg.Media.APIKey != "12345" || cfg.Media.APIURL != "https://api.opentok.com" ||
		cfg.VideoHost.Token != "vt" || cfg.VideoHost.BlobBaseURL != "https://blobs.example.com" ||
		cfg.VideoHost.CaptionsLanguage != "en" {
		t.Fatalf("external api fields unexpected: %+v %+v", cfg.Media, cfg.VideoHost)
	}
	if cfg.Jobs.SweepSchedule != "*/5 * * * *" || cfg.Jobs.ExportSchedule != "@every 1m" ||
		cfg.Jobs.ExportBatchSize != 4 || cfg.Jobs.ExportMaxRetries != 3 || cfg.Jobs.ExportMaxJitter != 0 ||
		cfg.Jobs.SchedulerTimezone != "UTC" {
		t.Fatalf("jobs unexpected: %+v", cfg.Jobs)
	}
	if cfg.ProviderTimeout != 10*time.Second || cfg.RetryAttempts != 3 {
		t.Fatalf("provider settings unexpected: %v %d", cfg.ProviderTimeout, cfg.RetryAttempts)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 20.0 || cfg.RateBurst != 40 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("empty PORT via spaces", func(t *testing.T) {
		t.Setenv("PORT", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "PORT must not be empty") {
			t.Fatalf("expected port validation error, got: %v", err)
		}
	})
	t.Run("non-positive timeouts", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "timeouts must be positive") {
			t.Fatalf("expected timeouts validation error, got: %v", err)
		}
	})
	t.Run("max header bytes <= 0", func(t *testing.T) {
		t.Setenv("MAX_HEADER_BYTES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "MAX_HEADER_BYTES") {
			t.Fatalf("expected MAX_HEADER_BYTES validation error, got: %v", err)
		}
	})
	t.Run("empty DB_PATH", func(t *testing.T) {
		t.Setenv("DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("empty REDIS_ADDR", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "REDIS_ADDR") {
			t.Fatalf("expected REDIS_ADDR validation error, got: %v", err)
		}
	})
	t.Run("non-positive retention", func(t *testing.T) {
		t.Setenv("PRESENCE_RETENTION", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "PRESENCE_RETENTION") {
			t.Fatalf("expected PRESENCE_RETENTION validation error, got: %v", err)
		}
	})
	t.Run("sweep page size < 1", func(t *testing.T) {
		t.Setenv("SWEEP_PAGE_SIZE", "0")
		if _, err := Load(); err == nil || !containsErr(err, "SWEEP_PAGE_SIZE") {
			t.Fatalf("expected SWEEP_PAGE_SIZE validation error, got: %v", err)
		}
	})
	t.Run("retry attempts < 1", func(t *testing.T) {
		t.Setenv("RETRY_ATTEMPTS", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RETRY_ATTEMPTS") {
			t.Fatalf("expected RETRY_ATTEMPTS validation error, got: %v", err)
		}
	})
	t.Run("bad cron schedule", func(t *testing.T) {
		t.Setenv("EXPORT_SCHEDULE", "every minute")
		if _, err := Load(); err == nil || !containsErr(err, "EXPORT_SCHEDULE") {
			t.Fatalf("expected EXPORT_SCHEDULE validation error, got: %v", err)
		}
	})
	t.Run("export batch size < 1", func(t *testing.T) {
		t.Setenv("EXPORT_BATCH_SIZE", "0")
		if _, err := Load(); err == nil || !containsErr(err, "EXPORT_BATCH_SIZE") {
			t.Fatalf("expected EXPORT_BATCH_SIZE validation error, got: %v", err)
		}
	})
	t.Run("unknown timezone", func(t *testing.T) {
		t.Setenv("SCHEDULER_TIMEZONE", "Mars/Olympus")
		if _, err := Load(); err == nil || !containsErr(err, "SCHEDULER_TIMEZONE") {
			t.Fatalf("expected SCHEDULER_TIMEZONE validation error, got: %v", err)
		}
	})
	t.Run("rate rps negative", func(t *testing.T) {
		t.Setenv("RATE_RPS", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_RPS") {
			t.Fatalf("expected RATE_RPS validation error, got: %v", err)
		}
	})
	t.Run("rate burst < 1", func(t *testing.T) {
		t.Setenv("RATE_BURST", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_BURST") {
			t.Fatalf("expected RATE_BURST validation error, got: %v", err)
		}
	})
	t.Run("hsts max age negative", func(t *testing.T) {
		t.Setenv("HSTS_MAX_AGE", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "HSTS_MAX_AGE") {
			t.Fatalf("expected HSTS_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})

	// Note: API_BASE_PATH validation is effectively unreachable due to normalizeBasePath
	// always ensuring a leading '/' and returning "/" for empty input.
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	// normalizeBasePath
	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults_APIBasePathDefault_And_WebhookSecretOptional(t *testing.T) {
	t.Setenv("DB_PATH", "db.sqlite")
	// Intentionally leave WEBHOOK_SECRET and API_BASE_PATH unset

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	// default per code is "/api/v1"
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	// An unset secret stays empty; webhook deliveries are then rejected.
	if cfg.WebhookSecret != "" {
		t.Fatalf("expected empty WebhookSecret when unset, got %q", cfg.WebhookSecret)
	}
	if cfg.PresenceRetention != 6*time.Hour || cfg.Jobs.SweepSchedule != "@every 10m" {
		t.Fatalf("presence defaults unexpected: %v %q", cfg.PresenceRetention, cfg.Jobs.SweepSchedule)
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

package main

import (
	"vidmill/internal/server"
)

type startupSummaryInput struct {
	Mode              string
	Addr              string
	StorageDriver     string
	StoragePath       string
	StorageDSN        string
	SessionConfig     sessionStoreConfig
	RateLimit         server.RateLimitConfig
	ObjectsEnabled    bool
	ThumbnailsEnabled bool
}

type startupSummary struct {
	input startupSummaryInput
}

// newStartupSummary collects the effective configuration for the single
// startup log line. Secrets never appear: DSNs are redacted and API keys are
// reduced to booleans.
func newStartupSummary(input startupSummaryInput) startupSummary {
	return startupSummary{input: input}
}

func (s startupSummary) LogArgs() []any {
	in := s.input

	datastore := map[string]any{"driver": in.StorageDriver}
	switch in.StorageDriver {
	case "json":
		datastore["path"] = in.StoragePath
	case "postgres":
		datastore["dsn"] = redactDSN(in.StorageDSN)
	}

	session := map[string]any{"driver": in.SessionConfig.Driver}
	switch in.SessionConfig.Driver {
	case "postgres":
		session["dsn"] = redactDSN(in.SessionConfig.DSN)
	case "redis":
		session["addr"] = in.SessionConfig.RedisAddr
	}

	throttle := map[string]any{"driver": "memory"}
	if in.RateLimit.RedisAddr != "" {
		throttle["driver"] = "redis"
		throttle["addr"] = in.RateLimit.RedisAddr
	}
	if in.RateLimit.LoginLimit > 0 {
		throttle["login_limit"] = in.RateLimit.LoginLimit
		throttle["login_window"] = in.RateLimit.LoginWindow.String()
	}

	return []any{
		"mode", in.Mode,
		"addr", in.Addr,
		"datastore", datastore,
		"session_store", session,
		"login_throttle", throttle,
		"object_storage_enabled", in.ObjectsEnabled,
		"thumbnails_enabled", in.ThumbnailsEnabled,
	}
}

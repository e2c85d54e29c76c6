package config

import (
	"net/url"
	"strings"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Passwords, keys
// and tokens become "***"; connection URLs keep their host so operators can
// still see where the service points.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Database.DSN = redactURL(cfg.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	out.Notify.DiscordWebhookURL = redactURL(cfg.Notify.DiscordWebhookURL)

	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL hides the password of a postgres:// DSN and the path of a
// webhook URL. Key/value DSNs ("host=... password=...") have their password
// value replaced. Anything unparseable is redacted whole.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return redactKeyValueDSN(raw)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.Scheme == "https" || u.Scheme == "http" {
		// Webhook URLs carry their secret in the path.
		return u.Scheme + "://" + u.Host + "/" + redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}

func redactKeyValueDSN(dsn string) string {
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if k, _, ok := strings.Cut(f, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=" + redacted
		}
	}
	return strings.Join(fields, " ")
}

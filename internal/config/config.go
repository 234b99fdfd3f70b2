package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr string
	Domain   string // host[:port] used when composing email links

	DBDriver string
	DBDSN    string

	AuthSecret string

	// Email delivery. With SMTPAddr empty the server logs outgoing mail
	// instead of sending it.
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	// AsyncMarking hands submitted attempts to the task queue instead of
	// marking them inline during the submit request.
	AsyncMarking bool

	CORSOrigins []string
}

func FromEnv() Config {
	return Config{
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		Domain:       envOr("DOMAIN", "localhost:8080"),
		DBDriver:     envOr("DB_DRIVER", "sqlite"),
		DBDSN:        envOr("DB_DSN", ""),
		AuthSecret:   envOr("AUTH_SECRET", "dev-secret-change-me"),
		SMTPAddr:     envOr("SMTP_ADDR", ""),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		EmailFrom:    envOr("EMAIL_FROM", "no-reply@onequiz.org"),
		AsyncMarking: envBool("ASYNC_MARKING", true),
		CORSOrigins:  csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	Env       string
	LogLevel  string // empty picks the env default
	HTTPAddr  string
	CORSAllow []string

	PGURL     string // empty disables session records
	PGMaxConn int

	RedisAddr string // empty disables the lifecycle bus
	RedisDB   int

	ClassesURL     string // base URL of the classes REST API
	ClassesTimeout time.Duration

	EndGrace     time.Duration // delay before removing an ended class
	VacancyGrace time.Duration // delay before removing a room both roles left

	ICEServers    []string
	ICEUsername   string
	ICECredential string

	RateLimitPerMin int
	WSSendBuffer    int
}

func LoadConfig() Config {
	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		PGURL:         os.Getenv("PG_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		ClassesURL:    strings.TrimRight(os.Getenv("CLASSES_API_URL"), "/"),
		ICEUsername:   os.Getenv("ICE_USERNAME"),
		ICECredential: os.Getenv("ICE_CREDENTIAL"),
	}
	cfg.PGMaxConn = getEnvInt("PG_MAX_CONN", 10)
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", 120)
	cfg.WSSendBuffer = getEnvInt("WS_SEND_BUFFER", 256)

	cfg.ClassesTimeout = getEnvDuration("CLASSES_TIMEOUT", 3*time.Second)
	cfg.EndGrace = getEnvDuration("END_GRACE", 10*time.Second)
	cfg.VacancyGrace = getEnvDuration("VACANCY_GRACE", time.Minute)

	// CORS allowlist
	cfg.CORSAllow = splitCSV(getEnv("CORS_ALLOW", "http://localhost:3000"))
	cfg.ICEServers = splitCSV(getEnv("ICE_SERVERS", "stun:stun.l.google.com:19302"))
	return cfg
}

// WebRTCServers converts the ICE settings into the shape browsers expect
// in RTCPeerConnection's configuration.
func (c Config) WebRTCServers() []webrtc.ICEServer {
	if len(c.ICEServers) == 0 {
		return nil
	}
	var stun, turn []string
	for _, u := range c.ICEServers {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			turn = append(turn, u)
			continue
		}
		stun = append(stun, u)
	}
	var out []webrtc.ICEServer
	if len(stun) > 0 {
		out = append(out, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 {
		out = append(out, webrtc.ICEServer{
			URLs:           turn,
			Username:       c.ICEUsername,
			Credential:     c.ICECredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return out
}

// String prints the config without credentials
func (c Config) String() string {
	return fmt.Sprintf("env=%s addr=%s postgres=%t redis=%t classes=%q endGrace=%s vacancyGrace=%s",
		c.Env, c.HTTPAddr, c.PGURL != "", c.RedisAddr != "", c.ClassesURL, c.EndGrace, c.VacancyGrace)
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses a non-negative int env var with a fallback. An explicit
// 0 is kept.
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && i >= 0 {
			return i
		}
	}
	return def
}

// getEnvDuration parses a Go duration ("90s", "2m") with a fallback
func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

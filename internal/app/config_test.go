package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_ADDR", "PG_URL", "REDIS_ADDR", "END_GRACE", "VACANCY_GRACE", "ICE_SERVERS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.Env != "dev" {
		t.Errorf("want env dev got %q", cfg.Env)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("want addr :8080 got %q", cfg.HTTPAddr)
	}
	if cfg.EndGrace != 10*time.Second || cfg.VacancyGrace != time.Minute {
		t.Errorf("unexpected grace delays: end=%s vacancy=%s", cfg.EndGrace, cfg.VacancyGrace)
	}
	if cfg.PGURL != "" || cfg.RedisAddr != "" {
		t.Errorf("postgres and redis should default to disabled")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("END_GRACE", "2s")
	t.Setenv("VACANCY_GRACE", "bogus")
	t.Setenv("PG_MAX_CONN", "-3")
	t.Setenv("CLASSES_API_URL", "http://classes.local/api/")
	t.Setenv("CORS_ALLOW", " http://a.test , ,http://b.test")

	cfg := LoadConfig()
	if cfg.EndGrace != 2*time.Second {
		t.Errorf("want 2s got %s", cfg.EndGrace)
	}
	if cfg.VacancyGrace != time.Minute {
		t.Errorf("invalid duration should fall back, got %s", cfg.VacancyGrace)
	}
	if cfg.PGMaxConn != 10 {
		t.Errorf("negative int should fall back, got %d", cfg.PGMaxConn)
	}
	if cfg.ClassesURL != "http://classes.local/api" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.ClassesURL)
	}
	if len(cfg.CORSAllow) != 2 || cfg.CORSAllow[1] != "http://b.test" {
		t.Errorf("unexpected CORS list %v", cfg.CORSAllow)
	}
}

func TestWebRTCServersSplitsStunAndTurn(t *testing.T) {
	cfg := Config{
		ICEServers:    []string{"stun:stun.example:3478", "turn:turn.example:3478"},
		ICEUsername:   "user",
		ICECredential: "pass",
	}
	servers := cfg.WebRTCServers()
	if len(servers) != 2 {
		t.Fatalf("want 2 servers got %d", len(servers))
	}
	if servers[0].Username != "" {
		t.Errorf("stun entry should carry no credentials")
	}
	if servers[1].Username != "user" || servers[1].Credential != "pass" {
		t.Errorf("turn entry lost credentials: %+v", servers[1])
	}
}

func TestLoadConfigKeepsExplicitZero(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "0")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WS_SEND_BUFFER", "lots")

	cfg := LoadConfig()
	if cfg.RateLimitPerMin != 0 {
		t.Errorf("explicit 0 disables rate limiting, got %d", cfg.RateLimitPerMin)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("want redis db 3 got %d", cfg.RedisDB)
	}
	if cfg.WSSendBuffer != 256 {
		t.Errorf("unparsable int should fall back, got %d", cfg.WSSendBuffer)
	}
}

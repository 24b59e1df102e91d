package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"betube/pkg/session"

	"github.com/gin-gonic/gin"
)

var (
	tokenCfg session.Config   // loaded from env in loadTokenConfig
	sessions *session.Service // built in main / test setup
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	loadTokenConfig()

	// Support a lightweight migrate command: `./betube_app migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()
	initSessions()

	r := gin.Default()

	setupRoutes(r)

	r.Run(":8081")
}

// loadTokenConfig reads the two signing secrets and TTLs from the
// environment into an explicit config passed to the session service; the
// session package itself never reads env vars.
func loadTokenConfig() {
	accessSecret := os.Getenv("ACCESS_TOKEN_SECRET")
	if accessSecret == "" {
		accessSecret = "dev-insecure-access-secret-change" // development fallback
	}
	refreshSecret := os.Getenv("REFRESH_TOKEN_SECRET")
	if refreshSecret == "" {
		refreshSecret = "dev-insecure-refresh-secret-change" // development fallback
	}
	tokenCfg = session.Config{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     envDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		RefreshTTL:    envDuration("REFRESH_TOKEN_EXPIRY", 240*time.Hour),
	}
}

func initSessions() {
	var err error
	sessions, err = session.New(tokenCfg, dbSessionStore{})
	if err != nil {
		log.Fatal("invalid token configuration:", err)
	}
}

// envDuration parses a Go duration from env (e.g. "15m", "240h"), falling
// back to def when unset or unparsable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("ignoring invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}

package helpers

import (
	"os"
	"path/filepath"

	. "github.com/onsi/gomega" //nolint:revive // gomega DSL
	"gopkg.in/yaml.v3"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
)

// DatabaseParams locates the test database
type DatabaseParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// WriteConfigYAML writes secrets and a service configuration into dir and
// returns the configuration path
func WriteConfigYAML(dir string, db DatabaseParams, feedURL, geoURL, apiKey string) string {
	passwordFile := filepath.Join(dir, "db-password")
	apiKeyFile := filepath.Join(dir, "geo-api-key")
	Expect(os.WriteFile(passwordFile, []byte(db.Password+"\n"), 0o600)).To(Succeed())
	Expect(os.WriteFile(apiKeyFile, []byte(apiKey), 0o600)).To(Succeed())

	cfg := config.Config{
		Database: &config.DatabaseConfig{
			Host:           db.Host,
			Port:           db.Port,
			User:           db.User,
			Database:       db.Database,
			PasswordFile:   passwordFile,
			SSLMode:        "disable",
			ConnectTimeout: "30s",
		},
		Feed: &config.FeedConfig{
			BaseURL:   feedURL,
			Timeout:   "5s",
			RateLimit: &config.RateLimitConfig{MaxCalls: 100, Window: "1s", Buffer: "0s"},
		},
		Geo: &config.GeoConfig{
			BaseURL:    geoURL,
			APIKeyFile: apiKeyFile,
			Timeout:    "5s",
		},
		Sync: &config.SyncConfig{Interval: "1m"},
		Enrichment: &config.EnrichmentConfig{
			Interval:    "1m",
			BatchSize:   2,
			RecordDelay: "0s",
			BatchDelay:  "0s",
		},
		StatusDir: filepath.Join(dir, "status"),
	}

	data, err := yaml.Marshal(&cfg)
	Expect(err).NotTo(HaveOccurred())

	path := filepath.Join(dir, "config.yaml")
	Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
	return path
}

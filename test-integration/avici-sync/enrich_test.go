package integration

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/app"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/test-integration/avici-sync/helpers"
)

type geoColumns struct {
	Country, State, City, District, Code *string
}

func loadGeoColumns(userID string) geoColumns {
	var c geoColumns
	Expect(pool.QueryRow(ctx, `
		SELECT country_name_official, state, city, district, country_code
		FROM users WHERE user_id = $1`, userID).
		Scan(&c.Country, &c.State, &c.City, &c.District, &c.Code)).To(Succeed())
	return c
}

func insertUser(userID string, ip *string) {
	_, err := pool.Exec(ctx,
		"INSERT INTO users (user_id, email, ip_address) VALUES ($1, $2, $3)",
		userID, userID+"@example.com", ip)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Enrichment service", Label("enrichment"), func() {
	var (
		geoServer *helpers.GeoServer
		tempDir   string
		enrichApp *app.ServiceApp
	)

	BeforeEach(func() {
		resetDatabase()

		feedServer := helpers.NewFeedServer(10)
		DeferCleanup(feedServer.Close)
		geoServer = helpers.NewGeoServer("geo-key", map[string]helpers.Location{
			// District left out so the user stays selectable for the whole pass
			"8.8.8.8": {
				CountryNameOfficial: "United States of America",
				StateProv:           "California",
				City:                "Mountain View",
				CountryCode2:        "US",
			},
			"8.8.4.4": {
				CountryNameOfficial: "United States of America",
				City:                "Other City",
				CountryCode2:        "US",
			},
		})
		DeferCleanup(geoServer.Close)

		insertUser("u-001", helpers.IP("8.8.8.8"))
		insertUser("u-002", helpers.IP("10.0.0.1"))
		insertUser("u-003", helpers.IP("1.1.1.1"))
		insertUser("u-004", nil)
		insertUser("u-005", helpers.IP("8.8.4.4"))
		_, err := pool.Exec(ctx, "UPDATE users SET city = 'Preset City' WHERE user_id = 'u-005'")
		Expect(err).NotTo(HaveOccurred())

		tempDir = createTempDir("avici-enrich-")
		configPath := helpers.WriteConfigYAML(tempDir, dbParams, feedServer.URL, geoServer.URL, "geo-key")

		cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
		Expect(err).NotTo(HaveOccurred())

		enrichApp, err = app.NewEnrichmentApp(ctx, app.WithConfig(cfg))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(enrichApp.Close(ctx)).To(Succeed())
		})
	})

	It("fills null geo columns from the lookup", func() {
		Expect(enrichApp.RunOnce(ctx)).To(Succeed())

		c := loadGeoColumns("u-001")
		Expect(c.Country).To(HaveValue(Equal("United States of America")))
		Expect(c.State).To(HaveValue(Equal("California")))
		Expect(c.City).To(HaveValue(Equal("Mountain View")))
		Expect(c.Code).To(HaveValue(Equal("US")))
		Expect(c.District).To(BeNil())
	})

	It("never overwrites a populated column", func() {
		Expect(enrichApp.RunOnce(ctx)).To(Succeed())

		c := loadGeoColumns("u-005")
		Expect(c.City).To(HaveValue(Equal("Preset City")))
		Expect(c.Country).To(HaveValue(Equal("United States of America")))
		Expect(c.Code).To(HaveValue(Equal("US")))
	})

	It("skips private addresses without a lookup and tolerates lookup failures", func() {
		Expect(enrichApp.RunOnce(ctx)).To(Succeed())

		Expect(geoServer.Lookups()).To(ConsistOf("8.8.8.8", "1.1.1.1", "8.8.4.4"))
		Expect(loadGeoColumns("u-002")).To(Equal(geoColumns{}))
		Expect(loadGeoColumns("u-003")).To(Equal(geoColumns{}))

		s, err := status.NewFileStatusPersistence(tempDir+"/status").LoadStatus(ctx, coordinator.ServiceEnrichment)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Phase).To(Equal(status.RunPhaseComplete))
		Expect(s.Counters).To(HaveKeyWithValue("enriched", int64(2)))
		Expect(s.Counters).To(HaveKeyWithValue("skipped", int64(1)))
		Expect(s.Counters).To(HaveKeyWithValue("failed", int64(1)))
		Expect(s.Counters).To(HaveKeyWithValue("batches", int64(3)))
	})
})

package integration

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/app"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/test-integration/avici-sync/helpers"
)

func feedUsers(from, to int) []helpers.FeedUser {
	users := make([]helpers.FeedUser, 0, to-from+1)
	for i := to; i >= from; i-- {
		u := helpers.FeedUser{
			UserID:         fmt.Sprintf("u-%03d", i),
			Email:          fmt.Sprintf("user%d@example.com", i),
			IdentifierType: "email",
			CreatedAt:      fmt.Sprintf("2025-03-%02dT10:00:00.000Z", i),
		}
		if i%2 == 1 {
			u.IPAddress = helpers.IP(fmt.Sprintf("8.8.%d.%d", i, i))
		}
		users = append(users, u)
	}
	return users
}

var _ = Describe("Sync service", Label("sync"), func() {
	var (
		feedServer *helpers.FeedServer
		geoServer  *helpers.GeoServer
		tempDir    string
		syncApp    *app.ServiceApp
	)

	BeforeEach(func() {
		resetDatabase()

		feedServer = helpers.NewFeedServer(2)
		DeferCleanup(feedServer.Close)
		geoServer = helpers.NewGeoServer("test-key", nil)
		DeferCleanup(geoServer.Close)

		tempDir = createTempDir("avici-sync-")
		configPath := helpers.WriteConfigYAML(tempDir, dbParams, feedServer.URL, geoServer.URL, "test-key")

		cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
		Expect(err).NotTo(HaveOccurred())

		syncApp, err = app.NewSyncApp(ctx, app.WithConfig(cfg))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(syncApp.Close(ctx)).To(Succeed())
		})
	})

	loadSyncStatus := func() *status.RunStatus {
		s, err := status.NewFileStatusPersistence(tempDir+"/status").LoadStatus(ctx, coordinator.ServiceSync)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("walks every page on the first run and records the newest user_id", func() {
		feedServer.SetUsers(feedUsers(1, 5))

		Expect(syncApp.RunOnce(ctx)).To(Succeed())

		Expect(countUsers()).To(Equal(5))
		Expect(checkpoint()).To(Equal("u-005"))
		// page 1 is fetched again for the new checkpoint
		Expect(feedServer.Requests()).To(Equal([]int{1, 2, 3, 1}))

		s := loadSyncStatus()
		Expect(s.Phase).To(Equal(status.RunPhaseComplete))
		Expect(s.Counters).To(HaveKeyWithValue("inserted", int64(5)))
	})

	It("stops an incremental run at the checkpoint", func() {
		feedServer.SetUsers(feedUsers(1, 5))
		Expect(syncApp.RunOnce(ctx)).To(Succeed())
		feedServer.Requests()

		feedServer.Prepend(feedUsers(6, 7)...)
		Expect(syncApp.RunOnce(ctx)).To(Succeed())

		Expect(countUsers()).To(Equal(7))
		Expect(checkpoint()).To(Equal("u-007"))
		Expect(feedServer.Requests()).To(Equal([]int{1, 2}))
		Expect(loadSyncStatus().Counters).To(HaveKeyWithValue("inserted", int64(2)))
	})

	It("inserts nothing when the feed has not moved", func() {
		feedServer.SetUsers(feedUsers(1, 3))
		Expect(syncApp.RunOnce(ctx)).To(Succeed())
		feedServer.Requests()

		Expect(syncApp.RunOnce(ctx)).To(Succeed())

		Expect(countUsers()).To(Equal(3))
		Expect(checkpoint()).To(Equal("u-003"))
		Expect(feedServer.Requests()).To(Equal([]int{1}))
		Expect(loadSyncStatus().Counters).To(HaveKeyWithValue("inserted", int64(0)))
	})

	It("stores the ip address and its identifier type", func() {
		feedServer.SetUsers(feedUsers(1, 2))
		Expect(syncApp.RunOnce(ctx)).To(Succeed())

		var ip, identifier *string
		Expect(pool.QueryRow(ctx,
			"SELECT ip_address, identifier_type FROM users WHERE user_id = 'u-001'").Scan(&ip, &identifier)).To(Succeed())
		Expect(ip).To(HaveValue(Equal("8.8.1.1")))
		Expect(identifier).To(HaveValue(Equal("email")))

		Expect(pool.QueryRow(ctx,
			"SELECT ip_address FROM users WHERE user_id = 'u-002'").Scan(&ip)).To(Succeed())
		Expect(ip).To(BeNil())
	})

	It("marks the run failed when the feed is unavailable", func() {
		feedServer.Close()

		Expect(syncApp.RunOnce(ctx)).NotTo(Succeed())

		s := loadSyncStatus()
		Expect(s.Phase).To(Equal(status.RunPhaseFailed))
		Expect(s.AttemptCount).To(Equal(1))
		Expect(countUsers()).To(BeZero())
	})
})

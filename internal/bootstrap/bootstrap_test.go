package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/config"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/payment"
)

func testConfig(t *testing.T) *config.ServiceConfig {
	t.Helper()
	cfg, err := config.FromViper(viper.New())
	require.NoError(t, err)
	for i := range cfg.Providers {
		cfg.Providers[i].Path = "../../" + cfg.Providers[i].Path
	}
	cfg.Storage = config.StorageMemory
	return cfg
}

func TestProviders_LoadsBundledCatalogs(t *testing.T) {
	registry, err := Providers(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, registry.OfKind(offer.KindFlight), 2)
	assert.Len(t, registry.OfKind(offer.KindHotel), 1)

	ret := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	adapter, err := registry.Get("skyline")
	require.NoError(t, err)
	offers, err := adapter.Search(context.Background(), offer.SearchQuery{
		Origin:      "JFK",
		Destination: "CAI",
		DepartDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ReturnDate:  &ret,
		Travelers:   2,
		Cabin:       "economy",
	})
	require.NoError(t, err)
	require.NotEmpty(t, offers)
	assert.Equal(t, "skyline", offers[0].ProviderID)
}

func TestProviders_CatalogMustMatchID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers[0].ID = "renamed"

	_, err := Providers(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "describes skyline")
}

func TestPayments(t *testing.T) {
	cfg := testConfig(t)
	auth, err := Payments(cfg)
	require.NoError(t, err)
	assert.IsType(t, &payment.Sandbox{}, auth)

	cfg.Payment = config.PaymentConfig{Mode: config.PaymentHTTP, BaseURL: "https://payments.internal", Timeout: time.Second}
	auth, err = Payments(cfg)
	require.NoError(t, err)
	assert.IsType(t, &payment.Client{}, auth)
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(testConfig(t), "migrations", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, stores.DB)
	assert.Nil(t, stores.Check())
	assert.NoError(t, stores.Close())
}

func TestQuoteCacheAndPublisherFollowFlags(t *testing.T) {
	cfg := testConfig(t)
	cache, client := QuoteCache(cfg, zap.NewNop())
	assert.NotNil(t, cache)
	assert.Nil(t, client)

	cfg.KafkaConfig.Enabled = false
	assert.Nil(t, Publisher(cfg, zap.NewNop()))
	assert.Nil(t, EventPublisher(nil))
}

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eximia-labs/backend-quotes/internal/lock"
	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

type stubSource struct {
	products []Product
	err      error
	calls    int
}

func (s *stubSource) ListProducts(context.Context) ([]Product, error) {
	s.calls++
	return s.products, s.err
}

func staticFixture() pricing.Config {
	return Normalize(pricing.Config{
		Currency:               "USD",
		CollectFirstMonthToday: true,
		SetupFee:               pricing.SetupFee{Enabled: true, Amount: 99},
		Packages:               []pricing.Package{{ID: "starter", Name: "Starter", Monthly: 197}},
		Addons:                 []pricing.Addon{{ID: "whatsapp", Name: "WhatsApp", Monthly: 49}},
		ContractTerms: []pricing.ContractTerm{
			{ID: "1month", Name: "1 month", Months: 1},
			{ID: "6month", Name: "6 months", Months: 6, Discount: 0.10},
		},
	})
}

func TestSnapshotUsesRemoteProducts(t *testing.T) {
	source := &stubSource{products: []Product{
		{ID: "p1", Name: "Pro", Type: ProductTypeService, PriceCents: 49700},
		{ID: "a1", Name: "Voice", Type: ProductTypeDigital, PriceCents: 14900},
	}}
	svc, err := NewService(ServiceConfig{Static: staticFixture(), Source: source, Logger: zerolog.Nop()})
	require.NoError(t, err)

	snap := svc.Snapshot(context.Background())
	require.True(t, snap.FromRemote)
	require.Len(t, snap.Packages, 1)
	require.Equal(t, 497.00, snap.Packages[0].Monthly)
	require.Len(t, snap.Addons, 1)
	require.Equal(t, 149.00, snap.Addons[0].Monthly)
	// Structural settings stay static.
	require.True(t, snap.SetupFee.Enabled)
	require.Len(t, snap.ContractTerms, 2)
}

func TestSnapshotWholesaleFallbackOnError(t *testing.T) {
	source := &stubSource{err: errors.New("crm down")}
	svc, err := NewService(ServiceConfig{Static: staticFixture(), Source: source, Logger: zerolog.Nop()})
	require.NoError(t, err)

	snap := svc.Snapshot(context.Background())
	require.False(t, snap.FromRemote)
	require.Equal(t, "starter", snap.Packages[0].ID)
	require.Equal(t, "whatsapp", snap.Addons[0].ID)
}

func TestSnapshotEmptyRemoteFallsBack(t *testing.T) {
	svc, err := NewService(ServiceConfig{Static: staticFixture(), Source: &stubSource{}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	snap := svc.Snapshot(context.Background())
	require.False(t, snap.FromRemote)
	require.Equal(t, "starter", snap.Packages[0].ID)
}

func TestSnapshotCachesRemoteResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := &stubSource{products: []Product{
		{ID: "p1", Name: "Pro", Type: ProductTypeService, PriceCents: 49700},
	}}
	svc, err := NewService(ServiceConfig{
		Static: staticFixture(),
		Source: source,
		Cache:  NewCache(client, time.Minute),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	first := svc.Snapshot(context.Background())
	second := svc.Snapshot(context.Background())
	require.Equal(t, first, second)
	require.Equal(t, 1, source.calls)
}

func TestSnapshotRefreshUnderLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := &stubSource{products: []Product{
		{ID: "p1", Name: "Pro", Type: ProductTypeService, PriceCents: 49700},
	}}
	svc, err := NewService(ServiceConfig{
		Static: staticFixture(),
		Source: source,
		Cache:  NewCache(client, time.Minute),
		Locker: &lock.Locker{R: client},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	first := svc.Snapshot(context.Background())
	require.True(t, first.FromRemote)
	second := svc.Snapshot(context.Background())
	require.Equal(t, first, second)
	require.Equal(t, 1, source.calls)
	require.False(t, mr.Exists("pricing:catalog:refresh"))
}

func TestSnapshotWithoutSourceServesStatic(t *testing.T) {
	svc, err := NewService(ServiceConfig{Static: staticFixture(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	snap := svc.Snapshot(context.Background())
	require.False(t, snap.FromRemote)
	require.Equal(t, staticFixture(), snap.Config)
}

package redirects_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrlink/internal/apperr"
	"qrlink/internal/qrcodes"
	"qrlink/internal/redirects"
	"qrlink/internal/testsupport"
)

func TestResolve(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	qr := testsupport.CreateTestQRCode(t, dbManager.GetConnection(), "owner-1", "promo")

	for name, opts := range map[string]redirects.CacheOptions{
		"cached":   {MaxEntries: 100, TTL: time.Minute},
		"uncached": {},
	} {
		t.Run(name, func(t *testing.T) {
			resolver, err := redirects.NewResolver(dbManager, logger, opts)
			require.NoError(t, err)
			defer resolver.Close()

			target, err := resolver.Resolve(context.Background(), "promo")
			require.NoError(t, err)
			assert.Equal(t, redirects.Target{QRCodeID: qr.ID, ShortCode: "promo", RedirectURL: qr.RedirectURL}, target)

			_, err = resolver.Resolve(context.Background(), "nope")
			assert.True(t, apperr.IsNotFound(err))

			_, err = resolver.Resolve(context.Background(), "  ")
			assert.True(t, apperr.IsNotFound(err))
		})
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CreateTestQRCode(t, dbManager.GetConnection(), "owner-1", "Promo")

	resolver, err := redirects.NewResolver(dbManager, logger, redirects.CacheOptions{})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "promo")
	assert.True(t, apperr.IsNotFound(err))
}

func TestResolveSeesUpdatesThroughInvalidation(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "summer")

	resolver, err := redirects.NewResolver(dbManager, logger, redirects.CacheOptions{MaxEntries: 100, TTL: time.Hour})
	require.NoError(t, err)
	defer resolver.Close()
	service := qrcodes.NewService(dbManager, logger, resolver.Invalidate)

	_, err = resolver.Resolve(context.Background(), "summer")
	require.NoError(t, err)

	input := qrcodes.Input{
		DisplayName:       qr.DisplayName,
		RedirectURL:       "https://example.com/autumn",
		ShortCode:         "autumn",
		DotStyle:          qr.DotStyle,
		CornerDotStyle:    qr.CornerDotStyle,
		CornerSquareStyle: qr.CornerSquareStyle,
		Color:             qr.Color,
	}
	_, err = service.Update(context.Background(), qr.ID, "owner-1", input)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "summer")
	assert.True(t, apperr.IsNotFound(err), "old short code must stop resolving")

	target, err := resolver.Resolve(context.Background(), "autumn")
	require.NoError(t, err)
	assert.Equal(t, qr.ID, target.QRCodeID)
	assert.Equal(t, "https://example.com/autumn", target.RedirectURL)

	require.NoError(t, service.Delete(context.Background(), qr.ID, "owner-1"))
	_, err = resolver.Resolve(context.Background(), "autumn")
	assert.True(t, apperr.IsNotFound(err))
}

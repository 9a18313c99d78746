package qrcodes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qrlink/internal/apperr"
)

func TestWriteErrorMapsUniqueViolation(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&QRCode{}))

	require.NoError(t, db.Create(&QRCode{ID: "a", OwnerID: "owner-1", ShortCode: "menu"}).Error)
	dupErr := db.Create(&QRCode{ID: "b", OwnerID: "owner-2", ShortCode: "menu"}).Error
	require.ErrorIs(t, dupErr, gorm.ErrDuplicatedKey)

	mapped := writeError("creating", fmt.Errorf("write transaction: %w", dupErr))
	assert.True(t, apperr.IsValidation(mapped))
	var appErr *apperr.Error
	require.True(t, errors.As(mapped, &appErr))
	assert.Contains(t, appErr.Fields, "shortCode")

	other := writeError("updating", errors.New("disk I/O error"))
	assert.False(t, apperr.IsValidation(other))
	assert.EqualError(t, other, "updating qr code: disk I/O error")
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerDropsBoundParams(t *testing.T) {
	var filter gorm.ParamsFilter = NewGormLogger(zap.NewNop(), false)

	sql, params := filter.ParamsFilter(context.Background(), "SELECT * FROM customers WHERE email = ?", "billing@acme.test")
	assert.Equal(t, "SELECT * FROM customers WHERE email = ?", sql)
	assert.Empty(t, params)
}

func TestGormLoggerLevels(t *testing.T) {
	assert.Equal(t, gormlogger.Warn, NewGormLogger(zap.NewNop(), false).level)
	assert.Equal(t, gormlogger.Info, NewGormLogger(zap.NewNop(), true).level)

	silent := NewGormLogger(zap.NewNop(), true).LogMode(gormlogger.Silent).(*GormLogger)
	assert.Equal(t, gormlogger.Silent, silent.level)
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "UPDATE", sqlOperation("update invoices set status = ?"))
	assert.Equal(t, "SELECT", sqlOperation("(SELECT 1)"))
	assert.Equal(t, "UNKNOWN", sqlOperation("BEGIN"))
}

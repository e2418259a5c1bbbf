package core

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestConfig(t *testing.T) {
	conf := NewTestConfig()
	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.False(t, conf.Debug)
	assert.Equal(t, "Maktaba", conf.DefaultFromEmail.Name)
	assert.Equal(t, "noreply@localhost", conf.DefaultFromEmail.Address)

	lib := conf.Library
	assert.Equal(t, "1.00", lib.DailyFineRate.StringFixed(2))
	assert.Equal(t, "25.00", lib.LostReplacementCost.StringFixed(2))
	assert.Equal(t, "10.00", lib.DamageCost.StringFixed(2))
	assert.Equal(t, 2, lib.MaxRenewals)
	assert.Equal(t, 14, lib.RenewalDays)
	assert.Equal(t, 14, lib.DefaultLoanDays)
	assert.Equal(t, 3, lib.DefaultBorrowLimit)
	assert.Equal(t, 24*time.Hour, lib.SweepInterval)
	assert.Equal(t, 3, lib.ConflictRetries)
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("library.dailyFineRate", "0.75")
	v.Set("library.maxRenewals", 5)
	v.Set("database.engine", "sqlite3")

	conf, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "0.75", conf.Library.DailyFineRate.String())
	assert.Equal(t, 5, conf.Library.MaxRenewals)
	assert.Equal(t, "sqlite3", conf.Database.Engine)
	assert.Equal(t, "localhost:5432", conf.Database.Address())

	v.Set("library.damageCost", "-1")
	_, err = fromViper(v)
	assert.Error(t, err)

	v.Set("library.damageCost", "ten")
	_, err = fromViper(v)
	assert.Error(t, err)
}

func TestNewConfig_env(t *testing.T) {
	t.Setenv("ENV", "qa")
	t.Setenv("QA_LIBRARY_MAXRENEWALS", "7")
	t.Setenv("QA_SERVER_ADDRESS", ":9090")

	conf := NewConfig()
	assert.Equal(t, "QA", conf.Env)
	assert.Equal(t, 7, conf.Library.MaxRenewals)
	assert.Equal(t, ":9090", conf.Server.Address)
	assert.NotEmpty(t, conf.WorkDir)
}

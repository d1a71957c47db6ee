package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("traffic-prediction")
	require.NoError(t, err)

	assert.Equal(t, "traffic-prediction", cfg.Server.ServiceName)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)

	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, 3, cfg.Redis.OpTimeout)

	assert.Equal(t, "./models", cfg.Model.Dir)
	assert.Equal(t, 50.0, cfg.Model.BaseSpeedLimit)
	assert.Equal(t, 30, cfg.Model.PredictionTTLMinutes)
	assert.Equal(t, 0.0, cfg.Model.MinTestR2)
	assert.Equal(t, int64(42), cfg.Model.TrainSeed)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("BASE_SPEED_LIMIT", "80")
	t.Setenv("MODEL_MIN_TEST_R2", "0.7")
	t.Setenv("REDIS_OP_TIMEOUT", "5")

	cfg, err := Load("traffic-prediction")
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 80.0, cfg.Model.BaseSpeedLimit)
	assert.Equal(t, 0.7, cfg.Model.MinTestR2)
	assert.Equal(t, 5, cfg.Redis.OpTimeout)
}

func TestRedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: "6380"}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}

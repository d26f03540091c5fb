package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "offers_db", cfg.Database.Database)
			assert.Equal(t, "imports_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "imports_queue", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, 2, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
			assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
			assert.Equal(t, 10*time.Minute, cfg.Worker.SweepInterval)
			assert.Equal(t, 5*time.Minute, cfg.Worker.ScheduleInterval)
			assert.Equal(t, 200*time.Millisecond, cfg.Importer.PageDelay)
			assert.Equal(t, 50, cfg.Importer.BatchSize)
			assert.Equal(t, "offer-api-service", cfg.App.Name)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/missing_database.yaml")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Importer.HTTPTimeout)
	assert.Equal(t, 8, cfg.Importer.PageSize)
	assert.Equal(t, 100, cfg.Importer.BatchSize)
	assert.Equal(t, 500, cfg.Importer.MaxPages)
	assert.Equal(t, "offer-importer/1.0", cfg.Importer.UserAgent)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("OFFERS_TEST_DB_HOST", "db.internal")
	t.Setenv("OFFERS_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/env_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "offers_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "imports_exchange"},
			Queue:    QueueConfig{Name: "imports_queue"},
		},
		Redis: RedisConfig{Addr: "localhost:6379", LockTTL: 5 * time.Minute},
		Worker: WorkerConfig{
			Concurrency: 2,
			JobTimeout:  time.Minute,
		},
		Importer: ImporterConfig{BatchSize: 100},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "server port too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "server port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "empty exchange name", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "empty queue name", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{name: "missing redis addr", mutate: func(c *Config) { c.Redis.Addr = "" }, errString: "redis addr is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "server port is irrelevant", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero job timeout", mutate: func(c *Config) { c.Worker.JobTimeout = 0 }, errString: "worker job_timeout"},
		{name: "negative sweep interval", mutate: func(c *Config) { c.Worker.SweepInterval = -time.Second }, errString: "sweep_interval"},
		{name: "missing queue", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{name: "missing redis addr", mutate: func(c *Config) { c.Redis.Addr = "" }, errString: "redis addr is required"},
		{name: "lock ttl equal to job timeout", mutate: func(c *Config) { c.Redis.LockTTL = c.Worker.JobTimeout }, errString: "lock_ttl"},
		{name: "lock ttl below job timeout", mutate: func(c *Config) { c.Worker.JobTimeout = 10 * time.Minute }, errString: "lock_ttl"},
		{name: "negative schedule interval", mutate: func(c *Config) { c.Worker.ScheduleInterval = -time.Second }, errString: "schedule_interval"},
		{name: "scheduling enabled", mutate: func(c *Config) { c.Worker.ScheduleInterval = 5 * time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

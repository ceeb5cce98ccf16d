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
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "matchsight", cfg.Database.Database)
				assert.Equal(t, "analyses", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "analysis-jobs", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "match-videos", cfg.Storage.Bucket)
				assert.Equal(t, "matchsight-api", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// Fields absent from the file fall back to defaults
	assert.Equal(t, DefaultPollInterval, cfg.Tracker.PollInterval)
	assert.Equal(t, int64(DefaultMaxVideoBytes), cfg.Tracker.MaxVideoBytes)
	assert.Equal(t, 300, cfg.Inference.MaxTokens)
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "matchsight",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "analyses",
			},
			Queue: QueueConfig{
				Name: "analysis-jobs",
			},
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "match-videos",
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid server port - too low",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "invalid server port - too high",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "empty database host",
			mutate: func(c *Config) {
				c.Database.Host = ""
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "empty database name",
			mutate: func(c *Config) {
				c.Database.Database = ""
			},
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "empty rabbitmq host",
			mutate: func(c *Config) {
				c.RabbitMQ.Host = ""
			},
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "empty exchange name",
			mutate: func(c *Config) {
				c.RabbitMQ.Exchange.Name = ""
			},
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name: "empty queue name",
			mutate: func(c *Config) {
				c.RabbitMQ.Queue.Name = ""
			},
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name: "empty storage endpoint",
			mutate: func(c *Config) {
				c.Storage.Endpoint = ""
			},
			wantErr:   true,
			errString: "storage endpoint is required",
		},
		{
			name: "empty storage bucket",
			mutate: func(c *Config) {
				c.Storage.Bucket = ""
			},
			wantErr:   true,
			errString: "storage bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func validWorkerConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "matchsight",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "analyses",
			},
			Queue: QueueConfig{
				Name: "analysis-jobs",
			},
		},
		Inference: InferenceConfig{
			BaseURL: "https://api.openai.com",
		},
		Worker: WorkerConfig{
			Concurrency:       4,
			JobTimeout:        90 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty inference base_url",
			mutate: func(c *Config) {
				c.Inference.BaseURL = ""
			},
			wantErr:   true,
			errString: "inference base_url is required",
		},
		{
			name: "zero concurrency",
			mutate: func(c *Config) {
				c.Worker.Concurrency = 0
			},
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name: "zero job timeout",
			mutate: func(c *Config) {
				c.Worker.JobTimeout = 0
			},
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name: "zero heartbeat interval",
			mutate: func(c *Config) {
				c.Worker.HeartbeatInterval = 0
			},
			wantErr:   true,
			errString: "worker heartbeat_interval must be greater than 0",
		},
		{
			name: "zero shutdown timeout",
			mutate: func(c *Config) {
				c.Worker.ShutdownTimeout = 0
			},
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name: "empty database host",
			mutate: func(c *Config) {
				c.Database.Host = ""
			},
			wantErr:   true,
			errString: "database host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("valid port range", func(t *testing.T) {
		validPorts := []int{1, 80, 443, 8080, 65535}
		for _, port := range validPorts {
			assert.GreaterOrEqual(t, port, MinPort)
			assert.LessOrEqual(t, port, MaxPort)
		}
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}

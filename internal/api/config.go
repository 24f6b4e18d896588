package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/falconeri/falconeri/internal/config"
)

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8080
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
	// DefaultHost is the default server host.
	DefaultHost = "0.0.0.0"
	// DefaultTimeout is the default timeout for HTTP operations.
	DefaultTimeout = 30 * time.Second
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = slog.LevelInfo
	// DefaultMaxRequestSize bounds request bodies the API will decode.
	DefaultMaxRequestSize = 4 << 20 // 4 MiB
	// BasicAuthUser is the one recognised HTTP Basic user (spec.md §4.7).
	BasicAuthUser = "falconeri"
	// DefaultGlobalRPS bounds total request throughput across all pods.
	DefaultGlobalRPS = 500
	// DefaultPerClientRPS bounds one pod's request rate.
	DefaultPerClientRPS = 20
)

// Static validation errors.
var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrEmptyHost              = errors.New("host cannot be empty")
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrMissingAdminPassword   = errors.New("FALCONERI_ADMIN_PASSWORD is required")
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
	MaxRequestSize  int64
	AdminPassword   string
	Namespace       string
	GlobalRPS       int
	PerClientRPS    int
}

// LoadServerConfig loads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Port:            config.GetEnvInt("FALCONERI_PORT", DefaultPort),
		Host:            config.GetEnvStr("FALCONERI_HOST", DefaultHost),
		ReadTimeout:     config.GetEnvDuration("FALCONERI_READ_TIMEOUT", DefaultTimeout),
		WriteTimeout:    config.GetEnvDuration("FALCONERI_WRITE_TIMEOUT", DefaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("FALCONERI_SHUTDOWN_TIMEOUT", DefaultTimeout),
		LogLevel:        config.GetEnvLogLevel("LOG_LEVEL", DefaultLogLevel),
		MaxRequestSize:  int64(config.GetEnvInt("FALCONERI_MAX_REQUEST_SIZE", DefaultMaxRequestSize)),
		AdminPassword:   config.GetEnvStr("FALCONERI_ADMIN_PASSWORD", ""),
		Namespace:       config.GetEnvStr("FALCONERI_K8S_NAMESPACE", "default"),
		GlobalRPS:       config.GetEnvInt("FALCONERI_GLOBAL_RPS", DefaultGlobalRPS),
		PerClientRPS:    config.GetEnvInt("FALCONERI_PER_CLIENT_RPS", DefaultPerClientRPS),
	}
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, MaxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.AdminPassword == "" {
		return ErrMissingAdminPassword
	}

	return nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// DefaultPort порт публичного сервера, если он не задан ни в файле, ни в окружении
const DefaultPort = 3000

// Config представляет конфигурацию приложения. Структура содержит вложенные структуры для различных компонентов приложения.
type Config struct {
	Server      ServerConfig  `json:"server" yaml:"server"`
	Admin       AdminConfig   `json:"admin" yaml:"admin"`
	Logger      LoggerConfig  `json:"logger" yaml:"logger"`
	Tracing     TracingConfig `json:"tracing" yaml:"tracing"`
	Environment string        `json:"environment" yaml:"environment" validate:"oneof=dev staging prod"`
}

// ServerConfig представляет конфигурацию публичного HTTP-сервера.
type ServerConfig struct {
	Host            string   `json:"host" yaml:"host" validate:"required"`
	Port            int      `json:"port" yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// AdminConfig представляет конфигурацию служебного сервера (health, ready, live, metrics).
// По умолчанию выключен, чтобы публичный порт обслуживал ровно один маршрут.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host" validate:"required"`
	Port    int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
}

// LoggerConfig представляет конфигурацию логгера. Определяет уровень логирования и формат вывода логов.
type LoggerConfig struct {
	Level  string     `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string     `json:"format" yaml:"format" validate:"oneof=json console"`
	File   FileConfig `json:"file" yaml:"file"`
}

// FileConfig настройки файлового вывода логов с ротацией.
// Пустой Path отключает запись в файл.
type FileConfig struct {
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// TracingConfig представляет конфигурацию OpenTelemetry
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Duration time.Duration, который читается из строки вида "30s" в YAML и JSON
type Duration time.Duration

// Std возвращает значение как time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML разбирает длительность из строки
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalYAML сериализует длительность в строку
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON разбирает длительность из строки
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

// MarshalJSON сериализует длительность в строку
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Addr возвращает адрес host:port публичного сервера
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Addr возвращает адрес host:port служебного сервера
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Admin: AdminConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    9090,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
			File: FileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Environment: "dev",
	}
}

// LoadConfig загружает конфигурацию в следующем порядке приоритета:
// 1. Загрузка значений по умолчанию
// 2. Загрузка из файла (если указан)
// 3. Переопределение значениями из переменных окружения
// 4. Валидация конфигурации
// Возвращает готовую конфигурацию или ошибку.
func LoadConfig(configFile string) (*Config, error) {
	config := Default()

	// Load from file if specified
	if configFile != "" {
		if err := loadConfigFromFile(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Load from environment variables
	if err := loadConfigFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadConfigFromFile(config *Config, filename string) error {
	// Expand environment variables in the file path
	filename = os.ExpandEnv(filename)

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", filename)
	}

	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	// Try to unmarshal as YAML first, then JSON
	if err := yaml.Unmarshal(content, config); err != nil {
		if jsonErr := json.Unmarshal(content, config); jsonErr != nil {
			return fmt.Errorf("failed to unmarshal config file as YAML or JSON: %w", err)
		}
	}

	return nil
}

func loadConfigFromEnv(config *Config) error {
	// Server config. PORT имеет приоритет над SERVER_PORT
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if err := parsePort("SERVER_PORT", port, &config.Server.Port); err != nil {
			return err
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		if err := parsePort("PORT", port, &config.Server.Port); err != nil {
			return err
		}
	}

	// Admin config
	if enabled := os.Getenv("ADMIN_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_ENABLED: %s", enabled)
		}
		config.Admin.Enabled = v
	}
	if host := os.Getenv("ADMIN_HOST"); host != "" {
		config.Admin.Host = host
	}
	if port := os.Getenv("ADMIN_PORT"); port != "" {
		if err := parsePort("ADMIN_PORT", port, &config.Admin.Port); err != nil {
			return err
		}
	}

	// Logger config
	if level := os.Getenv("LOGGER_LEVEL"); level != "" {
		config.Logger.Level = level
	}
	if format := os.Getenv("LOGGER_FORMAT"); format != "" {
		config.Logger.Format = format
	}
	if path := os.Getenv("LOGGER_FILE"); path != "" {
		config.Logger.File.Path = path
	}

	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid TRACING_ENABLED: %s", enabled)
		}
		config.Tracing.Enabled = v
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Environment = env
	}

	return nil
}

// parsePort разбирает номер порта из переменной окружения. Диапазон проверяется в validateConfig.
func parsePort(name, value string, dst *int) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid %s: %s", name, value)
	}
	*dst = port
	return nil
}

var validate = validator.New()

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on '%s' (value: %v)", fieldPath(fe), fe.Tag(), fe.Value())
		}
		return err
	}

	// Служебный сервер не может делить порт с публичным
	if config.Admin.Enabled && config.Admin.Port == config.Server.Port {
		return fmt.Errorf("admin.port must differ from server.port (%d)", config.Server.Port)
	}

	return nil
}

// fieldPath превращает "Config.Server.Port" в "server.port"
func fieldPath(fe validator.FieldError) string {
	ns := strings.TrimPrefix(fe.StructNamespace(), "Config.")
	return strings.ToLower(ns)
}

// Save сохраняет конфигурацию в файл в формате YAML.
// Автоматически создает директорию, если она не существует.
func (c *Config) Save(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	content, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, content, 0644)
}

// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell 注入）
//  2. YAML 配置文件（configs/{env}.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：密码/密钥只存在 .env 中，YAML 不存储任何密码。
// APP_ENV 选择环境：dev（默认）/ test / prod。
//
// 配置对象在进程入口构建一次，显式注入各组件，不使用包级全局变量。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// ============================================================================
// 配置结构
// ============================================================================

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port         string `yaml:"port"`
	ClientOrigin string `yaml:"client_origin"` // 允许的前端来源（CORS）
}

// DatabaseConfig MongoDB 配置
type DatabaseConfig struct {
	URI  string `yaml:"uri"` // 优先于 host/port，如 mongodb://localhost:27017
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// RedisConfig Redis 配置（认证接口限流用，可缺省）
type RedisConfig struct {
	Addr     string `yaml:"addr"` // 为空时禁用限流
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret     string        `yaml:"-"` // 只从 JWT_SECRET 环境变量读取
	TokenTTL      time.Duration `yaml:"-"` // token_ttl 解析结果
	TokenTTLRaw   string        `yaml:"token_ttl"`
	AdminEmail    string        `yaml:"-"` // 只从 ADMIN_EMAIL 环境变量读取
	AdminPassword string        `yaml:"-"` // 只从 ADMIN_PASSWORD 环境变量读取
}

// RateLimitConfig 认证接口限流配置（固定窗口）
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Limit     int           `yaml:"limit"` // 窗口内允许的请求数
	Window    time.Duration `yaml:"-"`     // window 解析结果
	WindowRaw string        `yaml:"window"` // 例如 "1m"
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env       Environment     `yaml:"-"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// ============================================================================
// 加载
// ============================================================================

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	cfg := defaults()
	cfg.Env = env

	// YAML 覆盖默认值
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 环境变量覆盖 YAML
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CLIENT_URL"); v != "" {
		cfg.Server.ClientOrigin = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Database.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	// 敏感信息只从环境变量读取
	cfg.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	cfg.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.AdminEmail = os.Getenv("ADMIN_EMAIL")
	cfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	cfg.resolve()
	return cfg
}

// defaults 返回硬编码默认配置
func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", ClientOrigin: "http://localhost:3000"},
		Database: DatabaseConfig{Host: "localhost", Port: 27017, Name: "scholarcamp"},
		MinIO:    MinIOConfig{Endpoint: "localhost:9000", Bucket: "scholarcamp-notes"},
		Auth:     AuthConfig{TokenTTLRaw: "168h"},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Limit:     20,
			WindowRaw: "1m",
		},
	}
}

// resolve 解析派生字段并填充默认值
func (c *Config) resolve() {
	if c.Auth.TokenTTLRaw == "" {
		c.Auth.TokenTTLRaw = "168h"
	}
	ttl, err := time.ParseDuration(c.Auth.TokenTTLRaw)
	if err != nil || ttl <= 0 {
		ttl = 168 * time.Hour // 7 天，与原服务一致
	}
	c.Auth.TokenTTL = ttl

	if c.RateLimit.WindowRaw == "" {
		c.RateLimit.WindowRaw = "1m"
	}
	win, err := time.ParseDuration(c.RateLimit.WindowRaw)
	if err != nil || win <= 0 {
		win = time.Minute
	}
	c.RateLimit.Window = win
	if c.RateLimit.Limit <= 0 {
		c.RateLimit.Limit = 20
	}
}

// MongoURI 返回 MongoDB 连接 URI，显式 uri 优先于 host/port
func (c *Config) MongoURI() string {
	if c.Database.URI != "" {
		return c.Database.URI
	}
	return fmt.Sprintf("mongodb://%s:%d", c.Database.Host, c.Database.Port)
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Mongo: %s/%s, MinIO: %s/%s, Origin: %s}",
		c.Env, maskPassword(c.MongoURI()), c.Database.Name,
		c.MinIO.Endpoint, c.MinIO.Bucket, c.Server.ClientOrigin)
}

// ============================================================================
// 工具函数
// ============================================================================

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// maskPassword 隐藏连接串中的密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:/@]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

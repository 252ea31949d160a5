package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fieldcrew/backend/pkg/dateutil"
)

// 补位负责人的策略名称
const (
	LeadPolicyEarliestAssigned = "earliest_assigned"
	LeadPolicyRoleSeniority    = "role_seniority"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（分布式锁、限流）
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置；Token 由外部认证系统签发
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig 排班与工时核对策略
type SchedulerConfig struct {
	LookaheadDays       int           `mapstructure:"lookahead_days"`
	DefaultShiftHours   float64       `mapstructure:"default_shift_hours"`
	DefaultShiftStart   string        `mapstructure:"default_shift_start"` // HH:MM，补录排班使用
	HoursTolerance      float64       `mapstructure:"hours_tolerance"`
	DelaySweepInterval  time.Duration `mapstructure:"delay_sweep_interval"`
	LeadPromotionPolicy string        `mapstructure:"lead_promotion_policy"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	LockWait            time.Duration `mapstructure:"lock_wait"`
	Timezone            string        `mapstructure:"timezone"`
}

// Location 解析业务时区；"今天"按此时区计算
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("FIELDCREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "fieldcrew")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 无默认值的键也需注册，AutomaticEnv 才会在 Unmarshal 时读取对应环境变量
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "fieldcrew-auth")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.lookahead_days", 14)
	v.SetDefault("scheduler.default_shift_hours", 8)
	v.SetDefault("scheduler.default_shift_start", "07:00")
	v.SetDefault("scheduler.hours_tolerance", 0)
	v.SetDefault("scheduler.delay_sweep_interval", "1h")
	v.SetDefault("scheduler.lead_promotion_policy", LeadPolicyEarliestAssigned)
	v.SetDefault("scheduler.lock_ttl", "10s")
	v.SetDefault("scheduler.lock_wait", "5s")
	v.SetDefault("scheduler.timezone", "UTC")
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}

	s := c.Scheduler
	if s.LookaheadDays <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.lookahead_days 必须大于 0")
	}
	if s.DefaultShiftHours <= 0 || s.DefaultShiftHours > 24 {
		return fmt.Errorf("配置校验失败: scheduler.default_shift_hours 必须在 (0, 24] 之间")
	}
	if start, err := dateutil.ParseClock(s.DefaultShiftStart); err != nil || start >= 24*60 {
		return fmt.Errorf("配置校验失败: scheduler.default_shift_start 应为 00:00-23:59 的 HH:MM，实际 %q", s.DefaultShiftStart)
	}
	if s.HoursTolerance < 0 {
		return fmt.Errorf("配置校验失败: scheduler.hours_tolerance 不能为负数")
	}
	if s.DelaySweepInterval <= 0 {
		return fmt.Errorf("配置校验失败: scheduler.delay_sweep_interval 必须大于 0")
	}
	switch s.LeadPromotionPolicy {
	case LeadPolicyEarliestAssigned, LeadPolicyRoleSeniority:
	default:
		return fmt.Errorf("配置校验失败: 未知的 scheduler.lead_promotion_policy %q", s.LeadPromotionPolicy)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("配置校验失败: scheduler.timezone 无效: %w", err)
	}
	return nil
}

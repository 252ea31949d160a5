package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("FIELDCREW_AUTH_JWT_SECRET", "unit-test-secret-0123456789")
	t.Setenv("FIELDCREW_SCHEDULER_LOOKAHEAD_DAYS", "21")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 port=9090，实际=%d", cfg.Server.Port)
	}
	if cfg.Scheduler.LookaheadDays != 21 {
		t.Errorf("期望 lookahead_days=21（环境变量覆盖），实际=%d", cfg.Scheduler.LookaheadDays)
	}
	if cfg.Scheduler.DefaultShiftHours != 8 {
		t.Errorf("期望 default_shift_hours=8，实际=%v", cfg.Scheduler.DefaultShiftHours)
	}
	if cfg.Scheduler.DelaySweepInterval != time.Hour {
		t.Errorf("期望 delay_sweep_interval=1h，实际=%v", cfg.Scheduler.DelaySweepInterval)
	}
	if cfg.Auth.JWTSecret != "unit-test-secret-0123456789" {
		t.Errorf("期望 jwt_secret 取自环境变量，实际=%q", cfg.Auth.JWTSecret)
	}
	if cfg.Scheduler.DefaultShiftStart != "07:00" {
		t.Errorf("期望 default_shift_start=07:00，实际=%s", cfg.Scheduler.DefaultShiftStart)
	}
	if cfg.Scheduler.LeadPromotionPolicy != LeadPolicyEarliestAssigned {
		t.Errorf("期望默认策略 earliest_assigned，实际=%s", cfg.Scheduler.LeadPromotionPolicy)
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Auth:   AuthConfig{JWTSecret: "unit-test-secret-0123456789"},
		Scheduler: SchedulerConfig{
			LookaheadDays:       14,
			DefaultShiftHours:   8,
			DefaultShiftStart:   "07:00",
			DelaySweepInterval:  time.Hour,
			LeadPromotionPolicy: LeadPolicyEarliestAssigned,
			Timezone:            "UTC",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"合法配置", func(c *Config) {}, false},
		{"密钥过短", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }, true},
		{"look-ahead 为 0", func(c *Config) { c.Scheduler.LookaheadDays = 0 }, true},
		{"容差为负", func(c *Config) { c.Scheduler.HoursTolerance = -1 }, true},
		{"未知补位策略", func(c *Config) { c.Scheduler.LeadPromotionPolicy = "coin_flip" }, true},
		{"按角色资历补位", func(c *Config) { c.Scheduler.LeadPromotionPolicy = LeadPolicyRoleSeniority }, false},
		{"补录开始时间格式错误", func(c *Config) { c.Scheduler.DefaultShiftStart = "7am" }, true},
		{"补录开始时间越界", func(c *Config) { c.Scheduler.DefaultShiftStart = "24:00" }, true},
		{"时区无效", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingSecretRejected(t *testing.T) {
	t.Setenv("FIELDCREW_AUTH_JWT_SECRET", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("缺少 jwt_secret 时 Load 应失败")
	}
}

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultStripPort     = 23
	DefaultStripInterval = 30 * time.Second
)

// StripID 未配置 id 时使用 ptsp01_<host 小写>
func StripID(host string) string {
	return "ptsp01_" + strings.ToLower(host)
}

func (s *StripConfig) applyDefaults() {
	s.Host = strings.TrimSpace(s.Host)
	if s.ID == "" && s.Host != "" {
		s.ID = StripID(s.Host)
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Port == 0 {
		s.Port = DefaultStripPort
	}
	if s.Interval <= 0 {
		s.Interval = DefaultStripInterval
	}
	if s.SwitchRate <= 0 {
		s.SwitchRate = 2
	}
	if s.SwitchBurst <= 0 {
		s.SwitchBurst = 3
	}
}

// Addr host:port
func (s StripConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// Validate 检查排插列表及各组件的必要配置
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Strips))
	for i, s := range c.Strips {
		if s.Host == "" {
			errs = append(errs, fmt.Errorf("strips[%d]: host is required", i))
		}
		if s.Port <= 0 || s.Port > 65535 {
			errs = append(errs, fmt.Errorf("strips[%d]: invalid port %d", i, s.Port))
		}
		if _, dup := seen[s.ID]; dup {
			errs = append(errs, fmt.Errorf("strips[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = struct{}{}
	}
	if c.Database.Enable && c.Database.DSN == "" {
		errs = append(errs, errors.New("database: dsn is required when enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required when enabled"))
	}
	if c.MQTT.Enable && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt: broker is required when enabled"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt: invalid qos %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

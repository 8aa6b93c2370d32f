package health

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01/ptsp01test"
)

type fakeRedis struct {
	err   error
	stats redis.PoolStats
}

func (f *fakeRedis) HealthCheck(context.Context) error { return f.err }
func (f *fakeRedis) Stats() *redis.PoolStats           { return &f.stats }

type hubList []*hub.Hub

func (l hubList) List() []*hub.Hub { return l }

func TestRedisChecker(t *testing.T) {
	t.Run("连接池正常", func(t *testing.T) {
		c := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8, Hits: 5}})
		r := c.Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, "20.0%", r.Details["utilization"])
	})

	t.Run("Ping失败降级", func(t *testing.T) {
		c := NewRedisChecker(&fakeRedis{err: errors.New("dial tcp: refused")})
		r := c.Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
		assert.Contains(t, r.Message, "refused")
	})

	t.Run("连接池接近上限", func(t *testing.T) {
		c := NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 0}})
		assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
	})
}

func TestStripChecker(t *testing.T) {
	t.Run("无排插视为健康", func(t *testing.T) {
		r := NewStripChecker(hubList{}).Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, "strips", NewStripChecker(hubList{}).Name())
	})

	t.Run("未登录为降级", func(t *testing.T) {
		h := hub.New(hub.Options{ID: "desk", Session: ptsp01.Options{Host: "10.0.0.7"}})
		defer h.Close()

		r := NewStripChecker(hubList{h}).Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
		assert.Equal(t, "0/1 strips online", r.Message)
		detail, ok := r.Details["desk"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, StatusDegraded, detail["status"])
	})

	t.Run("登录成功与密码错误", func(t *testing.T) {
		dev, err := ptsp01test.Start("secret")
		require.NoError(t, err)
		defer dev.Close()

		opts := func(password string) ptsp01.Options {
			return ptsp01.Options{Host: dev.Host(), Port: dev.Port(), Password: password}
		}
		good := hub.New(hub.Options{ID: "good", Session: opts("secret")})
		defer good.Close()
		require.NoError(t, good.Setup(context.Background()))

		c := NewStripChecker(hubList{good})
		assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

		bad := hub.New(hub.Options{ID: "bad", Session: opts("wrong")})
		defer bad.Close()
		require.Error(t, bad.Setup(context.Background()))

		agg := NewAggregator(NewStripChecker(hubList{good, bad}))
		report := agg.Report(context.Background())
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Equal(t, "1/2 strips online", report.Checks["strips"].Message)
		assert.False(t, agg.Ready(context.Background()))
	})
}

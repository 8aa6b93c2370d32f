package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/config"
)

// Manager 管理全部已配置的排插
type Manager struct {
	log   *zap.Logger
	mu    sync.RWMutex
	hubs  map[string]*Hub
	order []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 按配置创建 Hub，id 重复时报错
func NewManager(strips []config.StripConfig, logger *zap.Logger, listeners ...Listener) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{log: logger, hubs: make(map[string]*Hub, len(strips))}
	for _, sc := range strips {
		if err := m.Add(New(OptionsFromConfig(sc, logger), listeners...)); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

// Add 注册一个已创建的 Hub
func (m *Manager) Add(h *Hub) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.hubs[h.ID()]; dup {
		_ = h.Close()
		return fmt.Errorf("duplicate strip id %q", h.ID())
	}
	m.hubs[h.ID()] = h
	m.order = append(m.order, h.ID())
	return nil
}

// Get 按 id 查找
func (m *Manager) Get(id string) (*Hub, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hubs[id]
	return h, ok
}

// List 按注册顺序返回
func (m *Manager) List() []*Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Hub, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.hubs[id])
	}
	return out
}

// AddListener 为全部 Hub 追加订阅者
func (m *Manager) AddListener(l Listener) {
	for _, h := range m.List() {
		h.AddListener(l)
	}
}

// Ready 至少有一台在线（无排插时视为就绪）
func (m *Manager) Ready() bool {
	hubs := m.List()
	if len(hubs) == 0 {
		return true
	}
	for _, h := range hubs {
		if h.Online() {
			return true
		}
	}
	return false
}

// StartAll 并发启动全部 Hub，连接失败的在后台重试；
// 认证失败的 Hub 保持失败状态，不再重试。
func (m *Manager) StartAll(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	for _, h := range m.List() {
		m.wg.Add(1)
		go func(h *Hub) {
			defer m.wg.Done()
			err := h.Run(ctx)
			switch {
			case err == nil:
				m.log.Info("strip ready", zap.String("strip", h.ID()), zap.String("version", h.Version()))
			case errors.Is(err, ErrAuthFailed):
				m.log.Error("strip authentication failed, check password", zap.String("strip", h.ID()), zap.Error(err))
			default:
				m.log.Info("strip setup stopped", zap.String("strip", h.ID()), zap.Error(err))
			}
		}(h)
	}
}

// Close 停止后台重试并关闭全部 Hub
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, h := range m.List() {
		if err := h.Close(); err != nil {
			m.log.Warn("close strip", zap.String("strip", h.ID()), zap.Error(err))
		}
	}
	m.wg.Wait()
}

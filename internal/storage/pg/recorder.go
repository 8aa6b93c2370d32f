package pg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
	"github.com/taoyao-code/ptsp01-gateway/internal/storage/models"
)

// DefaultFlushInterval 历史写入周期
const DefaultFlushInterval = time.Minute

var sampleColumns = []string{"strip_id", "socket", "switch_on", "voltage", "current", "power", "energy", "sampled_at"}

// Copier 批量写入（*pgxpool.Pool 满足）
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// StateStore 当前状态存储（gormrepo.Repository 满足）
type StateStore interface {
	UpsertOutlets(ctx context.Context, outlets []models.Outlet) error
	UpsertStrip(ctx context.Context, strip models.Strip) error
}

type outletKey struct {
	strip  string
	socket int
}

// Recorder 订阅 Hub 事件，按周期把每个插座的最新快照写入 outlet_samples 并更新 outlets
type Recorder struct {
	copier   Copier
	store    StateStore
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.AppMetrics

	mu      sync.Mutex
	pending map[outletKey]models.OutletSample
	outlets map[outletKey]models.Outlet // 样本已写入、状态待重试
	strips  map[string]models.Strip
}

// NewRecorder 创建历史记录器，store 可为 nil（仅写样本）
func NewRecorder(copier Copier, store StateStore, interval time.Duration, m *metrics.AppMetrics, logger *zap.Logger) *Recorder {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		copier:   copier,
		store:    store,
		interval: interval,
		log:      logger,
		metrics:  m,
		pending:  make(map[outletKey]models.OutletSample),
		outlets:  make(map[outletKey]models.Outlet),
		strips:   make(map[string]models.Strip),
	}
}

func optional(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// sampleOf 将插座状态转为样本，未知值写 NULL
func sampleOf(ev hub.OutletEvent) models.OutletSample {
	st := ev.State
	s := models.OutletSample{
		StripID:   ev.StripID,
		Socket:    int32(ev.Socket),
		Voltage:   optional(st.Voltage),
		Current:   optional(st.Current),
		Power:     optional(st.Power),
		Energy:    optional(st.EffectiveEnergy()),
		SampledAt: ev.At,
	}
	if ev.SwitchKnown {
		on := st.Switch
		s.SwitchOn = &on
	}
	if s.SampledAt.IsZero() {
		s.SampledAt = time.Now()
	}
	return s
}

// OnOutletUpdate 实现 hub.Listener，同一周期内只保留最新快照
func (r *Recorder) OnOutletUpdate(ev hub.OutletEvent) {
	if !ptsp01.ValidSocket(ev.Socket) {
		return
	}
	s := sampleOf(ev)
	r.mu.Lock()
	r.pending[outletKey{ev.StripID, ev.Socket}] = s
	r.mu.Unlock()
}

// OnAvailability 实现 hub.Listener
func (r *Recorder) OnAvailability(ev hub.AvailabilityEvent) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	s := models.Strip{
		ID:     ev.StripID,
		Host:   ev.Host,
		Online: ev.Kind == hub.Online,
		State:  ev.Kind.String(),
	}
	if ev.Version != "" {
		v := ev.Version
		s.Version = &v
	}
	if ev.Err != nil {
		msg := ev.Err.Error()
		s.LastError = &msg
	}
	if s.Online {
		s.LastSeen = &at
	}
	r.mu.Lock()
	r.strips[ev.StripID] = s
	r.mu.Unlock()
}

// Pending 待写入的插座样本数
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func outletOf(s models.OutletSample) models.Outlet {
	return models.Outlet{
		StripID:  s.StripID,
		Socket:   s.Socket,
		SwitchOn: s.SwitchOn,
		Voltage:  s.Voltage,
		Current:  s.Current,
		Power:    s.Power,
		Energy:   s.Energy,
	}
}

// take 取出本周期数据；outlets 含上次更新失败的状态，被新样本覆盖
func (r *Recorder) take() ([]models.OutletSample, []models.Outlet, []models.Strip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := make([]models.OutletSample, 0, len(r.pending))
	for _, s := range r.pending {
		samples = append(samples, s)
	}
	var outlets []models.Outlet
	if r.store != nil {
		for k, s := range r.pending {
			r.outlets[k] = outletOf(s)
		}
		outlets = make([]models.Outlet, 0, len(r.outlets))
		for _, o := range r.outlets {
			outlets = append(outlets, o)
		}
	}
	strips := make([]models.Strip, 0, len(r.strips))
	for _, s := range r.strips {
		strips = append(strips, s)
	}
	r.pending = make(map[outletKey]models.OutletSample)
	r.outlets = make(map[outletKey]models.Outlet)
	r.strips = make(map[string]models.Strip)

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].StripID != samples[j].StripID {
			return samples[i].StripID < samples[j].StripID
		}
		return samples[i].Socket < samples[j].Socket
	})
	sort.Slice(outlets, func(i, j int) bool {
		if outlets[i].StripID != outlets[j].StripID {
			return outlets[i].StripID < outlets[j].StripID
		}
		return outlets[i].Socket < outlets[j].Socket
	})
	sort.Slice(strips, func(i, j int) bool { return strips[i].ID < strips[j].ID })
	return samples, outlets, strips
}

// requeue 放回写入失败的部分，期间产生的更新优先。
// 样本只在批量写入失败时放回，状态更新失败只重试状态。
func (r *Recorder) requeue(samples []models.OutletSample, outlets []models.Outlet, strips []models.Strip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		k := outletKey{s.StripID, int(s.Socket)}
		if _, ok := r.pending[k]; !ok {
			r.pending[k] = s
		}
	}
	for _, o := range outlets {
		k := outletKey{o.StripID, int(o.Socket)}
		if _, ok := r.pending[k]; ok {
			continue
		}
		if _, ok := r.outlets[k]; !ok {
			r.outlets[k] = o
		}
	}
	for _, s := range strips {
		if _, ok := r.strips[s.ID]; !ok {
			r.strips[s.ID] = s
		}
	}
}

// Flush 立即写入待处理数据
func (r *Recorder) Flush(ctx context.Context) error {
	samples, outlets, strips := r.take()
	if len(samples) == 0 && len(outlets) == 0 && len(strips) == 0 {
		return nil
	}
	var (
		errs         []error
		retrySamples []models.OutletSample
		retryOutlets []models.Outlet
		retryStrips  []models.Strip
	)
	if err := r.copySamples(ctx, samples); err != nil {
		errs = append(errs, err)
		retrySamples = samples
	}
	if r.store != nil {
		if len(outlets) > 0 {
			if err := r.store.UpsertOutlets(ctx, outlets); err != nil {
				errs = append(errs, fmt.Errorf("upsert outlets: %w", err))
				retryOutlets = outlets
			}
		}
		for _, s := range strips {
			if err := r.store.UpsertStrip(ctx, s); err != nil {
				errs = append(errs, fmt.Errorf("upsert strip %s: %w", s.ID, err))
				retryStrips = append(retryStrips, s)
			}
		}
	}

	err := errors.Join(errs...)
	r.metrics.Flush(err)
	if err != nil {
		r.requeue(retrySamples, retryOutlets, retryStrips)
		return err
	}
	r.log.Debug("history flushed", zap.Int("samples", len(samples)), zap.Int("outlets", len(outlets)), zap.Int("strips", len(strips)))
	return nil
}

func (r *Recorder) copySamples(ctx context.Context, samples []models.OutletSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []any{s.StripID, s.Socket, s.SwitchOn, s.Voltage, s.Current, s.Power, s.Energy, s.SampledAt})
	}
	if _, err := r.copier.CopyFrom(ctx, pgx.Identifier{"outlet_samples"}, sampleColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy samples: %w", err)
	}
	return nil
}

// Run 周期写入，ctx 结束时做最后一次写入
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.Flush(fctx); err != nil {
				r.log.Warn("final history flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.log.Warn("history flush failed", zap.Error(err))
			}
		}
	}
}

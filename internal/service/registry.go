package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"codechat/pkg/config"
)

const defaultRoomName = "general"

// Registry 是房間代碼到房間的唯一對照表
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	gen    CodeGenerator
	cfg    config.RoomsConfig
	logger *slog.Logger
	now    func() time.Time

	onRemove func(code string)
}

func NewRegistry(gen CodeGenerator, cfg config.RoomsConfig, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OnRemove 設定房間被移除後的回呼，在任何鎖之外執行
func (r *Registry) OnRemove(fn func(code string)) {
	r.onRemove = fn
}

// CreateRoom 分配新的代碼並登記一個空房間
func (r *Registry) CreateRoom(name string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultRoomName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.cfg.MaxCodeAttempts; attempt++ {
		code, err := r.gen.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		code = NormalizeCode(code)
		if !validCode(code, r.cfg.CodeLength) {
			return nil, fmt.Errorf("%w: generator produced %q", ErrInternal, code)
		}
		if _, taken := r.rooms[code]; taken {
			continue
		}

		room := newRoom(code, name, r.cfg.MaxHistory, r.now())
		r.rooms[code] = room
		r.logger.Info("room created", "room", code, "name", name)
		return room, nil
	}

	return nil, fmt.Errorf("%w: no free room code after %d attempts", ErrInternal, r.cfg.MaxCodeAttempts)
}

// Lookup 以不分大小寫的代碼查詢房間
func (r *Registry) Lookup(code string) (*Room, error) {
	code = NormalizeCode(code)
	if !validCode(code, r.cfg.CodeLength) {
		return nil, ErrInvalidCode
	}

	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove 移除一個空房間，有成員的房間不會被移除
func (r *Registry) Remove(code string) bool {
	code = NormalizeCode(code)

	r.mu.Lock()
	room, ok := r.rooms[code]
	removed := ok && r.removeLocked(room)
	r.mu.Unlock()

	if removed {
		r.removed(code)
	}
	return removed
}

// Release 在房間變空後呼叫，保留時間為 0 時立即移除
func (r *Registry) Release(room *Room) {
	if r.cfg.Retention > 0 {
		return
	}

	r.mu.Lock()
	removed := r.rooms[room.Code] == room && r.removeLocked(room)
	r.mu.Unlock()

	if removed {
		r.removed(room.Code)
	}
}

// Sweep 移除空置超過保留時間的房間，回傳移除數量
func (r *Registry) Sweep() int {
	if r.cfg.Retention <= 0 {
		return 0
	}
	now := r.now()

	var codes []string
	r.mu.Lock()
	for code, room := range r.rooms {
		room.mu.Lock()
		expired := len(room.members) == 0 && now.Sub(room.emptySince) >= r.cfg.Retention
		room.mu.Unlock()
		if expired && r.removeLocked(room) {
			codes = append(codes, code)
		}
	}
	r.mu.Unlock()

	for _, code := range codes {
		r.removed(code)
	}
	return len(codes)
}

// Run 定期清理空房間，直到 ctx 結束
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("swept empty rooms", "count", n)
			}
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// removeLocked 需持有 r.mu
func (r *Registry) removeLocked(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.members) > 0 || room.closed {
		return false
	}
	room.closed = true
	delete(r.rooms, room.Code)
	return true
}

func (r *Registry) removed(code string) {
	r.logger.Info("room removed", "room", code)
	if r.onRemove != nil {
		r.onRemove(code)
	}
}

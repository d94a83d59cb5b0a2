package service

import (
	"sync"
	"time"

	"codechat/internal/models"
)

type member struct {
	session  *Session
	username string
}

// Room 是一個以代碼定址的聊天室
// members 與 history 的所有讀寫都必須持有 mu
type Room struct {
	Code      string
	Name      string
	CreatedAt time.Time

	mu         sync.Mutex
	members    []member // 依加入順序
	history    []models.Message
	maxHistory int
	lastStamp  time.Time
	emptySince time.Time
	closed     bool
}

func newRoom(code, name string, maxHistory int, now time.Time) *Room {
	return &Room{
		Code:       code,
		Name:       name,
		CreatedAt:  now,
		maxHistory: maxHistory,
		emptySince: now,
	}
}

func (r *Room) indexOf(s *Session) int {
	for i, m := range r.members {
		if m.session == s {
			return i
		}
	}
	return -1
}

func (r *Room) removeMember(s *Session) (string, bool) {
	i := r.indexOf(s)
	if i < 0 {
		return "", false
	}
	username := r.members[i].username
	r.members = append(r.members[:i], r.members[i+1:]...)
	return username, true
}

func (r *Room) usernames() []string {
	names := make([]string, len(r.members))
	for i, m := range r.members {
		names[i] = m.username
	}
	return names
}

func (r *Room) snapshot() []models.Message {
	out := make([]models.Message, len(r.history))
	copy(out, r.history)
	return out
}

// appendMessage 指派時間戳並附加到歷史，同一房間內時間戳嚴格遞增
func (r *Room) appendMessage(msg models.Message, now time.Time) models.Message {
	if !now.After(r.lastStamp) {
		now = r.lastStamp.Add(time.Microsecond)
	}
	r.lastStamp = now
	msg.Timestamp = now

	r.history = append(r.history, msg)
	if r.maxHistory > 0 && len(r.history) > r.maxHistory {
		trimmed := make([]models.Message, r.maxHistory)
		copy(trimmed, r.history[len(r.history)-r.maxHistory:])
		r.history = trimmed
	}
	return msg
}

func (r *Room) SnapshotHistory() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Room) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usernames()
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) Summary() models.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.RoomSummary{
		RoomName:  r.Name,
		Code:      r.Code,
		Members:   r.usernames(),
		Messages:  len(r.history),
		CreatedAt: r.CreatedAt,
	}
}

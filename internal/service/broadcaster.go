package service

import (
	"log/slog"
	"time"

	"codechat/internal/models"
)

// Broadcaster 負責房間內的訊息、在線狀態與打字訊號的分發
// 所有會修改 members 或 history 的操作都在房間鎖內完成發送，保證同一房間內的送達順序等於附加順序
type Broadcaster struct {
	typingInterval time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewBroadcaster(typingInterval time.Duration, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		typingInterval: typingInterval,
		logger:         logger,
		now:            time.Now,
	}
}

// Admit 把 Session 加入房間並回覆房間狀態
// 快照、回覆與通知在同一個鎖區段內完成，加入者不會漏掉或重複收到任何訊息
func (b *Broadcaster) Admit(room *Room, s *Session, username, reply string) error {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}

	i := room.indexOf(s)
	rejoin := i >= 0
	if rejoin {
		room.members[i].username = username
	} else {
		room.members = append(room.members, member{session: s, username: username})
		room.emptySince = time.Time{}
	}

	s.Send(models.Event{
		Name: reply,
		Data: models.RoomState{
			RoomName: room.Name,
			Code:     room.Code,
			Messages: room.snapshot(),
		},
	})

	if !rejoin {
		b.notifyJoinLocked(room, username, s)
	}
	b.updateUsersLocked(room)
	return nil
}

// Evict 將 Session 移出房間並通知其餘成員，回傳房間是否因此變空
func (b *Broadcaster) Evict(room *Room, s *Session) (username string, empty bool, ok bool) {
	room.mu.Lock()
	defer room.mu.Unlock()

	username, ok = room.removeMember(s)
	if !ok {
		return "", false, false
	}

	b.notifyLeaveLocked(room, username)
	b.updateUsersLocked(room)

	if len(room.members) == 0 {
		room.emptySince = b.now()
		return username, true, true
	}
	return username, false, true
}

// AppendAndBroadcast 附加訊息到歷史並送給所有成員，包含發送者本人
func (b *Broadcaster) AppendAndBroadcast(room *Room, sender *Session, msg models.Message) (models.Message, error) {
	if !msg.Valid() {
		return models.Message{}, ErrEmptyMessage
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return models.Message{}, ErrRoomNotFound
	}
	if sender != nil && room.indexOf(sender) < 0 {
		return models.Message{}, ErrNotInRoom
	}

	msg = room.appendMessage(msg, b.now())
	b.sendAllLocked(room, models.Event{Name: models.EventReceiveMessage, Data: msg}, nil)
	return msg, nil
}

// NotifyJoin 通知房間成員有人加入，except 不會收到
func (b *Broadcaster) NotifyJoin(room *Room, username string, except *Session) {
	room.mu.Lock()
	defer room.mu.Unlock()
	b.notifyJoinLocked(room, username, except)
}

func (b *Broadcaster) NotifyLeave(room *Room, username string) {
	room.mu.Lock()
	defer room.mu.Unlock()
	b.notifyLeaveLocked(room, username)
}

// BroadcastTyping 轉送打字訊號給發送者以外的成員，不保留任何狀態
// 間隔內的重複訊號直接合併，不回報錯誤
func (b *Broadcaster) BroadcastTyping(room *Room, s *Session) bool {
	room.mu.Lock()
	i := room.indexOf(s)
	if i < 0 {
		room.mu.Unlock()
		return false
	}
	username := room.members[i].username
	recipients := make([]*Session, 0, len(room.members)-1)
	for _, m := range room.members {
		if m.session != s {
			recipients = append(recipients, m.session)
		}
	}
	room.mu.Unlock()

	if !s.typingAllowed(b.now(), b.typingInterval) {
		return false
	}

	event := models.Event{Name: models.EventUserTyping, Data: models.UserPayload{Username: username}}
	for _, r := range recipients {
		r.Send(event)
	}
	return true
}

func (b *Broadcaster) notifyJoinLocked(room *Room, username string, except *Session) {
	b.sendAllLocked(room, models.Event{
		Name: models.EventUserJoined,
		Data: models.UserPayload{Username: username},
	}, except)
}

func (b *Broadcaster) notifyLeaveLocked(room *Room, username string) {
	b.sendAllLocked(room, models.Event{
		Name: models.EventUserLeft,
		Data: models.UserPayload{Username: username},
	}, nil)
}

func (b *Broadcaster) updateUsersLocked(room *Room) {
	b.sendAllLocked(room, models.Event{
		Name: models.EventUpdateUsers,
		Data: models.UsersPayload{Users: room.usernames()},
	}, nil)
}

func (b *Broadcaster) sendAllLocked(room *Room, event models.Event, except *Session) {
	for _, m := range room.members {
		if m.session == except {
			continue
		}
		if !m.session.Send(event) {
			b.logger.Warn("dropped event for slow client", "conn", m.session.ID(), "room", room.Code, "event", event.Name)
		}
	}
}

package service

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"codechat/internal/models"
)

const minUsernameLength = 2

// Peer 是一條連線的發送端，Send 不可阻塞
type Peer interface {
	ID() string
	Send(event models.Event) bool
}

type SessionState int

const (
	SessionUnbound SessionState = iota
	SessionBound
	SessionTerminated
)

func (s SessionState) String() string {
	switch s {
	case SessionUnbound:
		return "unbound"
	case SessionBound:
		return "bound"
	case SessionTerminated:
		return "terminated"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Session 綁定一條連線的身份與所在房間
type Session struct {
	peer Peer

	// attachMu 串行化同一連線的 attach/detach，後到的請求覆蓋先前的結果
	attachMu sync.Mutex

	mu             sync.RWMutex
	username       string
	room           *Room
	state          SessionState
	lastTypingEmit time.Time
}

func (s *Session) ID() string {
	return s.peer.ID()
}

func (s *Session) Send(event models.Event) bool {
	return s.peer.Send(event)
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Room() *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) RoomCode() string {
	if room := s.Room(); room != nil {
		return room.Code
	}
	return ""
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) bind(room *Room) {
	s.mu.Lock()
	s.room = room
	if room != nil {
		s.state = SessionBound
	} else {
		s.state = SessionUnbound
	}
	s.mu.Unlock()
}

// typingAllowed 記錄一次打字訊號，間隔內的重複訊號回傳 false
func (s *Session) typingAllowed(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastTypingEmit.IsZero() && now.Sub(s.lastTypingEmit) < interval {
		return false
	}
	s.lastTypingEmit = now
	return true
}

// ValidateUsername 去除前後空白後至少需要兩個字元
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < minUsernameLength {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// SessionManager 管理所有連線的 Session
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	registry    *Registry
	broadcaster *Broadcaster
	logger      *slog.Logger
}

func NewSessionManager(registry *Registry, broadcaster *Broadcaster, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Open 為新連線建立一個未綁定的 Session
func (m *SessionManager) Open(peer Peer) *Session {
	s := &Session{peer: peer, state: SessionUnbound}

	m.mu.Lock()
	m.sessions[peer.ID()] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Register 驗證並設定連線的使用者名稱
func (m *SessionManager) Register(connID, username string) (*Session, error) {
	s, ok := m.Get(connID)
	if !ok {
		return nil, ErrSessionClosed
	}

	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	if err := s.setUsername(username); err != nil {
		return nil, err
	}
	return s, nil
}

// Attach 將 Session 移入房間，reply 是回覆給加入者的事件名稱
func (m *SessionManager) Attach(s *Session, room *Room, reply string) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	return m.attachLocked(s, room, reply)
}

// Join 在同一個串行區段內完成 Register 與 Attach
func (m *SessionManager) Join(s *Session, username string, room *Room, reply string) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	if err := s.setUsername(username); err != nil {
		return err
	}
	return m.attachLocked(s, room, reply)
}

// Detach 在斷線時呼叫，之後 Session 不可再使用
func (m *SessionManager) Detach(s *Session) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	s.mu.Lock()
	if s.state == SessionTerminated {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.room = nil
	s.state = SessionTerminated
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	if room != nil {
		m.leave(s, room)
	}
}

func (s *Session) setUsername(username string) error {
	name, err := ValidateUsername(username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionTerminated {
		return ErrSessionClosed
	}
	s.username = name
	return nil
}

func (m *SessionManager) attachLocked(s *Session, room *Room, reply string) error {
	if s.State() == SessionTerminated {
		return ErrSessionClosed
	}

	if old := s.Room(); old != nil && old != room {
		m.leave(s, old)
		s.bind(nil)
	}

	if err := m.broadcaster.Admit(room, s, s.Username(), reply); err != nil {
		return err
	}
	s.bind(room)

	m.logger.Info("session attached", "conn", s.ID(), "room", room.Code, "user", s.Username())
	return nil
}

func (m *SessionManager) leave(s *Session, room *Room) {
	username, empty, ok := m.broadcaster.Evict(room, s)
	if !ok {
		return
	}
	m.logger.Info("session left room", "conn", s.ID(), "room", room.Code, "user", username)
	if empty {
		m.registry.Release(room)
	}
}

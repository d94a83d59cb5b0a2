package service

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"codechat/internal/models"
	"codechat/internal/repository"
	"codechat/internal/storage"
	"codechat/internal/utils"
	"codechat/pkg/config"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePeer struct {
	id string

	mu     sync.Mutex
	events []models.Event
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(event models.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.events = append(p.events, event)
	return true
}

func (p *fakePeer) Events() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *fakePeer) Named(name string) []models.Event {
	var out []models.Event
	for _, e := range p.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (p *fakePeer) Names() []string {
	var names []string
	for _, e := range p.Events() {
		names = append(names, e.Name)
	}
	return names
}

func (p *fakePeer) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// sequenceGenerator 依序回傳預設的代碼，用完後重複最後一個
type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	i     int
	err   error
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	code := g.codes[g.i]
	if g.i < len(g.codes)-1 {
		g.i++
	}
	return code, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		Rooms: config.RoomsConfig{
			CodeLength:      6,
			MaxCodeAttempts: 8,
			MaxHistory:      100,
			Retention:       2 * time.Minute,
			SweepInterval:   time.Second,
		},
		Typing:  config.TypingConfig{MinInterval: 300 * time.Millisecond},
		Uploads: config.UploadsConfig{MaxBytes: 16 << 20, SigningSecret: "test-secret", PurgeWithRoom: true},
		WS:      config.WSConfig{SendBuffer: 256, ReadLimit: 32 << 20},
	}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.NewSQLiteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Attachment{}))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testStack struct {
	*Services
	repos *repository.Repositories
	fs    afero.Fs
}

func newTestStack(t *testing.T, cfg *config.Config) *testStack {
	t.Helper()
	fs := afero.NewMemMapFs()
	repos := repository.NewRepositories(openTestDB(t))
	services := NewServices(cfg, repos, storage.NewBlobStoreFs(fs), discardLogger)
	return &testStack{Services: services, repos: repos, fs: fs}
}

func newTestUploads(t *testing.T, cfg *config.Config) (*UploadService, repository.AttachmentRepository, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	repo := repository.NewAttachmentRepository(openTestDB(t))
	uploads := NewUploadService(repo, storage.NewBlobStoreFs(fs), utils.NewFileSigner(cfg.Uploads.SigningSecret), cfg, discardLogger)
	return uploads, repo, fs
}

func envelope(t *testing.T, event string, data any) models.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return models.Envelope{Event: event, Data: raw}
}

func roomState(t *testing.T, e models.Event) models.RoomState {
	t.Helper()
	state, ok := e.Data.(models.RoomState)
	require.True(t, ok, "event %s carries %T", e.Name, e.Data)
	return state
}

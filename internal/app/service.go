package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Settings holds the tunables of the battle flow.
type Settings struct {
	QuestionCount      int
	TimeLimit          time.Duration
	AutoStartDelay     time.Duration
	MatchmakingTimeout time.Duration
	CodeAttempts       int
	TimerTimeout       time.Duration
	// DefaultScope is the question bank used when a room names none.
	DefaultScope string
}

// DefaultSettings mirrors the production defaults.
func DefaultSettings() Settings {
	return Settings{
		QuestionCount:      10,
		TimeLimit:          15 * time.Second,
		AutoStartDelay:     1500 * time.Millisecond,
		MatchmakingTimeout: 30 * time.Second,
		CodeAttempts:       5,
		TimerTimeout:       5 * time.Second,
	}
}

// Scheduler runs f after d. Timers in this package are idempotent when they fire late or twice.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// RoomService is the only writer of the room store. It covers room lifecycle,
// matchmaking and the battle flow.
type RoomService struct {
	store     RoomStore
	presence  PresenceTracker
	questions QuestionSource
	results   ResultRecorder
	scheduler Scheduler
	newCode   func() (string, error)
	now       func() time.Time
	logger    *zap.Logger
	settings  Settings
}

// Option customises a RoomService.
type Option func(*RoomService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *RoomService) { s.logger = logger }
}

func WithSettings(settings Settings) Option {
	return func(s *RoomService) { s.settings = settings }
}

func WithResultRecorder(recorder ResultRecorder) Option {
	return func(s *RoomService) { s.results = recorder }
}

// WithScheduler replaces the wall-clock timers; tests use it to fire deadlines by hand.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *RoomService) { s.scheduler = scheduler }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RoomService) { s.now = now }
}

// WithCodeGenerator overrides join code sampling.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *RoomService) { s.newCode = gen }
}

func NewRoomService(store RoomStore, presence PresenceTracker, questions QuestionSource, opts ...Option) *RoomService {
	s := &RoomService{
		store:     store,
		presence:  presence,
		questions: questions,
		scheduler: timerScheduler{},
		newCode:   NewJoinCode,
		now:       time.Now,
		logger:    zap.NewNop(),
		settings:  DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the effective tunables.
func (s *RoomService) Settings() Settings {
	return s.settings
}

// Sweep drops expired rooms from the store.
func (s *RoomService) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("swept expired rooms", zap.Int("count", n))
	}
	return n, nil
}

// timerContext bounds work done from timer callbacks, which have no caller context.
func (s *RoomService) timerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.TimerTimeout)
}

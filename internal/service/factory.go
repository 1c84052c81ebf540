package service

import (
	"golang.org/x/time/rate"

	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/store"
)

type Services struct {
	queue      queue.Queue
	state      store.RobotStateStore
	grid       model.Grid
	limiter    *rate.Limiter
	dispatcher DispatchStats
	link       LinkStatus
}

type Option func(*Services)

// WithRateLimit caps submissions at perSecond with the given burst. A
// non-positive rate leaves submissions unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Services) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithDispatcher(d DispatchStats) Option {
	return func(s *Services) { s.dispatcher = d }
}

func WithLink(address string, connected bool) Option {
	return func(s *Services) { s.link = LinkStatus{Address: address, Connected: connected} }
}

func NewServices(q queue.Queue, state store.RobotStateStore, grid model.Grid, opts ...Option) *Services {
	s := &Services{queue: q, state: state, grid: grid}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submissions shares one limiter across every caller.
func (s *Services) Submissions() SubmissionService {
	return NewSubmissionService(s.queue, s.grid, s.limiter)
}

func (s *Services) Robot() RobotService {
	return NewRobotService(s.state, s.dispatcher, s.link)
}

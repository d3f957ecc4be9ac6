package sync

import (
	"context"
	"log"
	"time"

	"github.com/nhle/taskpulse/internal/event"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/realtime"
	"github.com/nhle/taskpulse/internal/taskstore"
)

// fetchTimeout is the maximum time allowed for a single snapshot fetch.
const fetchTimeout = 30 * time.Second

// Update is one unit of work for the apply loop. Exactly one of the
// snapshot, event or fn fields is used.
type Update struct {
	snapshot bool
	tasks    []model.Task
	mark     taskstore.Mark
	err      error

	event *event.Event

	fn   func()
	done chan struct{}
}

// TaskSource feeds task state into the engine until ctx is done.
type TaskSource interface {
	Run(ctx context.Context, emit func(Update))
}

// TaskLister fetches the full task list.
type TaskLister interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
}

// Marker hands out event-sequence marks for snapshot fetches.
type Marker interface {
	Mark() taskstore.Mark
}

// PollSource re-fetches the task list on an interval. It is the degraded
// mode used while the realtime channel is down.
type PollSource struct {
	API      TaskLister
	Store    Marker
	Interval time.Duration
}

// Run polls until ctx is done. The first fetch happens immediately. The
// ticker lives only as long as Run.
func (p *PollSource) Run(ctx context.Context, emit func(Update)) {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fetchSnapshot(ctx, p.API, p.Store, emit)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchSnapshot(ctx, p.API, p.Store, emit)
		}
	}
}

// fetchSnapshot performs a single fetch and emits the result. The mark is
// taken before the request so that events applied while it is in flight
// turn the snapshot into a merge.
func fetchSnapshot(ctx context.Context, api TaskLister, marker Marker, emit func(Update)) {
	mark := marker.Mark()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	tasks, err := api.ListTasks(ctx)
	if err != nil && ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
		return
	}
	emit(Update{snapshot: true, tasks: tasks, mark: mark, err: err})
}

// StreamSource subscribes the realtime topics and normalizes each frame.
// Malformed frames are logged and dropped.
type StreamSource struct {
	Channel *realtime.Channel
	Topics  []string
	Logger  *log.Logger
}

// Run subscribes, then waits for ctx to be done and unsubscribes.
func (s *StreamSource) Run(ctx context.Context, emit func(Update)) {
	topics := s.Topics
	if len(topics) == 0 {
		topics = append([]string{event.TopicComments}, event.TaskTopics...)
	}

	subs := make([]*realtime.Subscription, 0, len(topics))
	for _, topic := range topics {
		subs = append(subs, s.Channel.Subscribe(topic, normalizer(s.Logger, emit)))
	}

	<-ctx.Done()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// normalizer returns a realtime handler that emits normalized events.
func normalizer(logger *log.Logger, emit func(Update)) realtime.Handler {
	return func(msg realtime.Message) {
		ev, err := event.Normalize(msg.Topic, msg.Body)
		if err != nil {
			if logger != nil {
				logger.Printf("dropping message: %v", err)
			}
			return
		}
		emit(Update{event: &ev})
	}
}

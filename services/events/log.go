package eventsvc

import (
	"context"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

// LogPublisher writes notifications to the app logs. Used when no broker is configured.
type LogPublisher struct {
	log core.Logger
}

var _ catchup.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(log core.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, n catchup.Notification) error {
	fields := map[string]interface{}{
		"session":  n.SessionID,
		"lesson":   n.LessonID,
		"viewer":   n.ViewerID,
		"state":    n.State,
		"position": n.PositionSec,
		"verified": n.VerifiedSec,
	}
	if n.From != "" {
		fields["from"] = n.From
	}
	if n.PromptID != "" {
		fields["prompt"] = n.PromptID
	}
	if n.Quiz != nil {
		fields["quiz_passed"] = n.Quiz.Passed
	}
	if n.Decision != nil {
		fields["credited"] = n.Decision.Credited
	}
	if n.Error != "" {
		fields["error"] = n.Error
	}
	p.log.Debug("catchup event: "+string(n.Kind), fields)
	return nil
}

// Fanout publishes to every publisher and returns the first error.
type Fanout []catchup.EventPublisher

var _ catchup.EventPublisher = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, n catchup.Notification) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

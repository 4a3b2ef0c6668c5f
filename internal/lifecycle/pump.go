package lifecycle

import (
	"context"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/groutine"
)

// DefaultNotificationBuffer is the pump capacity used when none is configured.
const DefaultNotificationBuffer uint32 = 1024

type notification struct {
	sess *session
	data []byte
}

// pump moves notification payloads from transport callback goroutines to a
// single dispatcher goroutine. When the dispatcher falls behind, the oldest
// payloads are overwritten.
type pump struct {
	buffer mpmc.RichOverlappedRingBuffer[notification]
	wake   chan struct{}
	handle func(notification)
	logger *logrus.Logger
	done   <-chan struct{}
}

func newPump(size uint32, handle func(notification), logger *logrus.Logger) *pump {
	if size == 0 {
		size = DefaultNotificationBuffer
	}
	return &pump{
		buffer: mpmc.NewOverlappedRingBuffer[notification](size),
		wake:   make(chan struct{}, 1),
		handle: handle,
		logger: logger,
	}
}

// start launches the dispatcher; it exits when ctx ends.
func (p *pump) start(ctx context.Context) {
	p.done = groutine.GoWait(ctx, "notification-dispatcher", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				p.drain()
			}
		}
	})
}

func (p *pump) push(n notification) {
	overwrites, err := p.buffer.EnqueueM(n)
	if err != nil {
		p.logger.WithError(err).Warn("Dropping notification")
		return
	}
	if overwrites > 0 {
		p.logger.WithField("overwritten", overwrites).Debug("Notification buffer overflow, oldest payloads dropped")
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *pump) drain() {
	for !p.buffer.IsEmpty() {
		n, err := p.buffer.Dequeue()
		if err != nil {
			return
		}
		p.handle(n)
	}
}

// wait blocks until the dispatcher has exited.
func (p *pump) wait() {
	if p.done != nil {
		<-p.done
	}
}

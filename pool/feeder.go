package pool

// The feeder sits between dispatch entry points and the worker feed
// channel. Submissions land in an unbounded ring buffer so a dispatcher is
// never blocked on a full channel, and the feeder goroutine moves items to
// the workers as they become free.

func (p *WorkerPool) enqueue(items []item) {
	p.backlogMu.Lock()
	for _, it := range items {
		p.backlog.Add(it)
	}
	kick := p.kick
	p.backlogMu.Unlock()

	// wake the feeder; one pending wakeup is enough
	select {
	case kick <- struct{}{}:
	default:
	}
}

func (p *WorkerPool) nextItem() (item, bool) {
	p.backlogMu.Lock()
	defer p.backlogMu.Unlock()

	if p.backlog.Length() == 0 {
		return item{}, false
	}
	return p.backlog.Remove().(item), true
}

// feed runs until quit is closed, then drains whatever is left in the
// backlog before closing the worker feed channel. Workers exit once the
// closed channel runs empty, so queued work still completes during
// shutdown. The channels are captured at spawn time: a feeder from a
// previous pool generation can never interfere with a rebuilt one.
func (p *WorkerPool) feed(feedCh chan<- item, kick <-chan struct{}, quit <-chan struct{}) {
	defer p.log.Debug("feeder has been stopped")

	for {
		it, ok := p.nextItem()
		if ok {
			feedCh <- it
			continue
		}

		select {
		case <-kick:
		case <-quit:
			for {
				it, ok := p.nextItem()
				if !ok {
					break
				}
				feedCh <- it
			}
			close(feedCh)
			return
		}
	}
}

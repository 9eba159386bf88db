package bus

// limiter is a counting semaphore over a buffered channel. Handler
// invocations acquire one permit before running and release it on every
// exit path.
//
// Configure replaces the bus's limiter wholesale: invocations already
// holding a permit keep draining into the limiter they acquired from,
// while new invocations compete for the replacement's permits.
type limiter struct {
	permits chan struct{}
}

func newLimiter(capacity int) *limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &limiter{permits: make(chan struct{}, capacity)}
}

func (l *limiter) acquire() {
	l.permits <- struct{}{}
}

func (l *limiter) release() {
	<-l.permits
}

func (l *limiter) capacity() int {
	return cap(l.permits)
}

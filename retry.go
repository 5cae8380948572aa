package kernpool

import "time"

// Retry re-runs an operation a fixed number of times with a pause between
// attempts. The pool never retries initialization internally; a caller
// that wants retry wraps Initialize (or any other operation) with this.
type Retry struct {
	sleepDuration time.Duration
	RetryFunc     func() error
	numTries      int
}

func NewRetry(numTries int, sleepDuration time.Duration, retryFunc func() error) *Retry {
	return &Retry{
		sleepDuration: sleepDuration,
		RetryFunc:     retryFunc,
		numTries:      numTries,
	}
}

// Do runs the operation until it succeeds or the attempts are used up,
// returning the last error.
func (r *Retry) Do() error {
	var err error
	for i := 0; i < r.numTries; i++ {
		err = r.RetryFunc()
		if err == nil {
			break
		}
		time.Sleep(r.sleepDuration)
	}

	return err
}

package queue

import "errors"

var (
	// ErrPoolRequired is returned when a manager or enqueuer is created
	// without a database pool.
	ErrPoolRequired = errors.New("queue: pool is required")

	// ErrUnknownTask is returned when a job names a task that has not
	// been registered.
	ErrUnknownTask = errors.New("queue: unknown task")

	// ErrInvalidPayload is returned when a job payload cannot be
	// unmarshaled or fails validation. Jobs failing this way are
	// canceled, not retried: re-delivery cannot fix a malformed payload.
	ErrInvalidPayload = errors.New("queue: invalid payload")

	// ErrInvalidCron is returned when a recurring schedule carries a
	// cron expression River cannot run.
	ErrInvalidCron = errors.New("queue: invalid cron expression")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("queue: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("queue: not started")
)

package port

// PollObserver is notified after every snapshot poll.
type PollObserver interface {
	RecordPoll(kind string, err error)
}

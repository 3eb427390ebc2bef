package buildpipeline

// ChannelSink forwards events into a channel. Units report from their own
// goroutines, so the channel is the only synchronization the UI needs.
// Once Done is closed, events are dropped instead of blocking the units on
// a reader that went away.
type ChannelSink struct {
	Ch   chan<- Event
	Done <-chan struct{}
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	if s.Done == nil {
		s.Ch <- evt
		return
	}
	select {
	case s.Ch <- evt:
	case <-s.Done:
	}
}

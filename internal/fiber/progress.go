package fiber

// Step is one scheduler turn's fiber-tree snapshot, reported to a
// ProgressSink after every scheduler turn (grounded on
// vovakirdan-surge's buildpipeline.Event/ProgressSink pair, narrowed
// from build-phase events to fiber-status snapshots).
type Step struct {
	Fibers     []FiberSnapshot
	ReadyCount int
}

// ProgressSink receives one Step per scheduler turn. Run calls it
// synchronously from the scheduling goroutine, so an implementation
// that forwards to a channel (ChannelSink) must do so without
// blocking the run for long, the same contract buildpipeline.Event
// consumers rely on.
type ProgressSink interface {
	OnStep(Step)
}

// ChannelSink forwards each Step into Ch, mirroring
// vovakirdan-surge's buildpipeline.ChannelSink.
type ChannelSink struct {
	Ch chan<- Step
}

func (s ChannelSink) OnStep(step Step) {
	s.Ch <- step
}

// WithProgress attaches sink so Run reports a Step after every turn.
// Returns s for chaining alongside WithChannelHeap-style construction.
func (s *Vm) WithProgress(sink ProgressSink) *Vm {
	s.progress = sink
	return s
}

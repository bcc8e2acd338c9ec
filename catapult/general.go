package catapult

// ProcessInfo is the snapshot GeneralSource renders into metadata events
// for one process: its display name and the display names of its known
// threads/producers, keyed by thread/producer id.
type ProcessInfo struct {
	PID     uint64
	Name    string
	Threads map[string]string
}

// ProcessInfoLister reports every process a GeneralSource should describe
// with metadata events. A recorder typically backs this with the
// ProcessInfo responses already fetched from each connected peer.
type ProcessInfoLister interface {
	ListProcessInfo() []ProcessInfo
}

// GeneralSource emits the Catapult "M" (metadata) events a viewer needs
// to label processes and threads by name instead of by raw pid/tid:
// process_name once per process and thread_name once per known
// thread/producer. It carries no clock of its own; every metadata event
// it produces is stamped at Timestamp 0, matching Catapult's convention
// that metadata events are not part of the timeline.
type GeneralSource struct {
	infoSource ProcessInfoLister
}

// NewGeneralSource returns a GeneralSource describing whatever infoSource
// reports at FinishInterval time.
func NewGeneralSource(infoSource ProcessInfoLister) *GeneralSource {
	return &GeneralSource{infoSource: infoSource}
}

// FinishInterval renders the current ProcessInfoLister snapshot into
// metadata events. Unlike Source.FinishInterval, there is no recording
// window to bracket: the snapshot is always current as of the call.
func (g *GeneralSource) FinishInterval() []Event {
	infos := g.infoSource.ListProcessInfo()
	events := make([]Event, 0, len(infos))
	for _, info := range infos {
		events = append(events, Event{
			Name:  "process_name",
			Phase: PhaseMetadata,
			PID:   info.PID,
			Args:  map[string]any{"name": info.Name},
		})
		for tid, name := range info.Threads {
			events = append(events, Event{
				Name:  "thread_name",
				Phase: PhaseMetadata,
				PID:   info.PID,
				TID:   parseTID(tid),
				Args:  map[string]any{"name": name},
			})
		}
	}
	return events
}

// parseTID converts a thread/producer id reported as a decimal string
// (as ProcessInfo.Threads keys them) back to the numeric tid a Catapult
// event carries. Unparseable ids map to 0 rather than erroring: a
// metadata event with no thread id still labels the process.
func parseTID(s string) uint64 {
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint64(c-'0')
	}
	return n
}

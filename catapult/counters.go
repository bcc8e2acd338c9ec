package catapult

// fillForwardCounters rewrites counter (Phase C) events in place so that
// every counter event for a series carries every key that series reports
// anywhere in the interval — including events recorded before that key's
// first appearance. Catapult's viewer otherwise draws a counter series as
// dropping to zero wherever an event's Args map omits a key, which
// misrepresents a value that simply hasn't been reported yet at that
// point, or hasn't changed since.
//
// Events are first grouped by series (name, category, pid, tid), then
// each series is filled independently with a backward pass building,
// per index, a snapshot of every key seen from that index through the
// end of the interval ("future"), followed by a forward pass that merges
// each event's own Args over the keys already seen strictly before it
// ("past") over that index's future snapshot — so a leading event with
// no prior history still inherits the series' next reported value for
// any key it doesn't carry itself. Grounded on
// `producer/metrics.CounterState`'s last-value-per-OID map, generalized
// to a backward scan since the OID poller never needed to backfill
// values for samples taken before a counter was first observed.
func fillForwardCounters(events []Event) {
	type seriesKey struct {
		name, category string
		pid, tid        uint64
	}

	series := make(map[seriesKey][]int)
	for i := range events {
		e := &events[i]
		if e.Phase != PhaseCounter || len(e.Args) == 0 {
			continue
		}
		key := seriesKey{e.Name, e.Category, e.PID, e.TID}
		series[key] = append(series[key], i)
	}

	for _, idxs := range series {
		fillSeries(events, idxs)
	}
}

// fillSeries fills in the Args of the counter events at idxs (indices
// into events, already in ascending timestamp order for one series).
func fillSeries(events []Event, idxs []int) {
	n := len(idxs)
	future := make([]map[string]float64, n)
	running := make(map[string]float64)
	for i := n - 1; i >= 0; i-- {
		e := &events[idxs[i]]
		for k, v := range e.Args {
			if f, ok := toFloat64(v); ok {
				running[k] = f
			}
		}
		snap := make(map[string]float64, len(running))
		for k, v := range running {
			snap[k] = v
		}
		future[i] = snap
	}

	past := make(map[string]float64)
	for i := 0; i < n; i++ {
		e := &events[idxs[i]]
		merged := make(map[string]any, len(future[i])+len(past)+len(e.Args))
		for k, v := range future[i] {
			merged[k] = v
		}
		for k, v := range past {
			merged[k] = v
		}
		for k, v := range e.Args {
			merged[k] = v
			if f, ok := toFloat64(v); ok {
				past[k] = f
			}
		}
		e.Args = merged
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

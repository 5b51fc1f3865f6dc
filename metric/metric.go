// Package metric counts events of pipes per signature. Counters are
// published with expvar.
package metric

import (
	"expvar"
	"fmt"
	"sync"

	"pipelined.dev/avpipe"
)

const pipesLabel = "avpipe.pipes"

const (
	// ReadyCounter counts allocated pipes.
	ReadyCounter = "Ready"
	// DeadCounter counts destroyed pipes.
	DeadCounter = "Dead"
	// AliveCounter measures number of live pipes.
	AliveCounter = "Alive"
	// LogCounter counts log messages.
	LogCounter = "Logs"
	// ErrorCounter counts errors, fatal ones included.
	ErrorCounter = "Errors"
	// NeedOutputCounter counts buffers sent without output.
	NeedOutputCounter = "NeedOutput"
)

var (
	signatures = metrics{
		m: make(map[avpipe.Signature]metric),
	}

	counters = []string{
		ReadyCounter,
		DeadCounter,
		AliveCounter,
		LogCounter,
		ErrorCounter,
		NeedOutputCounter,
	}
)

// Get metrics values for provided signature.
func Get(sig avpipe.Signature) map[string]string {
	return getCounters(sig)
}

// GetAll returns counters for all measured signatures.
func GetAll() map[avpipe.Signature]map[string]string {
	m := make(map[avpipe.Signature]map[string]string)
	signatures.Lock()
	defer signatures.Unlock()
	for sig := range signatures.m {
		m[sig] = getCounters(sig)
	}
	return m
}

func getCounters(sig avpipe.Signature) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(sig, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

type probe struct{}

// Probe returns a probe which counts events. It never handles events.
func Probe() avpipe.Probe {
	return probe{}
}

func (probe) Catch(p *avpipe.Pipe, e avpipe.Event) error {
	mgr := p.Manager()
	if mgr == nil {
		return avpipe.ErrUnhandled
	}
	m := signatures.get(mgr.Signature())
	switch e.(type) {
	case *avpipe.Ready:
		m.ready.Add(1)
		m.alive.Add(1)
	case *avpipe.Dead:
		m.dead.Add(1)
		m.alive.Add(-1)
	case *avpipe.Log:
		m.logs.Add(1)
	case *avpipe.Error, *avpipe.Fatal:
		m.errors.Add(1)
	case *avpipe.NeedOutput:
		m.needOutput.Add(1)
	}
	return avpipe.ErrUnhandled
}

type metrics struct {
	sync.Mutex
	m map[avpipe.Signature]metric
}

func (m *metrics) get(sig avpipe.Signature) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[sig]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(sig)
	m.m[sig] = metric
	return metric
}

type metric struct {
	ready      *expvar.Int
	dead       *expvar.Int
	alive      *expvar.Int
	logs       *expvar.Int
	errors     *expvar.Int
	needOutput *expvar.Int
}

func newMetric(sig avpipe.Signature) metric {
	return metric{
		ready:      expvar.NewInt(key(sig, ReadyCounter)),
		dead:       expvar.NewInt(key(sig, DeadCounter)),
		alive:      expvar.NewInt(key(sig, AliveCounter)),
		logs:       expvar.NewInt(key(sig, LogCounter)),
		errors:     expvar.NewInt(key(sig, ErrorCounter)),
		needOutput: expvar.NewInt(key(sig, NeedOutputCounter)),
	}
}

func key(sig avpipe.Signature, counter string) string {
	return fmt.Sprintf("%s.%s.%s", pipesLabel, sig, counter)
}

package analytics

import (
	"os"
	"time"

	"github.com/polisai/polis-analytics/pkg/events"
)

// Environment variables consulted by EnvTagSource.
const (
	HostnameEnv    = "HOSTNAME"
	EnvironmentEnv = "ENVIRONMENT"
)

// Tags are the optional host and deployment labels stamped on envelopes.
type Tags struct {
	Hostname    *string
	Environment *string
}

// TagSource yields the current tags. It is consulted on every Track call, so
// implementations must be safe for concurrent use.
type TagSource interface {
	Tags() Tags
}

// TagSourceFunc adapts a function to TagSource.
type TagSourceFunc func() Tags

// Tags implements TagSource.
func (f TagSourceFunc) Tags() Tags { return f() }

// EnvTagSource reads HOSTNAME and ENVIRONMENT from the process environment
// at call time. A variable that is set but empty yields an empty tag.
type EnvTagSource struct{}

// Tags implements TagSource.
func (EnvTagSource) Tags() Tags {
	return Tags{
		Hostname:    lookupEnv(HostnameEnv),
		Environment: lookupEnv(EnvironmentEnv),
	}
}

func lookupEnv(key string) *string {
	if v, ok := os.LookupEnv(key); ok {
		return &v
	}
	return nil
}

// StaticTags returns a TagSource that always yields the given tags. Empty
// strings are treated as absent.
func StaticTags(hostname, environment string) TagSource {
	tags := Tags{}
	if hostname != "" {
		tags.Hostname = &hostname
	}
	if environment != "" {
		tags.Environment = &environment
	}
	return TagSourceFunc(func() Tags { return tags })
}

// Enricher wraps raw events into envelopes.
type Enricher struct {
	tags TagSource
	now  func() time.Time
}

// NewEnricher creates an enricher. Nil arguments fall back to EnvTagSource
// and time.Now.
func NewEnricher(tags TagSource, now func() time.Time) *Enricher {
	if tags == nil {
		tags = EnvTagSource{}
	}
	if now == nil {
		now = time.Now
	}
	return &Enricher{tags: tags, now: now}
}

// Enrich stamps the capture time and reads the current tags.
func (e *Enricher) Enrich(event events.Event) events.Envelope {
	tags := e.tags.Tags()
	return events.Envelope{
		Timestamp:   e.now().UTC(),
		Event:       event,
		Hostname:    cloneString(tags.Hostname),
		Environment: cloneString(tags.Environment),
	}
}

// cloneString detaches the envelope from storage owned by the tag source.
func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

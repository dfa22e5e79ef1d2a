//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package audit describes what a release touched. The core only emits events;
// persisting them is the job of an external audit-log store reached through a Sink.
package audit

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action names the stage that produced an Event.
type Action string

// Actions emitted by the pipeline.
const (
	RemoveIdentifiers Action = "remove_identifiers"
	Pseudonymize      Action = "pseudonymize"
	KAnonymize        Action = "k_anonymize"
	AddNoise          Action = "add_noise"
	Aggregate         Action = "aggregate"
)

// Event records one stage touching identifying or sensitive fields.
type Event struct {
	ID             string
	Time           time.Time
	Action         Action
	AffectedFields []string
	RecordCount    int
}

// NewEvent returns an Event with a fresh ID and the current UTC time.
func NewEvent(action Action, fields []string, recordCount int) Event {
	return Event{
		ID:             uuid.NewString(),
		Time:           time.Now().UTC(),
		Action:         action,
		AffectedFields: slices.Clone(fields),
		RecordCount:    recordCount,
	}
}

// Sink receives events. Implementations must be safe for concurrent use if
// the pipeline that owns them is shared between goroutines.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder is a Sink that keeps events in memory, in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Tee returns a Sink that emits to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range live {
			s.Emit(e)
		}
	})
}

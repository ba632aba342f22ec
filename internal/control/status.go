package control

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"go.klb.dev/clipbridge/internal/bridge"
)

// Status is the wire and JSON form of a bridge.Snapshot.
type Status struct {
	State       string    `json:"state"`
	Enabled     bool      `json:"enabled"`
	Restarts    int       `json:"restarts"`
	Started     bool      `json:"started"`
	Launched    bool      `json:"launched"`
	Session     string    `json:"session,omitempty"`
	LastOutcome string    `json:"last_outcome"`
	LastChange  time.Time `json:"last_change"`
}

// FromSnapshot converts a supervisor snapshot.
func FromSnapshot(snap bridge.Snapshot) Status {
	return Status{
		State:       snap.State.String(),
		Enabled:     snap.Enabled,
		Restarts:    snap.Restarts,
		Started:     snap.Started,
		Launched:    snap.Launched,
		Session:     string(snap.Session),
		LastOutcome: snap.LastOutcome.String(),
		LastChange:  snap.LastChange.UTC(),
	}
}

func (s Status) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"state":        s.State,
		"enabled":      s.Enabled,
		"restarts":     s.Restarts,
		"started":      s.Started,
		"launched":     s.Launched,
		"session":      s.Session,
		"last_outcome": s.LastOutcome,
		"last_change":  s.LastChange.Format(time.RFC3339Nano),
	})
}

func statusFromStruct(st *structpb.Struct) (Status, error) {
	f := st.GetFields()
	s := Status{
		State:       f["state"].GetStringValue(),
		Enabled:     f["enabled"].GetBoolValue(),
		Restarts:    int(f["restarts"].GetNumberValue()),
		Started:     f["started"].GetBoolValue(),
		Launched:    f["launched"].GetBoolValue(),
		Session:     f["session"].GetStringValue(),
		LastOutcome: f["last_outcome"].GetStringValue(),
	}
	if s.State == "" {
		return Status{}, fmt.Errorf("status reply has no state")
	}
	if ts := f["last_change"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Status{}, fmt.Errorf("last_change: %w", err)
		}
		s.LastChange = t
	}
	return s, nil
}

package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"flowstate/internal/dictation"
)

// Control socket operations.
const (
	OpStatus  = "status"
	OpHealth  = "health"
	OpLevel   = "level"
	OpPress   = "press"
	OpRelease = "release"
	OpToggle  = "toggle"
	OpReload  = "reload"
)

type Request struct {
	Op  string `json:"op"`
	App string `json:"app,omitempty"`
}

type Status struct {
	Running   bool    `json:"running"`
	UptimeSec float64 `json:"uptime_sec"`
	dictation.Status
	Transcripts []Transcript `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Level is the meter reading polled by `watch`.
type Level struct {
	State   string    `json:"state"`
	Level   float64   `json:"level"`
	Bands   []float64 `json:"bands"`
	Preview string    `json:"preview"`
	Elapsed float64   `json:"elapsed_sec"`
}

type Transcript struct {
	Text      string    `json:"text"`
	App       string    `json:"app,omitempty"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Call sends one request over the control socket and decodes the reply into
// resp.
func Call(socketPath string, req Request, resp any) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(resp)
}

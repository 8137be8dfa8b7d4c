// Package boundary implements the file-based JSON exchange described in
// SPEC_FULL.md §6, grounded on original_source/python_gui/mqtt_bridge.py's
// directory convention: inbound messages are `{ "topic", "payload" }`
// envelopes dropped into a directory by an external bridge process, named
// so that the file for a given truck and topic contains the literal
// substring `truck_<id>_<topic>`; the core consumes only the
// lexicographically-latest matching file per poll and removes every
// matching file (including malformed ones) regardless of outcome. Outbound
// files are written the same way the bridge itself writes them: a
// `<unix_millis>_truck_<id>_<topic>.json` name holding the bare payload.
package boundary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joaoigorandrade/ATR/internal/obslog"
	"github.com/joaoigorandrade/ATR/internal/types"
)

var log = obslog.For("MA")

// envelope is the inbound wire shape written by the bridge.
type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type sensorPayload struct {
	PositionX       int  `json:"position_x"`
	PositionY       int  `json:"position_y"`
	AngleX          int  `json:"angle_x"`
	Temperature     int  `json:"temperature"`
	FaultElectrical bool `json:"fault_electrical"`
	FaultHydraulic  bool `json:"fault_hydraulic"`
}

type commandPayload struct {
	AutoMode   *bool `json:"auto_mode,omitempty"`
	ManualMode *bool `json:"manual_mode,omitempty"`
	Rearm      *bool `json:"rearm,omitempty"`
	Accelerate *int  `json:"accelerate,omitempty"`
	SteerLeft  *int  `json:"steer_left,omitempty"`
	SteerRight *int  `json:"steer_right,omitempty"`
}

func (p commandPayload) allMissing() bool {
	return p.AutoMode == nil && p.ManualMode == nil && p.Rearm == nil &&
		p.Accelerate == nil && p.SteerLeft == nil && p.SteerRight == nil
}

type setpointPayload struct {
	TargetX     int `json:"target_x"`
	TargetY     int `json:"target_y"`
	TargetSpeed int `json:"target_speed"`
}

type obstaclePayload struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

type obstaclesPayload struct {
	Obstacles []obstaclePayload `json:"obstacles"`
}

type actuatorPayload struct {
	Acceleration int  `json:"acceleration"` // wire name; carries velocity semantics, see spec.md §6
	Steering     int  `json:"steering"`
	Arrived      bool `json:"arrived"`
}

type statePayload struct {
	Automatic bool `json:"automatic"`
	Fault     bool `json:"fault"`
}

// Reader polls an inbound directory for one truck's boundary input files.
type Reader struct {
	dir     string
	truckID int
}

// NewReader constructs a Reader rooted at dir for the given truck id.
func NewReader(dir string, truckID int) *Reader {
	return &Reader{dir: dir, truckID: truckID}
}

// consumeLatest finds every file under the reader's directory whose name
// contains topicSubstr, decodes the lexicographically-latest one's
// envelope, then removes every matching file (malformed or not). I/O
// errors opening the directory are ignored, matching the "silently
// dropped, retried next poll" transient-error policy.
func (r *Reader) consumeLatest(topicSubstr string) (json.RawMessage, bool) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, false
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), topicSubstr) {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	var payload json.RawMessage
	ok := false
	if data, err := os.ReadFile(filepath.Join(r.dir, latest)); err == nil {
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			payload = env.Payload
			ok = true
		}
	}

	for _, name := range matches {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			log.Debug("", "event", "boundary_cleanup_err", "file", name, "error", err.Error())
		}
	}

	return payload, ok
}

func (r *Reader) topic(name string) string {
	return fmt.Sprintf("truck_%d_%s", r.truckID, name)
}

// ReadSensor consumes the latest pending sensor sample file, if any.
func (r *Reader) ReadSensor() (types.RawSensorSample, bool) {
	raw, ok := r.consumeLatest(r.topic("sensors"))
	if !ok {
		return types.RawSensorSample{}, false
	}
	var p sensorPayload
	if json.Unmarshal(raw, &p) != nil {
		return types.RawSensorSample{}, false
	}
	return types.RawSensorSample{
		PositionX:       p.PositionX,
		PositionY:       p.PositionY,
		Heading:         p.AngleX,
		Temperature:     p.Temperature,
		FaultElectrical: p.FaultElectrical,
		FaultHydraulic:  p.FaultHydraulic,
	}, true
}

// ReadCommand consumes the latest pending operator command file. A file
// present but lacking all six recognized fields is discarded as if absent,
// per spec.md §6.
func (r *Reader) ReadCommand() (types.OperatorCommand, bool) {
	raw, ok := r.consumeLatest(r.topic("commands"))
	if !ok {
		return types.OperatorCommand{}, false
	}
	var p commandPayload
	if json.Unmarshal(raw, &p) != nil || p.allMissing() {
		return types.OperatorCommand{}, false
	}

	cmd := types.OperatorCommand{}
	if p.AutoMode != nil {
		cmd.RequestAuto = *p.AutoMode
	}
	if p.ManualMode != nil {
		cmd.RequestManual = *p.ManualMode
	}
	if p.Rearm != nil {
		cmd.RequestRearm = *p.Rearm
	}
	if p.Accelerate != nil {
		cmd.Accelerate = *p.Accelerate
	}
	if p.SteerLeft != nil {
		cmd.SteerLeft = *p.SteerLeft
	}
	if p.SteerRight != nil {
		cmd.SteerRight = *p.SteerRight
	}
	return cmd, true
}

// ReadSetpoint consumes the latest pending target waypoint file.
func (r *Reader) ReadSetpoint() (targetX, targetY, targetSpeed int, ok bool) {
	raw, ok := r.consumeLatest(r.topic("setpoint"))
	if !ok {
		return 0, 0, 0, false
	}
	var p setpointPayload
	if json.Unmarshal(raw, &p) != nil {
		return 0, 0, 0, false
	}
	return p.TargetX, p.TargetY, p.TargetSpeed, true
}

// ReadObstacles consumes the latest pending obstacle batch file.
func (r *Reader) ReadObstacles() ([]types.Obstacle, bool) {
	raw, ok := r.consumeLatest(r.topic("obstacles"))
	if !ok {
		return nil, false
	}
	var p obstaclesPayload
	if json.Unmarshal(raw, &p) != nil {
		return nil, false
	}
	obstacles := make([]types.Obstacle, 0, len(p.Obstacles))
	for _, o := range p.Obstacles {
		obstacles = append(obstacles, types.Obstacle{ID: o.ID, X: o.X, Y: o.Y})
	}
	return obstacles, true
}

// Writer emits one truck's boundary output files into an outbound directory.
type Writer struct {
	dir     string
	truckID int
}

// NewWriter constructs a Writer rooted at dir for the given truck id,
// creating dir if it does not already exist.
func NewWriter(dir string, truckID int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir, truckID: truckID}, nil
}

func (w *Writer) writeJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%d_truck_%d_%s.json", time.Now().UnixMilli(), w.truckID, topic)
	return os.WriteFile(filepath.Join(w.dir, name), data, 0o644)
}

// WriteActuator emits the final actuator command file.
func (w *Writer) WriteActuator(cmd types.ActuatorCommand) error {
	err := w.writeJSON("commands", actuatorPayload{
		Acceleration: cmd.Velocity,
		Steering:     cmd.Steering,
		Arrived:      cmd.Arrived,
	})
	if err != nil {
		log.Error("", "event", "boundary_write_err", "topic", "commands", "error", err.Error())
	}
	return err
}

// WriteState emits the truck-state file.
func (w *Writer) WriteState(state types.TruckState) error {
	err := w.writeJSON("state", statePayload{Automatic: state.Automatic, Fault: state.Fault})
	if err != nil {
		log.Error("", "event", "boundary_write_err", "topic", "state", "error", err.Error())
	}
	return err
}

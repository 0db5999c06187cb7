package arqsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one trace record as stored, the record itself serialized to yaml
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers a record of what happened on the links of a simulation
// run: frames put on a channel, frames corrupted, ACKs, timeouts and the like
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// identity of the run
	RunID string `json:"runid" yaml:"runid"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by objID
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName, runID string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.RunID = runID
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used.
// A nil TraceManager is not
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record against object objID
func (tm *TraceManager) AddTrace(objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	_, present := tm.Traces[objID]
	if !present {
		tm.Traces[objID] = make([]TraceInst, 0)
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.Active() {
		return nil
	}
	_, present := tm.NameByID[id]
	if present {
		return fmt.Errorf("%w: trace id %d given to %s and %s", ErrConfig, id, tm.NameByID[id].Name, name)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// NumTraces returns the number of records held for objID
func (tm *TraceManager) NumTraces(objID int) int {
	if !tm.Active() {
		return 0
	}
	return len(tm.Traces[objID])
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written if the TraceManager is not active
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	bytes, err := marshalByExt(filename, *tm)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// LinkTrace saves information about one event on a link, for post-run analysis
type LinkTrace struct {
	Time     float64 `json:"time" yaml:"time"`         // time in float64
	Ticks    int64   `json:"ticks" yaml:"ticks"`       // ticks variable of time
	Priority int64   `json:"priority" yaml:"priority"` // priority field of time-stamp
	ObjID    int     `json:"objid" yaml:"objid"`       // integer id for object being referenced
	Op       string  `json:"op" yaml:"op"`             // "transmit", "corrupt", "send", "ack", "timeout", ...
	Seq      int     `json:"seq" yaml:"seq"`           // sequence number involved, -1 if none
	Bits     uint64  `json:"bits" yaml:"bits"`
	Len      int     `json:"len" yaml:"len"`
}

// Serialize returns the yaml form of the record
func (ltr *LinkTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*ltr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddLinkTrace creates a record of the trace using its calling arguments, and stores it.
// It may be called on a nil or inactive TraceManager, and then does nothing
func (tm *TraceManager) AddLinkTrace(t float64, objID int, op string, frame Frame, seq int) {
	if !tm.Active() {
		return
	}
	vrt := vrtime.SecondsToTime(t)

	ltr := new(LinkTrace)
	ltr.Time = t
	ltr.Ticks = vrt.Ticks()
	ltr.Priority = vrt.Pri()
	ltr.ObjID = objID
	ltr.Op = op
	ltr.Seq = seq
	ltr.Bits = frame.Bits
	ltr.Len = frame.Len

	traceTime := strconv.FormatFloat(t, 'f', -1, 64)
	tm.AddTrace(objID, TraceInst{TraceTime: traceTime, TraceType: "link", TraceStr: ltr.Serialize()})
}

// marshalByExt serializes obj to yaml or json, chosen by the extension of filename
func marshalByExt(filename string, obj any) ([]byte, error) {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return yaml.Marshal(obj)
	case ".json", ".JSON":
		return json.MarshalIndent(obj, "", "\t")
	default:
		return nil, fmt.Errorf("%w: cannot tell the format of %s from its extension", ErrConfig, filename)
	}
}

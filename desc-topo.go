package arqsim

// desc-topo.go holds the serializable description of a simulation: the
// channel and protocol settings, the links to build, and the run-time
// parameter assignments that refine them.  Descriptions are read from and
// written to yaml or json files.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// LinkDesc describes one simulated link: a sending node, a receiving node and
// the pair of channels between them (data forward, replies in reverse)
type LinkDesc struct {
	Name     string `json:"name" yaml:"name"`
	Sender   string `json:"sender" yaml:"sender"`
	Receiver string `json:"receiver" yaml:"receiver"`

	// Protocol overrides SimCfg.Protocol for this link when not empty
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// ForwardName is the name given to the channel carrying data frames
func (ld *LinkDesc) ForwardName() string {
	return ld.Name + "-fwd"
}

// ReverseName is the name given to the channel carrying replies
func (ld *LinkDesc) ReverseName() string {
	return ld.Name + "-rev"
}

// An ExpParameter struct describes an input to experiment configuration at run-time. It specifies
//   - ParamObj identifies the kind of thing being configured : Channel or Link
//   - Attribute identifies a class of objects of that type to which the configuration parameter should apply.
//     May be "*" for a wild-card, may be "name%%xxyy" where "xxyy" is the object's name, may be
//     a comma-separated list of other attributes (see GetExpParamDesc)
//   - Param is the thing being set, e.g. "errorprob" for a Channel or "timeout" for a Link
//   - Value is the string-encoded value
type ExpParameter struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// ParameterType, e.g., "errorprob", "rate", "timeout"
	Param string `json:"param" yaml:"param"`

	// string-encoded value associated with type
	Value string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor.  Completely fills in the struct with the [ExpParameter] attributes.
func CreateExpParameter(paramObj, attribute, param, value string) *ExpParameter {
	return &ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}
}

// SimCfg holds everything needed to build and run one simulation
type SimCfg struct {
	// Name labels the experiment in reports and traces
	Name string `json:"name" yaml:"name"`

	// Protocol is the ARQ protocol used on every link that does not name its own
	Protocol string `json:"protocol" yaml:"protocol"`

	// ErrorProb is the probability a bit is flipped on a channel
	ErrorProb float64 `json:"errorprob" yaml:"errorprob"`

	// TransRate is the channel rate in bits per second
	TransRate float64 `json:"transrate" yaml:"transrate"`

	// PropDelay is the channel propagation delay in seconds
	PropDelay float64 `json:"propdelay" yaml:"propdelay"`

	// Timeout is the retransmission timeout in seconds
	Timeout float64 `json:"timeout" yaml:"timeout"`

	// WindowSize is the sender window of Go-Back-N and Selective-Repeat
	WindowSize int `json:"windowsize" yaml:"windowsize"`

	// PacketSize is the number of payload bits in a packet
	PacketSize int `json:"packetsize" yaml:"packetsize"`

	// Horizon is the simulation time at which a run stops
	Horizon float64 `json:"horizon" yaml:"horizon"`

	// Divisor is the CRC polynomial
	Divisor uint64 `json:"divisor" yaml:"divisor"`

	// Replications is the number of independent runs a sweep makes per point
	Replications int `json:"replications" yaml:"replications"`

	// Trace turns on the gathering of link traces
	Trace bool `json:"trace" yaml:"trace"`

	Links      []LinkDesc     `json:"links" yaml:"links"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// DefaultSimCfg returns a single link running Stop-and-Wait over an error-free
// 1 Mbit/s channel for one second
func DefaultSimCfg() *SimCfg {
	cfg := new(SimCfg)
	cfg.Name = "arqsim"
	cfg.Protocol = StopAndWait.String()
	cfg.ErrorProb = 0.0
	cfg.TransRate = 1e6
	cfg.PropDelay = 0.0
	cfg.Timeout = 1e-4
	cfg.WindowSize = 4
	cfg.PacketSize = 32
	cfg.Horizon = 1.0
	cfg.Divisor = DefaultDivisor
	cfg.Replications = 1
	cfg.Links = []LinkDesc{{Name: "link0", Sender: "tx0", Receiver: "rx0"}}
	cfg.Parameters = make([]ExpParameter, 0)
	return cfg
}

// LinkProtocol returns the protocol run on link ld
func (cfg *SimCfg) LinkProtocol(ld *LinkDesc) ProtocolKind {
	if len(ld.Protocol) > 0 {
		return ProtocolFromStr(ld.Protocol)
	}
	return ProtocolFromStr(cfg.Protocol)
}

// AddParameter accepts the four values in an ExpParameter, creates one, and adds it to the SimCfg's list.
// Returns an error if the parameter is not validated.
func (cfg *SimCfg) AddParameter(paramObj, attribute, param, value string) error {
	err := ValidateParameter(paramObj, attribute, param)
	if err != nil {
		return err
	}
	cfg.Parameters = append(cfg.Parameters, *CreateExpParameter(paramObj, attribute, param, value))
	return nil
}

// Validate checks the whole configuration and reports every problem found
func (cfg *SimCfg) Validate() error {
	errs := make([]error, 0)
	addErr := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if ProtocolFromStr(cfg.Protocol) == unknownProtocol {
		addErr("unknown protocol %q", cfg.Protocol)
	}
	if cfg.ErrorProb < 0.0 || cfg.ErrorProb > 1.0 {
		addErr("error probability %g outside [0,1]", cfg.ErrorProb)
	}
	if !(cfg.TransRate > 0.0) {
		addErr("transmission rate %g not positive", cfg.TransRate)
	}
	if cfg.PropDelay < 0.0 {
		addErr("propagation delay %g negative", cfg.PropDelay)
	}
	if !(cfg.Timeout > 0.0) {
		addErr("timeout %g not positive", cfg.Timeout)
	}
	if !(cfg.Horizon > 0.0) {
		addErr("horizon %g not positive", cfg.Horizon)
	}
	if cfg.WindowSize < 1 {
		addErr("window size %d less than 1", cfg.WindowSize)
	}
	if cfg.PacketSize < 1 {
		addErr("packet size %d less than 1", cfg.PacketSize)
	}
	if cfg.Replications < 1 {
		addErr("replications %d less than 1", cfg.Replications)
	}
	crc, err := CreateCRC(cfg.Divisor)
	if err != nil {
		errs = append(errs, err)
	}
	if len(cfg.Links) == 0 {
		addErr("no links")
	}

	names := make([]string, 0)
	for idx := range cfg.Links {
		ld := &cfg.Links[idx]
		if len(ld.Name) == 0 || len(ld.Sender) == 0 || len(ld.Receiver) == 0 {
			addErr("link %d needs a name, a sender and a receiver", idx)
			continue
		}
		if slices.Contains(names, ld.Name) {
			addErr("link name %s used twice", ld.Name)
		}
		names = append(names, ld.Name)

		pk := cfg.LinkProtocol(ld)
		if pk == unknownProtocol {
			addErr("link %s has unknown protocol %q", ld.Name, ld.Protocol)
			continue
		}
		if crc != nil && cfg.WindowSize >= 1 {
			width := cfg.PacketSize + seqBitsFor(pk.Modulus(cfg.WindowSize)) + crc.Overhead()
			if width > MaxFrameLen {
				addErr("link %s frames are %d bits wide, at most %d fit", ld.Name, width, MaxFrameLen)
			}
		}
	}

	GetExpParamDesc()
	for _, param := range cfg.Parameters {
		if err := ValidateParameter(param.ParamObj, param.Attribute, param.Param); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

// WriteToFile stores the SimCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *SimCfg) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// ReadSimCfg deserializes a byte slice holding a representation of a SimCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Fields absent from the input keep the values of DefaultSimCfg.
// A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadSimCfg(filename string, useYAML bool, dict []byte) (*SimCfg, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, err := os.Stat(filename)
		if os.IsNotExist(err) || fileInfo.IsDir() {
			return nil, fmt.Errorf("%w: simulation configuration %s does not exist or cannot be read", ErrConfig, filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := DefaultSimCfg()
	if useYAML {
		err = yaml.Unmarshal(dict, example)
	} else {
		err = json.Unmarshal(dict, example)
	}
	if err != nil {
		return nil, err
	}
	return example, nil
}

// UseYAML reports whether the extension of filename names a yaml file
func UseYAML(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}

// ValidateParameter returns an error if the paramObj, attribute, and param values don't
// make sense taken together within an ExpParameter.
func ValidateParameter(paramObj, attribute, param string) error {
	GetExpParamDesc()

	// the paramObj string has to be recognized as one of the permitted ones (stored in list ExpParamObjs)
	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("%w: parameter paramObj %s is not recognized", ErrConfig, paramObj)
	}

	// Start the analysis of the attribute by splitting it by comma
	attrbList := strings.Split(attribute, ",")

	// every elemental attribute needs to be a name or "*", or recognized as a legitimate attribute
	// for the associated paramObj
	for _, attrb := range attrbList {

		// name or "*" must be the only attribute in the comma-separated list
		if strings.HasPrefix(attrb, "name%%") || attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("%w: parameter attribute %s paramObj %s is included with more attributes",
					ErrConfig, attrb, paramObj)
			}
			continue
		}

		if strings.HasPrefix(attrb, "link%%") && paramObj == "Channel" {
			continue
		}

		// otherwise check the legitimacy of the individual attribute.  Whole string is invalid if one component is invalid.
		if !slices.Contains(ExpAttributes[paramObj], attrb) {
			return fmt.Errorf("%w: parameter attribute %s is not recognized for paramObj %s", ErrConfig, attrb, paramObj)
		}
	}

	// make sure the type of param is consistent with the paramObj
	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("%w: parameter %s is not recognized for paramObj %s", ErrConfig, param, paramObj)
	}
	return nil
}

// ExpParamObjs, ExpAttributes, and ExpParams hold descriptions of the types of objects
// that are initialized by an ExpParameter, for each the attributes of the object that can be tested for to determine
// whether the object is to receive the configuration parameter, and the parameter types defined for each object type
var ExpParamObjs []string
var ExpAttributes map[string][]string
var ExpParams map[string][]string

// GetExpParamDesc returns ExpParamObjs, ExpAttributes, and ExpParams after ensuring that they have been built
func GetExpParamDesc() ([]string, map[string][]string, map[string][]string) {
	if ExpParamObjs == nil {
		ExpParamObjs = []string{"Channel", "Link"}
		ExpAttributes = make(map[string][]string)
		ExpAttributes["Channel"] = []string{"forward", "reverse", "*"}
		ExpAttributes["Link"] = []string{StopAndWait.String(), GoBackN.String(), SelectiveRepeat.String(), "*"}
		ExpParams = make(map[string][]string)
		ExpParams["Channel"] = []string{"errorprob", "rate", "delay"}
		ExpParams["Link"] = []string{"timeout", "window"}
	}
	return ExpParamObjs, ExpAttributes, ExpParams
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.  If every
// error reported wraps ErrConfig so does the result
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	allConfig := true
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
			allConfig = allConfig && errors.Is(err, ErrConfig)
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	joined := errors.New(strings.Join(errMsg, ","))
	if allConfig {
		return fmt.Errorf("%w (%s)", ErrConfig, joined)
	}
	return joined
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	// make sure that the directory of each named file exists
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}

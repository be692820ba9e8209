package netlist

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edaforge/gospice/pkg/device"
)

// ErrNodeMismatch reports an element wired with the wrong number of
// connections.
var ErrNodeMismatch = errors.New("netlist: node count mismatch")

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
)

type NetlistData struct {
	Title    string
	Elements []Element
	Nodes    map[string]int
	Models   map[string]device.ModelParam
	Analysis AnalysisType

	TranParam struct {
		TStep  float64
		TStop  float64
		TStart float64
		TMax   float64
		UIC    bool
	}
	ACParam struct {
		Sweep  string // DEC, OCT, LIN
		Points int
		FStart float64
		FStop  float64
	}
	DCParam struct {
		Sources    []string
		Starts     []float64
		Stops      []float64
		Increments []float64
	}
	Options Options
}

// Options collects .options overrides; nil pointers mean "keep the
// default".
type Options struct {
	RelTol   *float64
	AbsTol   *float64
	TrTol    *float64
	Gmin     *float64
	Temp     *float64
	MaxIter  *int
	Method   string // "gear" or "trap"
	MaxOrder int
}

type Element struct {
	Type   string // Part type (R, L, C, V, ...)
	Name   string
	Nodes  []string
	Value  float64
	Params map[string]string
}

var unitMap = map[string]float64{
	"T":   1e12,
	"G":   1e9,
	"meg": 1e6,
	"K":   1e3,
	"k":   1e3,
	"M":   1e-3,
	"m":   1e-3,
	"u":   1e-6,
	"n":   1e-9,
	"p":   1e-12,
	"f":   1e-15,
}

var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGMKkmunpf])?[sSvVaAhHfF]?$`)

// ParseValue converts a SPICE number with optional engineering suffix.
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}
	return num, nil
}

// Parse reads a netlist: title line first, then elements and dot
// directives, with * comments and + continuations.
func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	data := &NetlistData{
		Nodes:  make(map[string]int),
		Models: make(map[string]device.ModelParam),
	}

	if scanner.Scan() {
		data.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var pending string
	flush := func() error {
		if pending == "" {
			return nil
		}
		err := parseLine(data, pending)
		pending = ""
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case len(line) == 0 || strings.HasPrefix(line, "*"):
			if err := flush(); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "+"):
			pending += " " + strings.TrimSpace(line[1:])

		default:
			if err := flush(); err != nil {
				return nil, err
			}
			pending = line
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return data, nil
}

func parseLine(data *NetlistData, line string) error {
	line = regexp.MustCompile(`\s+`).ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotDirective(data, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	data.Elements = append(data.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := data.Nodes[node]; !exists {
			data.Nodes[node] = len(data.Nodes)
		}
	}
	return nil
}

func parseDotDirective(data *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case ".end":
		return nil

	case ".model":
		return parseModel(data, fields[1:])

	case ".options", ".option":
		return parseOptions(data, fields[1:])

	case ".op":
		data.Analysis = AnalysisOP

	case ".tran":
		data.Analysis = AnalysisTRAN
		if len(fields) < 3 {
			return fmt.Errorf("insufficient tran parameters, need at least tstep and tstop")
		}
		if data.TranParam.TStep, err = ParseValue(fields[1]); err != nil {
			return fmt.Errorf("invalid tstep: %v", err)
		}
		if data.TranParam.TStop, err = ParseValue(fields[2]); err != nil {
			return fmt.Errorf("invalid tstop: %v", err)
		}

		pos := 3
		for i := 3; i < len(fields); i++ {
			if strings.EqualFold(fields[i], "uic") {
				data.TranParam.UIC = true
				continue
			}
			switch pos {
			case 3:
				if data.TranParam.TStart, err = ParseValue(fields[i]); err != nil {
					return fmt.Errorf("invalid tstart: %v", err)
				}
			case 4:
				if data.TranParam.TMax, err = ParseValue(fields[i]); err != nil {
					return fmt.Errorf("invalid tmax: %v", err)
				}
			}
			pos++
		}

	case ".ac":
		data.Analysis = AnalysisAC
		if len(fields) < 5 {
			return fmt.Errorf("insufficient AC parameters, need sweep type, points, fstart, and fstop")
		}

		data.ACParam.Sweep = strings.ToUpper(fields[1])
		if data.ACParam.Sweep != "DEC" && data.ACParam.Sweep != "OCT" && data.ACParam.Sweep != "LIN" {
			return fmt.Errorf("invalid sweep type: %s", data.ACParam.Sweep)
		}

		if data.ACParam.Points, err = strconv.Atoi(fields[2]); err != nil {
			return fmt.Errorf("invalid points number: %v", err)
		}
		if data.ACParam.FStart, err = ParseValue(fields[3]); err != nil {
			return fmt.Errorf("invalid fstart: %v", err)
		}
		if data.ACParam.FStop, err = ParseValue(fields[4]); err != nil {
			return fmt.Errorf("invalid fstop: %v", err)
		}

	case ".dc":
		data.Analysis = AnalysisDC
		args := fields[1:]
		for len(args) >= 4 {
			start, err1 := ParseValue(args[1])
			stop, err2 := ParseValue(args[2])
			incr, err3 := ParseValue(args[3])
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("invalid DC sweep bounds for %s", args[0])
			}
			data.DCParam.Sources = append(data.DCParam.Sources, args[0])
			data.DCParam.Starts = append(data.DCParam.Starts, start)
			data.DCParam.Stops = append(data.DCParam.Stops, stop)
			data.DCParam.Increments = append(data.DCParam.Increments, incr)
			args = args[4:]
		}
		if len(args) != 0 || len(data.DCParam.Sources) == 0 {
			return fmt.Errorf("insufficient DC sweep parameters")
		}

	default:
		return fmt.Errorf("unsupported directive: %s", fields[0])
	}

	return nil
}

func parseOptions(data *NetlistData, fields []string) error {
	for _, field := range fields {
		pair := strings.SplitN(field, "=", 2)
		if len(pair) != 2 {
			return fmt.Errorf("invalid option: %s", field)
		}
		key := strings.ToLower(pair[0])

		switch key {
		case "method":
			data.Options.Method = strings.ToLower(pair[1])
			continue
		case "maxord":
			n, err := strconv.Atoi(pair[1])
			if err != nil {
				return fmt.Errorf("invalid maxord: %v", err)
			}
			data.Options.MaxOrder = n
			continue
		case "itl1", "maxiter":
			n, err := strconv.Atoi(pair[1])
			if err != nil {
				return fmt.Errorf("invalid %s: %v", key, err)
			}
			data.Options.MaxIter = &n
			continue
		}

		value, err := ParseValue(pair[1])
		if err != nil {
			return fmt.Errorf("invalid option value %s: %v", field, err)
		}
		switch key {
		case "reltol":
			data.Options.RelTol = &value
		case "abstol":
			data.Options.AbsTol = &value
		case "trtol":
			data.Options.TrTol = &value
		case "gmin":
			data.Options.Gmin = &value
		case "temp":
			kelvin := value + 273.15
			data.Options.Temp = &kelvin
		default:
			return fmt.Errorf("unsupported option: %s", key)
		}
	}
	return nil
}

func parseModel(data *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("insufficient model parameters")
	}

	modelName := fields[0]
	modelType := strings.ToUpper(strings.TrimLeft(fields[1], "("))

	// Currently D model only
	if modelType != "D" {
		return fmt.Errorf("unsupported model type: %s", modelType)
	}

	params := make(map[string]float64)
	for i := 2; i < len(fields); i++ {
		field := strings.Trim(fields[i], "()")
		if field == "" {
			continue
		}
		pair := strings.Split(field, "=")
		if len(pair) != 2 {
			continue
		}
		value, err := ParseValue(pair[1])
		if err != nil {
			return fmt.Errorf("invalid parameter value %s: %v", field, err)
		}
		params[strings.ToLower(pair[0])] = value
	}

	data.Models[modelName] = device.ModelParam{
		Type:   modelType,
		Name:   modelName,
		Params: params,
	}
	return nil
}

// nodeCount is the connection count each element type demands; 0
// means the count is not checked.
var nodeCount = map[string]int{
	"R": 2, "C": 2, "L": 2, "D": 2, "V": 2, "I": 2, "K": 0,
}

func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Params: make(map[string]string),
	}

	want, supported := nodeCount[elem.Type]
	if !supported {
		return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
	}

	var err error
	switch elem.Type {
	case "V", "I":
		err = parseSource(elem, fields)

	case "K":
		err = parseMutual(elem, fields)

	case "D":
		elem.Nodes = fields[1:3]
		if len(fields) > 3 {
			elem.Params["model"] = fields[3]
		}

	default: // R, C, L: nodes, value, then name=value params
		if len(fields) < 4 {
			return nil, fmt.Errorf("%w: %s has %d connections, needs 2",
				ErrNodeMismatch, elem.Name, len(fields)-2)
		}
		elem.Nodes = fields[1:3]
		if elem.Value, err = ParseValue(fields[3]); err != nil {
			return nil, fmt.Errorf("%s: invalid value: %v", elem.Name, err)
		}
		for _, field := range fields[4:] {
			pair := strings.Split(field, "=")
			if len(pair) != 2 {
				return nil, fmt.Errorf("%s: invalid parameter: %s", elem.Name, field)
			}
			elem.Params[strings.ToLower(pair[0])] = pair[1]
		}
	}
	if err != nil {
		return nil, err
	}

	if want > 0 && len(elem.Nodes) != want {
		return nil, fmt.Errorf("%w: %s has %d connections, needs %d",
			ErrNodeMismatch, elem.Name, len(elem.Nodes), want)
	}
	return elem, nil
}

func parseSource(elem *Element, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%w: source %s needs 2 connections and a value",
			ErrNodeMismatch, elem.Name)
	}
	elem.Nodes = []string{fields[1], fields[2]}

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ")
	remaining = strings.ReplaceAll(remaining, ")", " ")
	words := strings.Fields(remaining)
	if len(words) == 0 {
		return fmt.Errorf("missing source specification: %s", elem.Name)
	}

	var err error
	switch strings.ToUpper(words[0]) {
	case "DC":
		if len(words) < 2 {
			return fmt.Errorf("missing DC value: %s", elem.Name)
		}
		elem.Params["type"] = "dc"
		elem.Value, err = ParseValue(words[1])

	case "SIN":
		elem.Params["type"] = "sin"
		elem.Params["args"] = strings.Join(words[1:], " ")

	case "PULSE":
		elem.Params["type"] = "pulse"
		elem.Params["args"] = strings.Join(words[1:], " ")

	case "PWL":
		elem.Params["type"] = "pwl"
		elem.Params["args"] = strings.Join(words[1:], " ")

	case "AC":
		elem.Params["type"] = "ac"
		if len(words) >= 2 {
			elem.Value, err = ParseValue(words[1])
		} else {
			elem.Value = 1
		}
		elem.Params["phase"] = "0"
		if err == nil && len(words) >= 3 {
			elem.Params["phase"] = words[2]
		}

	default:
		// Bare numeric value means DC.
		elem.Params["type"] = "dc"
		elem.Value, err = ParseValue(words[0])
		if err != nil {
			return fmt.Errorf("unsupported source type: %s", words[0])
		}
	}
	return err
}

func parseMutual(elem *Element, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("insufficient mutual coupling parameters: %s", elem.Name)
	}

	coefficient, err := ParseValue(fields[len(fields)-1])
	if err != nil {
		return fmt.Errorf("invalid coupling coefficient: %v", err)
	}
	if coefficient < -1 || coefficient > 1 {
		return fmt.Errorf("coupling coefficient must be between -1 and 1: %f", coefficient)
	}

	indNames := fields[1 : len(fields)-1]
	if len(indNames) < 2 {
		return fmt.Errorf("mutual coupling requires at least two inductors")
	}

	for i, name := range indNames {
		elem.Params[fmt.Sprintf("ind%d", i+1)] = name
	}
	elem.Value = coefficient
	return nil
}

// CreateDevice builds the device for a parsed element; the circuit
// assigns node and branch indices afterwards.
func CreateDevice(elem Element, models map[string]device.ModelParam) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Nodes, elem.Value), nil

	case "C":
		c := device.NewCapacitor(elem.Name, elem.Nodes, elem.Value)
		if icStr, ok := elem.Params["ic"]; ok {
			ic, err := ParseValue(icStr)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid IC: %v", elem.Name, err)
			}
			c.SetInitialCondition(ic)
		}
		return c, nil

	case "L":
		l := device.NewInductor(elem.Name, elem.Nodes, elem.Value)
		if icStr, ok := elem.Params["ic"]; ok {
			ic, err := ParseValue(icStr)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid IC: %v", elem.Name, err)
			}
			l.SetInitialCondition(ic)
		}
		return l, nil

	case "K":
		var indNames []string
		for i := 1; ; i++ {
			name, ok := elem.Params[fmt.Sprintf("ind%d", i)]
			if !ok {
				break
			}
			indNames = append(indNames, name)
		}
		return device.NewMutual(elem.Name, indNames, elem.Value), nil

	case "D":
		diode := device.NewDiode(elem.Name, elem.Nodes)
		if modelName, ok := elem.Params["model"]; ok {
			if model, exists := models[modelName]; exists {
				diode.SetModelParameters(model.Params)
			}
		}
		return diode, nil

	case "V":
		return createSource(elem, true)

	case "I":
		return createSource(elem, false)
	}

	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

func createSource(elem Element, voltage bool) (device.Device, error) {
	switch elem.Params["type"] {
	case "dc":
		if voltage {
			return device.NewDCVoltageSource(elem.Name, elem.Nodes, elem.Value), nil
		}
		return device.NewDCCurrentSource(elem.Name, elem.Nodes, elem.Value), nil

	case "sin":
		offset, amplitude, freq, phase, err := parseSinParams(elem.Params["args"])
		if err != nil {
			return nil, fmt.Errorf("%s: %v", elem.Name, err)
		}
		if voltage {
			return device.NewSinVoltageSource(elem.Name, elem.Nodes, offset, amplitude, freq, phase), nil
		}
		return device.NewSinCurrentSource(elem.Name, elem.Nodes, offset, amplitude, freq, phase), nil

	case "pulse":
		v1, v2, delay, rise, fall, width, period, err := parsePulseParams(elem.Params["args"])
		if err != nil {
			return nil, fmt.Errorf("%s: %v", elem.Name, err)
		}
		if voltage {
			return device.NewPulseVoltageSource(elem.Name, elem.Nodes, v1, v2, delay, rise, fall, width, period), nil
		}
		return device.NewPulseCurrentSource(elem.Name, elem.Nodes, v1, v2, delay, rise, fall, width, period), nil

	case "pwl":
		times, values, err := parsePWLParams(elem.Params["args"])
		if err != nil {
			return nil, fmt.Errorf("%s: %v", elem.Name, err)
		}
		if voltage {
			return device.NewPWLVoltageSource(elem.Name, elem.Nodes, times, values), nil
		}
		return device.NewPWLCurrentSource(elem.Name, elem.Nodes, times, values), nil

	case "ac":
		phase, err := ParseValue(elem.Params["phase"])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid AC phase: %v", elem.Name, err)
		}
		if voltage {
			return device.NewACVoltageSource(elem.Name, elem.Nodes, 0, elem.Value, phase), nil
		}
		return device.NewACCurrentSource(elem.Name, elem.Nodes, 0, elem.Value, phase), nil
	}

	return nil, fmt.Errorf("unsupported source type: %s", elem.Params["type"])
}

func parseSinParams(params string) (offset, amplitude, freq, phase float64, err error) {
	args := strings.Fields(params)
	if len(args) < 3 {
		return 0, 0, 0, 0, fmt.Errorf("insufficient SIN parameters")
	}

	vals := make([]float64, len(args))
	for i, arg := range args {
		if vals[i], err = ParseValue(arg); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid SIN parameter %s: %v", arg, err)
		}
	}

	offset, amplitude, freq = vals[0], vals[1], vals[2]
	if len(vals) >= 4 {
		phase = vals[3]
	}
	return offset, amplitude, freq, phase, nil
}

func parsePulseParams(params string) (v1, v2, delay, rise, fall, width, period float64, err error) {
	args := strings.Fields(params)
	if len(args) < 7 {
		return 0, 0, 0, 0, 0, 0, 0, fmt.Errorf("insufficient PULSE parameters")
	}

	vals := make([]float64, 7)
	for i := range vals {
		if vals[i], err = ParseValue(args[i]); err != nil {
			return 0, 0, 0, 0, 0, 0, 0, fmt.Errorf("invalid PULSE parameter %s: %v", args[i], err)
		}
	}

	return vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6], nil
}

func parsePWLParams(params string) (times, values []float64, err error) {
	args := strings.Fields(params)
	if len(args) < 4 || len(args)%2 != 0 {
		return nil, nil, fmt.Errorf("PWL needs time/value pairs")
	}

	for i := 0; i < len(args); i += 2 {
		t, err := ParseValue(args[i])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid PWL time %s: %v", args[i], err)
		}
		v, err := ParseValue(args[i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid PWL value %s: %v", args[i+1], err)
		}
		if len(times) > 0 && t <= times[len(times)-1] {
			return nil, nil, fmt.Errorf("PWL times must increase")
		}
		times = append(times, t)
		values = append(values, v)
	}

	return times, values, nil
}

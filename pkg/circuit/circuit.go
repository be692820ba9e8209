package circuit

import (
	"fmt"

	"github.com/edaforge/gospice/pkg/device"
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
	"github.com/edaforge/gospice/pkg/netlist"
)

// Circuit holds the assembled netlist: node and branch numbering, the
// device list, and the MNA matrix. Node 0 is ground and never appears
// in the matrix; branch rows follow the node rows.
type Circuit struct {
	name             string
	nodeMap          map[string]int
	branchMap        map[string]int
	devices          []device.Device
	numNodes         int
	matrix           *matrix.CircuitMatrix
	Status           *device.CircuitStatus
	isComplex        bool
	nonlinearDevices []device.NonLinear
	Models           map[string]device.ModelParam
}

func New(name string) *Circuit {
	return NewWithComplex(name, false)
}

func NewWithComplex(name string, isComplex bool) *Circuit {
	return &Circuit{
		name:      name,
		nodeMap:   make(map[string]int),
		branchMap: make(map[string]int),
		devices:   make([]device.Device, 0),
		Status:    &device.CircuitStatus{},
		isComplex: isComplex,
		Models:    make(map[string]device.ModelParam),
	}
}

func (c *Circuit) SetModels(models map[string]device.ModelParam) {
	c.Models = models
}

// AssignNodeBranchMaps numbers every node and every voltage-defined
// branch (voltage sources and inductors get branch current unknowns).
func (c *Circuit) AssignNodeBranchMaps(elements []netlist.Element) error {
	for _, elem := range elements {
		for _, nodeName := range elem.Nodes {
			if nodeName == "0" || nodeName == "gnd" {
				continue
			}
			if _, exists := c.nodeMap[nodeName]; !exists {
				c.nodeMap[nodeName] = len(c.nodeMap) + 1
			}
		}
	}

	branchStart := len(c.nodeMap) + 1
	for _, elem := range elements {
		if elem.Type == "V" || elem.Type == "L" {
			c.branchMap[elem.Name] = branchStart
			branchStart++
		}
	}

	c.numNodes = len(c.nodeMap)
	return nil
}

func (c *Circuit) CreateMatrix() error {
	matrixSize := len(c.nodeMap) + len(c.branchMap)
	mat, err := matrix.NewMatrix(matrixSize, c.isComplex)
	if err != nil {
		return err
	}
	c.matrix = mat
	return nil
}

// SetupDevices constructs every element's device, wires node and
// branch indices, resolves mutual couplings, and freezes the matrix
// fill pattern with an initial stamp.
func (c *Circuit) SetupDevices(elements []netlist.Element) error {
	inductors := make(map[string]*device.Inductor)
	var mutuals []*device.Mutual

	for _, elem := range elements {
		dev, err := netlist.CreateDevice(elem, c.Models)
		if err != nil {
			return fmt.Errorf("creating device %s: %v", elem.Name, err)
		}

		nodeIndices := make([]int, len(elem.Nodes))
		for i, nodeName := range elem.Nodes {
			if nodeName == "0" || nodeName == "gnd" {
				continue
			}
			nodeIndices[i] = c.nodeMap[nodeName]
		}
		dev.SetNodes(nodeIndices)

		switch d := dev.(type) {
		case *device.VoltageSource:
			d.SetBranchIndex(c.branchMap[elem.Name])
		case *device.Inductor:
			d.SetBranchIndex(c.branchMap[elem.Name])
			inductors[elem.Name] = d
		case *device.Mutual:
			mutuals = append(mutuals, d)
		}

		c.AddDevice(dev)
	}

	for _, m := range mutuals {
		for i, name := range m.GetInductorNames() {
			ind, ok := inductors[name]
			if !ok {
				return fmt.Errorf("mutual %s: unknown inductor %s", m.GetName(), name)
			}
			if err := m.SetInductor(i, ind); err != nil {
				return err
			}
		}
	}

	cktStatus := &device.CircuitStatus{Mode: device.OperatingPointAnalysis, Temp: 300.15}
	if err := c.Stamp(cktStatus); err != nil {
		return fmt.Errorf("initial stamping failed: %v", err)
	}
	c.matrix.SetupElements()

	return nil
}

// AddDevice appends a constructed device; nonlinear devices join the
// relinearization list.
func (c *Circuit) AddDevice(dev device.Device) {
	if nl, ok := dev.(device.NonLinear); ok {
		c.nonlinearDevices = append(c.nonlinearDevices, nl)
	}
	c.devices = append(c.devices, dev)
}

func (c *Circuit) Stamp(status *device.CircuitStatus) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(c.matrix, status); err != nil {
			return fmt.Errorf("stamping device %s: %v", dev.GetName(), err)
		}
	}
	return nil
}

// BindIntegrator hands every dynamic device its derivative states and
// lets sources register their breakpoints.
func (c *Circuit) BindIntegrator(m *integrator.Method) {
	for _, dev := range c.devices {
		if dyn, ok := dev.(device.Dynamic); ok {
			dyn.BindState(m)
		}
		if bs, ok := dev.(device.BreakpointSetter); ok {
			bs.RegisterBreakpoints(m)
		}
	}
}

// InitDynamicStates seeds derivative-state history from the transient
// starting solution.
func (c *Circuit) InitDynamicStates(solution []float64, status *device.CircuitStatus) {
	for _, dev := range c.devices {
		if dyn, ok := dev.(device.Dynamic); ok {
			dyn.InitState(solution, status)
		}
	}
}

// ApplyInitialConditions writes UIC starting values into a solution
// vector.
func (c *Circuit) ApplyInitialConditions(solution []float64) {
	for _, dev := range c.devices {
		if ic, ok := dev.(device.WithInitialCondition); ok {
			ic.ApplyInitialCondition(solution)
		}
	}
}

func (c *Circuit) UpdateNonlinearVoltages(solution []float64) error {
	for _, dev := range c.nonlinearDevices {
		if err := dev.UpdateVoltages(solution); err != nil {
			return fmt.Errorf("updating voltages: %v", err)
		}
	}
	return nil
}

func (c *Circuit) GetMatrix() *matrix.CircuitMatrix {
	return c.matrix
}

func (c *Circuit) GetNodeMap() map[string]int {
	return c.nodeMap
}

func (c *Circuit) GetBranchMap() map[string]int {
	return c.branchMap
}

func (c *Circuit) GetDevices() []device.Device {
	return c.devices
}

// MatrixSize returns the number of MNA unknowns.
func (c *Circuit) MatrixSize() int {
	return len(c.nodeMap) + len(c.branchMap)
}

// GetSolution labels the matrix solution: V(node) for node voltages,
// I(name) for branch and resistor currents.
func (c *Circuit) GetSolution() map[string]float64 {
	return c.LabelSolution(c.matrix.Solution())
}

// LabelSolution names the entries of an arbitrary solution vector.
func (c *Circuit) LabelSolution(matrixSolution []float64) map[string]float64 {
	solution := make(map[string]float64)

	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = matrixSolution[idx]
	}

	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = -matrixSolution[idx]
	}

	// V = IR -> I = V/R
	for _, dev := range c.devices {
		if dev.GetType() == "R" {
			nodes := dev.GetNodes()
			v1, v2 := 0.0, 0.0
			if nodes[0] > 0 {
				v1 = matrixSolution[nodes[0]]
			}
			if nodes[1] > 0 {
				v2 = matrixSolution[nodes[1]]
			}
			solution[fmt.Sprintf("I(%s)", dev.GetName())] = (v1 - v2) / dev.GetValue()
		}
	}

	return solution
}

func (c *Circuit) GetNodeVoltage(nodeIdx int) float64 {
	if nodeIdx <= 0 {
		return 0
	}

	solution := c.matrix.Solution()
	if nodeIdx >= len(solution) {
		return 0
	}

	return solution[nodeIdx]
}

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}

func (c *Circuit) Name() string {
	return c.name
}

func (c *Circuit) GetNumNodes() int {
	return c.numNodes
}

package matrix

import (
	"errors"
	"fmt"

	"github.com/edp1096/sparse"
)

// ErrSingular reports a zero pivot during LU factorization.
var ErrSingular = errors.New("matrix: singular")

// CircuitMatrix owns the sparse MNA system: matrix, right-hand side
// and solution vectors, all 1-based. Element handles obtained through
// Element remain valid until Destroy.
type CircuitMatrix struct {
	Size         int
	matrix       *sparse.Matrix
	rhs          []float64
	rhsImag      []float64
	solution     []float64
	solutionImag []float64
	isComplex    bool
	config       *sparse.Configuration
}

func NewMatrix(size int, isComplex bool) (*CircuitMatrix, error) {
	config := &sparse.Configuration{
		Real:           true,
		Complex:        isComplex,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	vectorSize := size + 1
	vectorSizeImag := size + 1
	if isComplex && !config.SeparatedComplexVectors {
		vectorSize *= 2
		vectorSizeImag = 1
	}

	return &CircuitMatrix{
		Size:         size,
		matrix:       mat,
		rhs:          make([]float64, vectorSize),
		rhsImag:      make([]float64, vectorSizeImag),
		solution:     make([]float64, vectorSize),
		solutionImag: make([]float64, vectorSizeImag),
		isComplex:    isComplex,
		config:       config,
	}, nil
}

// SetupElements materializes every element handle once so the fill
// pattern is frozen before the first factorization.
func (m *CircuitMatrix) SetupElements() {
	for i := 1; i <= m.Size; i++ {
		for j := 1; j <= m.Size; j++ {
			m.matrix.GetElement(int64(i), int64(j))
		}
	}
}

// Element returns the stable handle for (i, j); devices may hold it
// across stamps for the life of the matrix.
func (m *CircuitMatrix) Element(i, j int) *sparse.Element {
	return m.matrix.GetElement(int64(i), int64(j))
}

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *CircuitMatrix) AddComplexElement(i, j int, real, imag float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return
	}
	element := m.matrix.GetElement(int64(i), int64(j))
	element.Real += real
	element.Imag += imag
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > m.Size {
		return
	}
	m.rhs[i] += value
}

func (m *CircuitMatrix) AddComplexRHS(i int, real, imag float64) {
	if i <= 0 || i > m.Size {
		return
	}
	if m.config.SeparatedComplexVectors {
		m.rhs[i] += real
		m.rhsImag[i] += imag
	} else {
		m.rhs[2*i] += real
		m.rhs[2*i+1] += imag
	}
}

// LoadGmin adds a small conductance on every diagonal, keeping
// floating nodes out of the null space.
func (m *CircuitMatrix) LoadGmin(gmin float64) {
	if gmin == 0 {
		return
	}
	for i := 1; i <= m.Size; i++ {
		if diag := m.matrix.Diags[i]; diag != nil {
			diag.Real += gmin
		}
	}
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
	for i := range m.rhsImag {
		m.rhsImag[i] = 0
	}
}

// Factor LU-factorizes in place. A zero pivot surfaces as ErrSingular.
func (m *CircuitMatrix) Factor() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return nil
}

// SolveFactored back-substitutes against the current factorization.
func (m *CircuitMatrix) SolveFactored() error {
	var err error
	if m.config.Complex {
		m.solution, m.solutionImag, err = m.matrix.SolveComplex(m.rhs, m.rhsImag)
	} else {
		m.solution, err = m.matrix.Solve(m.rhs)
	}
	if err != nil {
		return fmt.Errorf("matrix solve failed: %v", err)
	}
	return nil
}

// Solve factors and solves in one call.
func (m *CircuitMatrix) Solve() error {
	if err := m.Factor(); err != nil {
		return err
	}
	return m.SolveFactored()
}

func (m *CircuitMatrix) RHS() []float64 {
	return m.rhs
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

func (m *CircuitMatrix) GetComplexSolution(i int) (float64, float64) {
	if !m.isComplex || i <= 0 || i > m.Size {
		return 0, 0
	}
	return m.solution[i], m.solution[i+m.Size]
}

func (m *CircuitMatrix) SolutionImag() []float64 {
	return m.solutionImag
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}

package matrix

// DeviceMatrix is the stamping surface handed to device Load
// callbacks: additive writes into the MNA matrix and right-hand side,
// 1-based, ground row/column silently dropped by the callers.
type DeviceMatrix interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}

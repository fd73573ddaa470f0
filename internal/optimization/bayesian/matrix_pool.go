package bayesian

import "gonum.org/v1/gonum/mat"

// MatrixPool recycles kernel matrices between refits of the surrogate.
// Matrices are keyed by shape; a pool is not safe for concurrent use.
type MatrixPool struct {
	sym   map[int][]*mat.SymDense
	dense map[[2]int][]*mat.Dense
}

// NewMatrixPool creates a new MatrixPool
func NewMatrixPool() *MatrixPool {
	return &MatrixPool{
		sym:   make(map[int][]*mat.SymDense),
		dense: make(map[[2]int][]*mat.Dense),
	}
}

// GetSymDense returns a zeroed n×n symmetric matrix.
func (p *MatrixPool) GetSymDense(n int) *mat.SymDense {
	if free := p.sym[n]; len(free) > 0 {
		m := free[len(free)-1]
		p.sym[n] = free[:len(free)-1]
		m.Zero()
		return m
	}
	return mat.NewSymDense(n, nil)
}

// PutSymDense returns m to the pool.
func (p *MatrixPool) PutSymDense(m *mat.SymDense) {
	if m == nil || m.IsEmpty() {
		return
	}
	n := m.SymmetricDim()
	p.sym[n] = append(p.sym[n], m)
}

// GetDense returns a zeroed r×c matrix.
func (p *MatrixPool) GetDense(r, c int) *mat.Dense {
	key := [2]int{r, c}
	if free := p.dense[key]; len(free) > 0 {
		m := free[len(free)-1]
		p.dense[key] = free[:len(free)-1]
		m.Zero()
		return m
	}
	return mat.NewDense(r, c, nil)
}

// PutDense returns m to the pool.
func (p *MatrixPool) PutDense(m *mat.Dense) {
	if m == nil || m.IsEmpty() {
		return
	}
	r, c := m.Dims()
	key := [2]int{r, c}
	p.dense[key] = append(p.dense[key], m)
}

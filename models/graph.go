package models

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const bceEpsilon = 1e-7

// HeadGraph is the training graph of a Head for a fixed batch size.
//
// Features enter as [batch, spatial, channels]; the graph pools them, applies
// the dense layers with dropout and minimises the mean binary cross-entropy
// with Adam. Dropout masks are inverted (kept units are scaled by 1/(1-p))
// and drawn from a seeded generator, so runs with the same seed match.
type HeadGraph struct {
	g       *G.ExprGraph
	x, y    *G.Node
	mask    *G.Node
	w1, b1  *G.Node
	w2, b2  *G.Node
	vm      G.VM
	solver  G.Solver
	lossVal G.Value
	probVal G.Value

	batch, spatial int
	head           Head
	rand           *rng.UniformGenerator
}

// NewHeadGraph builds the training graph, starting from the head's weights.
//
// Arguments:
//   - head: The initial weights; they are copied.
//   - batch: The fixed batch size.
//   - spatial: The number of spatial positions per feature map.
//   - learnRate: The Adam learning rate.
//   - seed: Seeds the dropout masks.
//
// Returns:
//   - *HeadGraph: The graph, to be closed by the caller.
//   - error: An error if the graph cannot be built.
func NewHeadGraph(head *Head, batch, spatial int, learnRate float64, seed int64) (*HeadGraph, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if batch <= 0 || spatial <= 0 {
		return nil, errors.Errorf("invalid graph geometry batch=%d spatial=%d", batch, spatial)
	}

	c, h := head.Channels, head.Hidden
	g := G.NewGraph()
	hg := &HeadGraph{
		g:       g,
		batch:   batch,
		spatial: spatial,
		head:    *head.Clone(),
		rand:    rng.NewUniformGenerator(seed),
	}

	hg.x = G.NewTensor(g, tensor.Float32, 3, G.WithShape(batch, spatial, c), G.WithName("features"))
	hg.y = G.NewMatrix(g, tensor.Float32, G.WithShape(batch, 1), G.WithName("labels"))
	hg.mask = G.NewMatrix(g, tensor.Float32, G.WithShape(batch, h), G.WithName("dropout_mask"))
	hg.w1 = learnable(g, "w1", head.W1, c, h)
	hg.b1 = learnable(g, "b1", head.B1, 1, h)
	hg.w2 = learnable(g, "w2", head.W2, h, 1)
	hg.b2 = learnable(g, "b2", []float32{head.B2}, 1, 1)

	prob, loss, err := hg.build()
	if err != nil {
		return nil, errors.Wrap(err, "building head graph")
	}
	G.Read(prob, &hg.probVal)
	G.Read(loss, &hg.lossVal)

	if _, err := G.Grad(loss, hg.learnables()...); err != nil {
		return nil, errors.Wrap(err, "computing gradients")
	}

	hg.vm = G.NewTapeMachine(g, G.BindDualValues(hg.learnables()...))
	hg.solver = G.NewAdamSolver(G.WithLearnRate(learnRate))

	return hg, nil
}

func learnable(g *G.ExprGraph, name string, init []float32, rows, cols int) *G.Node {
	backing := append([]float32(nil), init...)
	value := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	return G.NewMatrix(g, tensor.Float32, G.WithShape(rows, cols), G.WithName(name), G.WithValue(value))
}

func (hg *HeadGraph) learnables() G.Nodes {
	return G.Nodes{hg.w1, hg.b1, hg.w2, hg.b2}
}

func (hg *HeadGraph) build() (prob, loss *G.Node, err error) {
	pooled, err := G.Mean(hg.x, 1)
	if err != nil {
		return nil, nil, err
	}
	hidden, err := G.Mul(pooled, hg.w1)
	if err != nil {
		return nil, nil, err
	}
	if hidden, err = G.BroadcastAdd(hidden, hg.b1, nil, []byte{0}); err != nil {
		return nil, nil, err
	}
	if hidden, err = G.Rectify(hidden); err != nil {
		return nil, nil, err
	}
	if hidden, err = G.HadamardProd(hidden, hg.mask); err != nil {
		return nil, nil, err
	}
	logit, err := G.Mul(hidden, hg.w2)
	if err != nil {
		return nil, nil, err
	}
	if logit, err = G.BroadcastAdd(logit, hg.b2, nil, []byte{0}); err != nil {
		return nil, nil, err
	}
	if prob, err = G.Sigmoid(logit); err != nil {
		return nil, nil, err
	}

	one := G.NewConstant(float32(1), G.WithName("one"))
	eps := G.NewConstant(float32(bceEpsilon), G.WithName("eps"))

	logP := G.Must(G.Log(G.Must(G.Add(prob, eps))))
	logNotP := G.Must(G.Log(G.Must(G.Add(G.Must(G.Sub(one, prob)), eps))))
	notY := G.Must(G.Sub(one, hg.y))

	ll := G.Must(G.Add(G.Must(G.HadamardProd(hg.y, logP)), G.Must(G.HadamardProd(notY, logNotP))))
	loss = G.Must(G.Neg(G.Must(G.Mean(ll))))

	return prob, loss, nil
}

// Batch is the fixed batch size.
func (hg *HeadGraph) Batch() int {
	return hg.batch
}

// Step runs one optimisation step on a batch.
//
// Arguments:
//   - features: Exactly Batch() spatial-major feature maps.
//   - labels: The matching labels, 0 or 1.
//
// Returns:
//   - float32: The mean binary cross-entropy of the batch before the update.
//   - int: The number of samples classified correctly at 0.5.
//   - error: An error if the batch does not match the graph.
func (hg *HeadGraph) Step(features [][]float32, labels []float32) (float32, int, error) {
	if len(features) != hg.batch || len(labels) != hg.batch {
		return 0, 0, errors.Errorf("batch of %d samples and %d labels, graph expects %d",
			len(features), len(labels), hg.batch)
	}

	per := hg.spatial * hg.head.Channels
	xs := make([]float32, 0, hg.batch*per)
	for i, f := range features {
		if len(f) != per {
			return 0, 0, errors.Errorf("feature map %d holds %d values, expected %d", i, len(f), per)
		}
		xs = append(xs, f...)
	}
	ys := append([]float32(nil), labels...)

	if err := G.Let(hg.x, tensor.New(tensor.WithShape(hg.batch, hg.spatial, hg.head.Channels), tensor.WithBacking(xs))); err != nil {
		return 0, 0, errors.Wrap(err, "binding features")
	}
	if err := G.Let(hg.y, tensor.New(tensor.WithShape(hg.batch, 1), tensor.WithBacking(ys))); err != nil {
		return 0, 0, errors.Wrap(err, "binding labels")
	}
	mask := hg.dropoutMask()
	if err := G.Let(hg.mask, tensor.New(tensor.WithShape(hg.batch, hg.head.Hidden), tensor.WithBacking(mask))); err != nil {
		return 0, 0, errors.Wrap(err, "binding dropout mask")
	}

	defer hg.vm.Reset()
	if err := hg.vm.RunAll(); err != nil {
		return 0, 0, errors.Wrap(err, "running head graph")
	}
	if err := hg.solver.Step(G.NodesToValueGrads(hg.learnables())); err != nil {
		return 0, 0, errors.Wrap(err, "applying optimiser step")
	}

	loss, err := floats(hg.lossVal)
	if err != nil || len(loss) != 1 {
		return 0, 0, errors.Errorf("unexpected loss value %v", hg.lossVal)
	}
	probs, err := floats(hg.probVal)
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading probabilities")
	}

	correct := 0
	for i, p := range probs {
		if (p > 0.5) == (labels[i] > 0.5) {
			correct++
		}
	}
	return loss[0], correct, nil
}

// dropoutMask draws a fresh [batch, hidden] inverted dropout mask.
func (hg *HeadGraph) dropoutMask() []float32 {
	mask := make([]float32, hg.batch*hg.head.Hidden)
	p := hg.head.DropoutRate
	keep := float32(1 / (1 - p))
	for i := range mask {
		if p == 0 || hg.rand.Float64() >= p {
			mask[i] = keep
		}
	}
	return mask
}

// Weights snapshots the current learnables into a new Head.
func (hg *HeadGraph) Weights() (*Head, error) {
	out := hg.head.Clone()
	targets := []*[]float32{&out.W1, &out.B1, &out.W2}
	for i, n := range hg.learnables()[:3] {
		data, err := floats(n.Value())
		if err != nil {
			return nil, errors.Wrap(err, n.Name())
		}
		*targets[i] = append([]float32(nil), data...)
	}

	b2, err := floats(hg.b2.Value())
	if err != nil || len(b2) != 1 {
		return nil, errors.Errorf("unexpected b2 value %v", hg.b2.Value())
	}
	out.B2 = b2[0]
	return out, nil
}

// floats reads a float32 value, scalar or not, as a slice.
func floats(v G.Value) ([]float32, error) {
	if v == nil {
		return nil, errors.New("value not computed")
	}
	switch data := v.Data().(type) {
	case float32:
		return []float32{data}, nil
	case []float32:
		return data, nil
	default:
		return nil, errors.Errorf("unexpected value type %T", data)
	}
}

// Close releases the tape machine.
func (hg *HeadGraph) Close() error {
	return hg.vm.Close()
}

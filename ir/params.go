package ir

// Parameter counting for the driver's summary table. Counts follow the usual
// dense-layer conventions (weights plus bias vectors); a node whose relevant
// dimensions are still symbolic reports zero, since its true count depends on
// the runtime binding.

// Parameters returns the number of trainable parameters this node introduces,
// or 0 for parameterless and symbolic-sized nodes.
func (n *Node) Parameters() int64 {
	features := func() (int64, bool) {
		if len(n.InputTypes) == 0 {
			return 0, false
		}
		dim := n.InputTypes[0].Dim(-1)
		if !dim.IsConcrete() {
			return 0, false
		}
		return int64(dim.Value), true
	}

	switch n.Op {
	case "Dense":
		in, ok := features()
		if !ok {
			return 0
		}
		units := int64(n.Config["units"].Int)
		count := in * units
		if use, found := n.Config["use_bias"]; !found || use.Bool {
			count += units
		}
		return count

	case "Conv2D":
		input := n.InputTypes[0]
		if input.Rank() != 4 || !input.Dim(-1).IsConcrete() {
			return 0
		}
		channels := int64(input.Dim(-1).Value)
		filters := int64(n.Config["filters"].Int)
		kernel := int64(n.Config["kernel_size"].Int)
		return kernel*kernel*channels*filters + filters

	case "MultiHeadAttention":
		// Query, key, value and output projections, each embed x embed with
		// bias.
		embed, ok := features()
		if !ok {
			return 0
		}
		return 4 * (embed*embed + embed)

	case "FeedForward":
		embed, ok := features()
		if !ok {
			return 0
		}
		hidden := int64(n.Config["hidden"].Int)
		return embed*hidden + hidden + hidden*embed + embed

	case "LayerNorm":
		embed, ok := features()
		if !ok {
			return 0
		}
		return 2 * embed

	case "Embedding":
		return int64(n.Config["vocab_size"].Int) * int64(n.Config["dim"].Int)
	}
	return 0
}

// Parameters returns the module's total trainable parameter count. Stacked
// repetitions are separate nodes with separate weights, so the sum already
// accounts for them.
func (m *Module) Parameters() int64 {
	var total int64
	for ii := range m.Nodes {
		total += m.Nodes[ii].Parameters()
	}
	return total
}

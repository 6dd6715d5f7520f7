package fcm

import (
	"fmt"

	"fcmsim/internal/fuzzy"
)

const DefaultDocumentDecay = 0.8

// GraphDocument is the node/link form of a single causal map as exchanged
// with graph editors.
type GraphDocument struct {
	Nodes []DocNode `json:"nodes"`
	Links []DocLink `json:"links"`
}

type DocNode struct {
	ID            int      `json:"id"`
	Label         string   `json:"label"`
	Weight        string   `json:"weight,omitempty"`
	NumericWeight *float64 `json:"numeric_weight,omitempty"`
	Enabled       *bool    `json:"enabled,omitempty"`
}

// Disabled reports whether the node was switched off in the editor. Nodes
// without the flag are enabled.
func (n DocNode) Disabled() bool {
	return n.Enabled != nil && !*n.Enabled
}

type DocLink struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

type DocumentOptions struct {
	Decay       float64
	Steepness   float64
	Squash      string
	ObjectiveID int
	Inference   InferenceOptions
}

// DocumentInference is the converged state of a document graph.
type DocumentInference struct {
	Document GraphDocument
	Result   Result
}

// InferDocument runs one inference loop over doc. Initial activation levels
// come from activation (node id -> term label) and fall back to the node's
// own Weight label; nodes with neither start at zero. Disabled nodes and
// their links take no part in the loop. The returned document is a copy
// annotated with converged levels; disabled nodes come back unannotated.
func InferDocument(doc GraphDocument, activation map[int]string, scale *fuzzy.Scale, opts DocumentOptions) (DocumentInference, error) {
	if len(doc.Nodes) == 0 {
		return DocumentInference{}, fmt.Errorf("%w: document has no nodes", ErrConfiguration)
	}
	// index maps a node id to its graph position, -1 when disabled
	index := make(map[int]int, len(doc.Nodes))
	n := 0
	for _, node := range doc.Nodes {
		if _, dup := index[node.ID]; dup {
			return DocumentInference{}, fmt.Errorf("%w: duplicate node id %d", ErrConfiguration, node.ID)
		}
		if node.Disabled() {
			index[node.ID] = -1
			continue
		}
		index[node.ID] = n
		n++
	}
	for id := range activation {
		pos, ok := index[id]
		if !ok {
			return DocumentInference{}, fmt.Errorf("%w: activation for unknown node %d", ErrConfiguration, id)
		}
		if pos < 0 {
			return DocumentInference{}, fmt.Errorf("%w: activation for disabled node %d", ErrConfiguration, id)
		}
	}

	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
	}
	for _, link := range doc.Links {
		from, ok := index[link.Source]
		if !ok {
			return DocumentInference{}, fmt.Errorf("%w: link source %d is not a node", ErrConfiguration, link.Source)
		}
		to, ok := index[link.Target]
		if !ok {
			return DocumentInference{}, fmt.Errorf("%w: link target %d is not a node", ErrConfiguration, link.Target)
		}
		if from < 0 || to < 0 {
			continue
		}
		weights[from][to] = link.Weight
	}

	objective, ok := index[opts.ObjectiveID]
	if !ok {
		return DocumentInference{}, fmt.Errorf("%w: objective node %d is not a node", ErrConfiguration, opts.ObjectiveID)
	}
	if objective < 0 {
		return DocumentInference{}, fmt.Errorf("%w: objective node %d is disabled", ErrConfiguration, opts.ObjectiveID)
	}
	decay := opts.Decay
	if decay == 0 {
		decay = DefaultDocumentDecay
	}
	graph := Graph{
		Name:           "document",
		Weights:        weights,
		Decay:          decay,
		Steepness:      opts.Steepness,
		ObjectiveIndex: objective,
		Squash:         opts.Squash,
	}
	if err := graph.Validate(); err != nil {
		return DocumentInference{}, err
	}

	initial := make([]float64, n)
	for _, node := range doc.Nodes {
		i := index[node.ID]
		if i < 0 {
			continue
		}
		label, ok := activation[node.ID]
		if !ok {
			if _, err := scale.ValueOf(node.Weight); err != nil {
				continue
			}
			label = node.Weight
		}
		v, err := scale.ValueOf(label)
		if err != nil {
			return DocumentInference{}, fmt.Errorf("node %d: %w", node.ID, err)
		}
		initial[i] = v
	}

	res, err := graph.Infer(initial, opts.Inference)
	if err != nil {
		return DocumentInference{}, err
	}

	out := GraphDocument{
		Nodes: make([]DocNode, len(doc.Nodes)),
		Links: append([]DocLink(nil), doc.Links...),
	}
	for i, node := range doc.Nodes {
		pos := index[node.ID]
		if pos < 0 {
			node.NumericWeight = nil
			out.Nodes[i] = node
			continue
		}
		level := res.Final[pos]
		node.NumericWeight = &level
		node.Weight = scale.TermOf(level).Label
		out.Nodes[i] = node
	}
	return DocumentInference{Document: out, Result: res}, nil
}

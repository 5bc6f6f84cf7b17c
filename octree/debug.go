package octree

import "github.com/golang/geo/r3"

// DebugInfo describes the shape of an octree.
type DebugInfo struct {
	RootCenter  r3.Vector `json:"root_center"`
	RootLength  float64   `json:"root_length"`
	Looseness   float64   `json:"looseness"`
	MinNodeSize float64   `json:"min_node_size"`
	MaxObjects  int       `json:"max_objects"`
	EntityCount int       `json:"entity_count"`
	NodeCount   int       `json:"node_count"`
	LeafCount   int       `json:"leaf_count"`
	MaxDepth    int       `json:"max_depth"`

	// The number of entities stored at each depth, the root being at depth 0.
	EntitiesPerDepth []int `json:"entities_per_depth"`
}

func (t *Octree) DebugInfo() DebugInfo {
	info := DebugInfo{
		RootCenter:  t.root.center,
		RootLength:  t.root.length,
		Looseness:   t.looseness,
		MinNodeSize: t.minNodeSize,
		MaxObjects:  t.maxObjects,
		EntityCount: t.count,
	}
	t.root.collectDebugInfo(&info, 0)
	return info
}

func (n *node) collectDebugInfo(info *DebugInfo, depth int) {
	info.NodeCount++
	if n.isLeaf() {
		info.LeafCount++
	}

	if depth > info.MaxDepth {
		info.MaxDepth = depth
	}

	for len(info.EntitiesPerDepth) <= depth {
		info.EntitiesPerDepth = append(info.EntitiesPerDepth, 0)
	}
	info.EntitiesPerDepth[depth] += len(n.objects)

	for _, c := range n.children {
		c.collectDebugInfo(info, depth+1)
	}
}

// Span hierarchy construction over the ordered identifier tree
// Each span is placed using only its first reference
package tracemodel

import (
	"fmt"
	"sort"

	"github.com/andrewh/tracelens/pkg/tree"
)

// RootID is the value of the synthetic node every top-level span hangs from.
const RootID = "__root__"

// BuildHierarchy lays spans out as a tree of span ids under a synthetic
// RootID node. Span ids must already be unique.
//
// A span becomes the child of the span targeted by its first reference when
// that reference is CHILD_OF and the target exists. Every other span hangs
// from the root. Children are stable-sorted by start time so equal start
// times keep input order.
//
// The returned map holds per-span warnings for first references of an
// unknown type and for parent chains that would loop back on themselves.
func BuildHierarchy(spans []RawSpan) (*tree.Node, map[string][]string) {
	root := tree.New(RootID)
	warnings := make(map[string][]string)

	index := make(map[string]int, len(spans))
	nodes := make([]*tree.Node, len(spans))
	for i := range spans {
		index[spans[i].SpanID] = i
		nodes[i] = tree.New(spans[i].SpanID)
	}

	parents := make([]int, len(spans))
	for i := range parents {
		parents[i] = -1
	}

	for i := range spans {
		refs := spans[i].References
		if len(refs) == 0 {
			continue
		}
		first := refs[0]
		switch first.RefType {
		case RefChildOf:
			p, ok := index[first.SpanID]
			if !ok {
				continue
			}
			if createsCycle(parents, i, p) {
				warnings[spans[i].SpanID] = append(warnings[spans[i].SpanID],
					fmt.Sprintf("reference cycle through %s, attached as root", first.SpanID))
				continue
			}
			parents[i] = p
		case RefFollowsFrom:
		default:
			warnings[spans[i].SpanID] = append(warnings[spans[i].SpanID],
				fmt.Sprintf("unknown reference type %q on first reference, attached as root", first.RefType))
		}
	}

	for i, p := range parents {
		if p < 0 {
			root.AddChild(nodes[i])
			continue
		}
		nodes[p].AddChild(nodes[i])
	}

	root.Walk(func(_ string, node *tree.Node, _ int) bool {
		if len(node.Children) > 1 {
			sort.SliceStable(node.Children, func(a, b int) bool {
				return spans[index[node.Children[a].Value]].StartTime < spans[index[node.Children[b].Value]].StartTime
			})
		}
		return true
	})

	return root, warnings
}

// createsCycle reports whether making p the parent of child would put child
// among its own ancestors.
func createsCycle(parents []int, child, p int) bool {
	for cur := p; cur >= 0; cur = parents[cur] {
		if cur == child {
			return true
		}
	}
	return false
}

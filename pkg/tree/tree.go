// Insertion-ordered n-ary tree over string identifiers
// Used to lay out span hierarchies before records are attached by id
package tree

// Node is one identifier in the tree with its ordered children.
type Node struct {
	Value    string
	Children []*Node
}

// New returns a detached node holding value.
func New(value string) *Node {
	return &Node{Value: value}
}

// AddChild appends child to n and returns n so calls can be chained.
// The child must not already belong to another parent.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return n
}

// AddValue appends a new node holding value and returns the new child.
func (n *Node) AddValue(value string) *Node {
	child := New(value)
	n.Children = append(n.Children, child)
	return child
}

// WalkFunc is called for every visited node. depth is 0 for the node Walk
// was called on. Returning false stops descent into that node's children.
type WalkFunc func(value string, node *Node, depth int) bool

// Walk visits n and its descendants depth-first, parents before children,
// siblings in slice order.
func (n *Node) Walk(fn WalkFunc) {
	// explicit stack so very deep traces cannot exhaust the goroutine stack
	type frame struct {
		node  *Node
		depth int
	}
	stack := []frame{{n, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.node.Value, f.node, f.depth) {
			continue
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
}

// Find returns the first node in walk order whose value equals value.
func (n *Node) Find(value string) *Node {
	return n.FindFunc(func(node *Node) bool { return node.Value == value })
}

// FindFunc returns the first node in walk order matching pred.
func (n *Node) FindFunc(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(_ string, node *Node, _ int) bool {
		if found != nil {
			return false
		}
		if pred(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

// Size counts the nodes in the subtree rooted at n, n included.
func (n *Node) Size() int {
	size := 0
	n.Walk(func(string, *Node, int) bool {
		size++
		return true
	})
	return size
}

// Depth is the number of levels in the subtree rooted at n; a leaf has depth 1.
func (n *Node) Depth() int {
	maxDepth := 0
	n.Walk(func(_ string, _ *Node, depth int) bool {
		if depth+1 > maxDepth {
			maxDepth = depth + 1
		}
		return true
	})
	return maxDepth
}

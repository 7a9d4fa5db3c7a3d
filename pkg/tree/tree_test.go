// Unit tests for the ordered identifier tree
// Covers child append, walk order and depth, lookup, and size
package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample builds:
//
//	root
//	├── a
//	│   ├── a1
//	│   └── a2
//	└── b
//	    └── b1
func sample() *Node {
	root := New("root")
	a := root.AddValue("a")
	a.AddValue("a1")
	a.AddValue("a2")
	root.AddValue("b").AddValue("b1")
	return root
}

func TestNode_AddChild(t *testing.T) {
	root := New("root")
	child := New("child")
	got := root.AddChild(child)

	assert.Same(t, root, got)
	require.Len(t, root.Children, 1)
	assert.Same(t, child, root.Children[0])
}

func TestNode_AddValueKeepsInsertionOrder(t *testing.T) {
	root := New("root")
	root.AddValue("z")
	root.AddValue("a")
	root.AddValue("m")

	var values []string
	for _, c := range root.Children {
		values = append(values, c.Value)
	}
	assert.Equal(t, []string{"z", "a", "m"}, values)
}

func TestNode_WalkOrderAndDepth(t *testing.T) {
	type visit struct {
		value string
		depth int
	}
	var visits []visit
	sample().Walk(func(value string, _ *Node, depth int) bool {
		visits = append(visits, visit{value, depth})
		return true
	})

	assert.Equal(t, []visit{
		{"root", 0},
		{"a", 1},
		{"a1", 2},
		{"a2", 2},
		{"b", 1},
		{"b1", 2},
	}, visits)
}

func TestNode_WalkSkipsChildrenWhenVisitorReturnsFalse(t *testing.T) {
	var values []string
	sample().Walk(func(value string, _ *Node, _ int) bool {
		values = append(values, value)
		return value != "a"
	})
	assert.Equal(t, []string{"root", "a", "b", "b1"}, values)
}

func TestNode_Find(t *testing.T) {
	root := sample()

	found := root.Find("b")
	require.NotNil(t, found)
	assert.Equal(t, "b", found.Value)
	require.Len(t, found.Children, 1)
	assert.Equal(t, "b1", found.Children[0].Value)

	assert.Nil(t, root.Find("missing"))
}

func TestNode_FindFunc(t *testing.T) {
	root := sample()
	twoChildren := func(n *Node) bool { return len(n.Children) == 2 }

	found := root.FindFunc(twoChildren)
	require.NotNil(t, found)
	assert.Equal(t, "root", found.Value, "the receiver is checked before its children")

	found = root.Children[0].FindFunc(twoChildren)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.Value)

	found = root.FindFunc(func(n *Node) bool { return len(n.Children) == 1 })
	require.NotNil(t, found)
	assert.Equal(t, "b", found.Value)

	assert.Nil(t, root.FindFunc(func(n *Node) bool { return len(n.Children) > 2 }))
}

func TestNode_Size(t *testing.T) {
	assert.Equal(t, 1, New("x").Size())
	assert.Equal(t, 6, sample().Size())
	assert.Equal(t, 3, sample().Find("a").Size())
}

func TestNode_Depth(t *testing.T) {
	assert.Equal(t, 1, New("x").Depth())
	assert.Equal(t, 3, sample().Depth())
}

func TestNode_WalkVeryDeepChain(t *testing.T) {
	root := New("0")
	cur := root
	for i := 0; i < 100000; i++ {
		cur = cur.AddValue("n")
	}
	assert.Equal(t, 100001, root.Size())
}

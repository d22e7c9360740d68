package semaphore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/semaphore-aa-vote/util"
)

var (
	// ErrMemberNotFound is returned when a merkle proof is requested for a
	// commitment that is not in the group.
	ErrMemberNotFound = errors.New("member not found in group")
	// ErrInvalidMember is returned when adding a zero or out of field member.
	ErrInvalidMember = errors.New("invalid group member")
)

// Group is a Semaphore group backed by a lean incremental merkle tree: a
// binary tree where a node without a right sibling is carried up unchanged,
// so the depth only grows when the number of leaves needs it.
type Group struct {
	nodes [][]*big.Int
}

// MerkleProof proves the inclusion of Leaf under Root. Index encodes the path:
// bit i set means the node at level i is a right child.
type MerkleProof struct {
	Root     *big.Int
	Leaf     *big.Int
	Index    uint64
	Siblings []*big.Int
}

// NewGroup returns a group with the given members, in order.
func NewGroup(members ...*big.Int) (*Group, error) {
	g := &Group{nodes: [][]*big.Int{{}}}
	if err := g.AddMembers(members...); err != nil {
		return nil, err
	}
	return g, nil
}

// Size returns the number of members.
func (g *Group) Size() int {
	return len(g.nodes[0])
}

// Depth returns the current tree depth.
func (g *Group) Depth() int {
	return len(g.nodes) - 1
}

// Root returns the tree root, zero for an empty group.
func (g *Group) Root() *big.Int {
	top := g.nodes[len(g.nodes)-1]
	if len(top) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(top[0])
}

// Members returns a copy of the leaves.
func (g *Group) Members() []*big.Int {
	members := make([]*big.Int, len(g.nodes[0]))
	for i, m := range g.nodes[0] {
		members[i] = new(big.Int).Set(m)
	}
	return members
}

// IndexOf returns the index of the member or -1 if it is not in the group.
func (g *Group) IndexOf(member *big.Int) int {
	for i, m := range g.nodes[0] {
		if m.Cmp(member) == 0 {
			return i
		}
	}
	return -1
}

// AddMember inserts a new leaf and updates the path to the root.
func (g *Group) AddMember(member *big.Int) error {
	if member == nil || member.Sign() <= 0 || member.Cmp(util.SNARKScalarField) >= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMember, member)
	}
	index := g.Size()
	depth := g.Depth()
	if 1<<depth < index+1 {
		depth++
		g.nodes = append(g.nodes, []*big.Int{})
	}
	node := new(big.Int).Set(member)
	for level := 0; level < depth; level++ {
		g.setNode(level, index, node)
		if index&1 == 1 {
			node = hash2(g.nodes[level][index-1], node)
		}
		index >>= 1
	}
	g.setNode(depth, 0, node)
	return nil
}

func (g *Group) setNode(level, index int, node *big.Int) {
	if index < len(g.nodes[level]) {
		g.nodes[level][index] = node
		return
	}
	g.nodes[level] = append(g.nodes[level], node)
}

// GenerateMerkleProof returns the inclusion proof of the leaf at index.
func (g *Group) GenerateMerkleProof(index int) (*MerkleProof, error) {
	if index < 0 || index >= g.Size() {
		return nil, fmt.Errorf("%w: index %d out of range", ErrMemberNotFound, index)
	}
	leaf := new(big.Int).Set(g.nodes[0][index])
	var siblings []*big.Int
	var path uint64
	for level := 0; level < g.Depth(); level++ {
		isRight := index&1 == 1
		sibling := index ^ 1
		if sibling < len(g.nodes[level]) {
			if isRight {
				path |= 1 << len(siblings)
			}
			siblings = append(siblings, new(big.Int).Set(g.nodes[level][sibling]))
		}
		index >>= 1
	}
	return &MerkleProof{
		Root:     g.Root(),
		Leaf:     leaf,
		Index:    path,
		Siblings: siblings,
	}, nil
}

// MemberProof returns the inclusion proof of a commitment.
func (g *Group) MemberProof(commitment *big.Int) (*MerkleProof, error) {
	i := g.IndexOf(commitment)
	if i < 0 {
		return nil, ErrMemberNotFound
	}
	return g.GenerateMerkleProof(i)
}

// Verify recomputes the root from the leaf and the siblings.
func (p *MerkleProof) Verify() bool {
	if p == nil || p.Leaf == nil || p.Root == nil {
		return false
	}
	node := p.Leaf
	for i, sibling := range p.Siblings {
		if (p.Index>>i)&1 == 1 {
			node = hash2(sibling, node)
		} else {
			node = hash2(node, sibling)
		}
	}
	return node.Cmp(p.Root) == 0
}

// AddMembers inserts the members in order, stopping at the first invalid one.
func (g *Group) AddMembers(members ...*big.Int) error {
	for _, m := range members {
		if err := g.AddMember(m); err != nil {
			return err
		}
	}
	return nil
}

// VerifyMerkleProof checks the proof against the current root of the group.
func (g *Group) VerifyMerkleProof(p *MerkleProof) bool {
	return p != nil && p.Root != nil && p.Root.Cmp(g.Root()) == 0 && p.Verify()
}

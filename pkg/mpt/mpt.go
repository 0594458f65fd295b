// Package mpt implements the Merkle-Patricia trie used by the ledger to
// commit storage state to a single UInt256 root per block, with
// Branch/Extension/Leaf/HashNode nodes and logarithmic inclusion proofs.
package mpt

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neonium/neond/pkg/util"
)

// ErrNotFound is returned by Get when no value is committed for a key.
var ErrNotFound = errors.New("mpt: key not found")

// nodeKind tags the four node shapes.
type nodeKind uint8

const (
	kindBranch nodeKind = iota
	kindExtension
	kindLeaf
	kindHash
)

// node is the in-memory representation of a single trie node. Only the
// fields relevant to its kind are populated.
type node struct {
	kind     nodeKind
	children [17]*node // kindBranch: 16 nibble edges + value slot at [16]
	path     []byte    // kindExtension: nibble path; kindLeaf: unused
	next     *node     // kindExtension: child
	value    []byte    // kindLeaf/value slot: stored bytes
	hash     *util.UInt256
}

// Trie is an in-memory Merkle-Patricia trie; it reads and writes no
// key/value store. Root() records the root node in an LRU keyed by node
// hash.
type Trie struct {
	root  *node
	nodes *lru.Cache[util.UInt256, *node]
}

// New creates an empty trie backed by an LRU node cache of the given size.
func New(cacheSize int) (*Trie, error) {
	c, err := lru.New[util.UInt256, *node](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Trie{nodes: c}, nil
}

// toNibbles expands each byte of key into two 4-bit nibbles, the trie's
// traversal unit.
func toNibbles(key []byte) []byte {
	out := make([]byte, 0, len(key)*2)
	for _, b := range key {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

// Put inserts or updates the value for key.
func (t *Trie) Put(key, value []byte) {
	path := toNibbles(key)
	t.root = t.put(t.root, path, value)
}

func (t *Trie) put(n *node, path, value []byte) *node {
	if n == nil {
		if len(path) == 0 {
			return &node{kind: kindLeaf, value: value}
		}
		return &node{kind: kindExtension, path: path, next: &node{kind: kindLeaf, value: value}}
	}
	switch n.kind {
	case kindLeaf:
		if len(path) == 0 {
			return &node{kind: kindLeaf, value: value}
		}
		br := &node{kind: kindBranch}
		br.children[16] = &node{kind: kindLeaf, value: n.value}
		br.children[path[0]] = t.put(nil, path[1:], value)
		return br
	case kindExtension:
		return t.putExtension(n, path, value)
	case kindBranch:
		br := &node{kind: kindBranch, children: n.children}
		if len(path) == 0 {
			br.children[16] = &node{kind: kindLeaf, value: value}
			return br
		}
		br.children[path[0]] = t.put(n.children[path[0]], path[1:], value)
		return br
	default:
		return n
	}
}

func (t *Trie) putExtension(n *node, path, value []byte) *node {
	common := commonPrefixLen(n.path, path)
	if common == len(n.path) {
		return &node{kind: kindExtension, path: n.path, next: t.put(n.next, path[common:], value)}
	}
	// Diverging prefix: split into a branch.
	br := &node{kind: kindBranch}
	var tailChild *node
	if common+1 <= len(n.path) {
		rem := n.path[common+1:]
		if len(rem) == 0 {
			tailChild = n.next
		} else {
			tailChild = &node{kind: kindExtension, path: rem, next: n.next}
		}
		br.children[n.path[common]] = tailChild
	}
	if common < len(path) {
		br.children[path[common]] = t.put(nil, path[common+1:], value)
	} else {
		br.children[16] = &node{kind: kindLeaf, value: value}
	}
	if common == 0 {
		return br
	}
	return &node{kind: kindExtension, path: n.path[:common], next: br}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Get retrieves the value committed for key, or ErrNotFound.
func (t *Trie) Get(key []byte) ([]byte, error) {
	path := toNibbles(key)
	n := t.root
	for {
		if n == nil {
			return nil, ErrNotFound
		}
		switch n.kind {
		case kindLeaf:
			if len(path) == 0 {
				return n.value, nil
			}
			return nil, ErrNotFound
		case kindExtension:
			if len(path) < len(n.path) || string(path[:len(n.path)]) != string(n.path) {
				return nil, ErrNotFound
			}
			path = path[len(n.path):]
			n = n.next
		case kindBranch:
			if len(path) == 0 {
				if n.children[16] == nil {
					return nil, ErrNotFound
				}
				return n.children[16].value, nil
			}
			n = n.children[path[0]]
			path = path[1:]
		default:
			return nil, ErrNotFound
		}
	}
}

// Delete removes key from the trie if present; absence is not an error.
func (t *Trie) Delete(key []byte) {
	path := toNibbles(key)
	t.root = deleteNode(t.root, path)
}

func deleteNode(n *node, path []byte) *node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case kindLeaf:
		if len(path) == 0 {
			return nil
		}
		return n
	case kindExtension:
		if len(path) < len(n.path) || string(path[:len(n.path)]) != string(n.path) {
			return n
		}
		child := deleteNode(n.next, path[len(n.path):])
		if child == nil {
			return nil
		}
		return &node{kind: kindExtension, path: n.path, next: child}
	case kindBranch:
		br := &node{kind: kindBranch, children: n.children}
		if len(path) == 0 {
			br.children[16] = nil
		} else {
			br.children[path[0]] = deleteNode(n.children[path[0]], path[1:])
		}
		return br
	default:
		return n
	}
}

// Root computes the UInt256 commitment for the current trie contents and
// adds the root node to the node cache under that hash. Child nodes are
// hashed but not cached, so NodeByHash resolves root hashes only.
func (t *Trie) Root() util.UInt256 {
	h, _ := t.hashNodeCached(t.root)
	return h
}

// NodeByHash returns the cached node for a hash that Root() produced, or
// false if that hash is not (or is no longer) in the LRU.
func (t *Trie) NodeByHash(h util.UInt256) (*node, bool) {
	return t.nodes.Get(h)
}

func (t *Trie) hashNodeCached(n *node) (util.UInt256, []byte) {
	if n == nil {
		return util.UInt256{}, nil
	}
	h, preimage := hashNode(n)
	t.nodes.Add(h, n)
	return h, preimage
}

func hashNode(n *node) (util.UInt256, []byte) {
	if n == nil {
		return util.UInt256{}, nil
	}
	var preimage []byte
	switch n.kind {
	case kindLeaf:
		preimage = append([]byte{byte(kindLeaf)}, n.value...)
	case kindExtension:
		childHash, _ := hashNode(n.next)
		preimage = append([]byte{byte(kindExtension)}, n.path...)
		preimage = append(preimage, childHash[:]...)
	case kindBranch:
		preimage = []byte{byte(kindBranch)}
		for _, c := range n.children {
			ch, _ := hashNode(c)
			preimage = append(preimage, ch[:]...)
		}
	}
	h := util.Hash256(preimage)
	return h, preimage
}

// GetProof returns the ordered list of node preimages whose hash chain
// resolves key to its committed value.
func (t *Trie) GetProof(key []byte) ([][]byte, error) {
	path := toNibbles(key)
	n := t.root
	var proof [][]byte
	for {
		if n == nil {
			return nil, ErrNotFound
		}
		_, preimage := hashNode(n)
		proof = append(proof, preimage)
		switch n.kind {
		case kindLeaf:
			if len(path) != 0 {
				return nil, ErrNotFound
			}
			return proof, nil
		case kindExtension:
			if len(path) < len(n.path) || string(path[:len(n.path)]) != string(n.path) {
				return nil, ErrNotFound
			}
			path = path[len(n.path):]
			n = n.next
		case kindBranch:
			if len(path) == 0 {
				if n.children[16] == nil {
					return nil, ErrNotFound
				}
				n = n.children[16]
				continue
			}
			next := n.children[path[0]]
			path = path[1:]
			n = next
		default:
			return nil, ErrNotFound
		}
	}
}

// VerifyProof checks that proof is a valid hash chain from root to a leaf
// holding value, independent of any live Trie instance — the property
// a light client needs: the proof stands alone against a trusted root.
// Each proof element is a node preimage; the verifier re-derives every
// hash and follows the key's nibble path through branch and extension
// nodes, so a single altered byte anywhere in the chain fails the check.
func VerifyProof(root util.UInt256, key, value []byte, proof [][]byte) bool {
	path := toNibbles(key)
	expected := root
	for i, preimage := range proof {
		if util.Hash256(preimage) != expected {
			return false
		}
		if len(preimage) < 1 {
			return false
		}
		last := i == len(proof)-1
		switch nodeKind(preimage[0]) {
		case kindLeaf:
			return last && len(path) == 0 && string(preimage[1:]) == string(value)
		case kindExtension:
			// tag ++ nibble path ++ 32-byte child hash
			if last || len(preimage) < 1+util.UInt256Size {
				return false
			}
			nodePath := preimage[1 : len(preimage)-util.UInt256Size]
			if len(path) < len(nodePath) || string(path[:len(nodePath)]) != string(nodePath) {
				return false
			}
			path = path[len(nodePath):]
			h, err := util.Uint256FromBytes(preimage[len(preimage)-util.UInt256Size:])
			if err != nil {
				return false
			}
			expected = h
		case kindBranch:
			// tag ++ 17 fixed-width child hashes
			if last || len(preimage) != 1+17*util.UInt256Size {
				return false
			}
			slot := 16
			if len(path) > 0 {
				slot = int(path[0])
				if slot > 15 {
					return false
				}
				path = path[1:]
			}
			off := 1 + slot*util.UInt256Size
			h, err := util.Uint256FromBytes(preimage[off : off+util.UInt256Size])
			if err != nil {
				return false
			}
			expected = h
		default:
			return false
		}
	}
	return false
}

package crypto

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidMerkleProof = errors.New("invalid merkle proof")
	ErrEmptyMerkleTree    = errors.New("merkle tree has no leaves")
	ErrLeafNotFound       = errors.New("leaf not in merkle tree")
)

// AllowlistLeaf builds the leaf for account, matching abi.encodePacked(address, uint256).
// A nil assetID yields keccak256(address) for allowlists that are not bound to an asset.
func AllowlistLeaf(account common.Address, assetID *big.Int) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(account.Bytes())
	if assetID != nil {
		var word [32]byte
		assetID.FillBytes(word[:])
		h.Write(word[:])
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// hashPair hashes two nodes in ascending byte order, so proofs carry no position bits.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(a[:])
	h.Write(b[:])
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// ProcessProof folds proof into leaf and returns the implied root.
func ProcessProof(proof []common.Hash, leaf common.Hash) common.Hash {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed
}

func VerifyProof(proof []common.Hash, root, leaf common.Hash) bool {
	return ProcessProof(proof, leaf) == root
}

// MerkleTree is a sorted-pair keccak tree. Leaves are deduplicated and sorted before
// building so the same set always produces the same root.
type MerkleTree struct {
	layers [][]common.Hash
}

func NewMerkleTree(leaves []common.Hash) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyMerkleTree
	}

	level := make([]common.Hash, 0, len(leaves))
	seen := make(map[common.Hash]struct{}, len(leaves))
	for _, l := range leaves {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		level = append(level, l)
	}
	sort.Slice(level, func(i, j int) bool {
		return bytes.Compare(level[i][:], level[j][:]) < 0
	})

	t := &MerkleTree{layers: [][]common.Hash{level}}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd node is promoted unchanged
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		t.layers = append(t.layers, next)
		level = next
	}
	return t, nil
}

func (t *MerkleTree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Proof returns the sibling path for leaf, bottom-up.
func (t *MerkleTree) Proof(leaf common.Hash) ([]common.Hash, error) {
	idx := -1
	for i, l := range t.layers[0] {
		if l == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrLeafNotFound
	}

	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

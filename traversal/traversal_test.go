package traversal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verifiable-state-chains/merklesig/merkle"
	"github.com/verifiable-state-chains/merklesig/sponge"
)

func leafFn(h sponge.Hash) LeafFunc {
	return func(leaf uint32) []byte {
		return h.Sum([]byte(fmt.Sprintf("leaf-%d", leaf)))
	}
}

func TestMatchesCompleteTree(t *testing.T) {
	for _, h := range []sponge.Hash{sponge.SHAKE256, sponge.BLAKE2bXOF} {
		for depth := uint32(1); depth <= 4; depth++ {
			n := 1 << depth
			fn := leafFn(h)

			leaves := make([][]byte, n)
			for i := range leaves {
				leaves[i] = fn(uint32(i))
			}
			tree, err := merkle.Build(h, leaves)
			require.NoError(t, err)

			tr, err := New(h, depth, fn)
			require.NoError(t, err)
			require.Equal(t, tree.Root(), tr.Root(), "depth=%d", depth)

			for leaf := uint32(0); leaf < uint32(n); leaf++ {
				want, err := tree.AuthPath(leaf)
				require.NoError(t, err)
				got, err := tr.AuthPath(leaf)
				require.NoError(t, err)
				require.Equal(t, want, got, "hash=%s depth=%d leaf=%d", h, depth, leaf)
			}
		}
	}
}

func TestPathsReconstructRoot(t *testing.T) {
	h := sponge.SHAKE256
	depth := uint32(3)
	fn := leafFn(h)

	tr, err := New(h, depth, fn)
	require.NoError(t, err)

	for leaf := uint32(0); leaf < 1<<depth; leaf++ {
		path, err := tr.AuthPath(leaf)
		require.NoError(t, err)
		require.Equal(t, tr.Root(), merkle.Fold(h, fn(leaf), leaf, path), "leaf=%d", leaf)
	}
}

func TestSequentialConsumption(t *testing.T) {
	tr, err := New(sponge.SHAKE256, 2, leafFn(sponge.SHAKE256))
	require.NoError(t, err)
	require.Equal(t, uint32(0), tr.NextIndex())

	_, err = tr.AuthPath(1)
	require.Error(t, err, "out-of-order request must fail")

	_, err = tr.AuthPath(0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), tr.NextIndex())
}

func TestExhaustion(t *testing.T) {
	depth := uint32(2)
	tr, err := New(sponge.SHAKE256, depth, leafFn(sponge.SHAKE256))
	require.NoError(t, err)

	for leaf := uint32(0); leaf < 1<<depth; leaf++ {
		_, err := tr.AuthPath(leaf)
		require.NoError(t, err)
	}
	_, err = tr.AuthPath(1 << depth)
	require.Error(t, err)
}

func TestLeafFuncStaysInRange(t *testing.T) {
	depth := uint32(3)
	max := uint32(1) << depth
	fn := leafFn(sponge.SHAKE256)
	checked := func(leaf uint32) []byte {
		if leaf >= max {
			t.Fatalf("leaf function called with out-of-range index %d", leaf)
		}
		return fn(leaf)
	}

	tr, err := New(sponge.SHAKE256, depth, checked)
	require.NoError(t, err)
	for leaf := uint32(0); leaf < max; leaf++ {
		_, err := tr.AuthPath(leaf)
		require.NoError(t, err)
	}
}

func TestDepthValidation(t *testing.T) {
	_, err := New(sponge.SHAKE256, 0, leafFn(sponge.SHAKE256))
	require.Error(t, err)
	_, err = New(sponge.SHAKE256, 32, leafFn(sponge.SHAKE256))
	require.Error(t, err)
}

package alloc

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holmberd/go-alloc/internal/testutils"
)

// testConfig returns the default config with logs discarded during testing.
func testConfig() Config {
	c := DefaultConfig()
	c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return c
}

func newTestArena(t *testing.T) (*Arena[*testutils.MockPagePool], *testutils.MockPagePool) {
	t.Helper()
	pool := &testutils.MockPagePool{}
	a, err := CustomArena(pool, testConfig())
	require.NoError(t, err)
	return a, pool
}

func newTestBucket(t *testing.T) (*Bucket[*testutils.MockPagePool], *testutils.MockPagePool) {
	t.Helper()
	pool := &testutils.MockPagePool{}
	b, err := CustomBucket(pool, testConfig())
	require.NoError(t, err)
	return b, pool
}

// requirePanicsIs asserts that fn panics with an error matching target.
func requirePanicsIs(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic matching %v", target)
		err, ok := r.(error)
		require.True(t, ok, "expected panic value to be an error, got %T", r)
		require.ErrorIs(t, err, target)
	}()
	fn()
}

// randomSizes returns n request sizes in [1, max].
// If a test fails, the seed is logged so that the exact sequence can be reproduced.
func randomSizes(t *testing.T, seed int64, n, max int) []int {
	t.Helper()
	t.Logf("Using random seed: %d", seed)
	r := rand.New(rand.NewSource(seed))
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = 1 + r.Intn(max)
	}
	return sizes
}

// requireNoOverlap asserts that no two blocks share a byte.
func requireNoOverlap(t *testing.T, blocks []Block) {
	t.Helper()
	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			require.False(t, blocks[i].Overlaps(blocks[j]),
				"block %d [%#x, %#x) overlaps block %d [%#x, %#x)",
				i, blocks[i].Addr(), blocks[i].End(), j, blocks[j].Addr(), blocks[j].End())
		}
	}
}

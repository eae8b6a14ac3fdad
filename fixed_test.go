package alloc

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFixedRegion(t *testing.T, size int) (*FixedRegion, []byte) {
	t.Helper()
	buf := bytes.Repeat([]byte{Sentinel}, size)
	f, err := CustomFixedRegion(buf, testConfig())
	require.NoError(t, err)
	return f, buf
}

func bufAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestFixedRegionScenario(t *testing.T) {
	f, buf := newTestFixedRegion(t, 1000)
	base := bufAddr(buf)

	str1, err := f.Allocate(20)
	require.NoError(t, err)
	assert.Equal(t, 24, str1.Size, "size is rounded to the alignment")
	assert.Equal(t, base+FixedHeaderSize, str1.Addr(), "first block starts past the header")
	copy(str1.Bytes(), "aaaaaaaaaaaaaaaaaaa\x00")
	assert.Equal(t, Sentinel, buf[FixedHeaderSize+20], "bytes past the copy are untouched")

	str2, err := f.Allocate(11)
	require.NoError(t, err)
	assert.Equal(t, str1.Addr()+24, str2.Addr())
	assert.Equal(t, 16, str2.Size)

	before := str1
	assert.False(t, f.TryResize(&str1, 1), "only the last allocation can resize")
	assert.Equal(t, before, str1)

	copy(str2.Bytes(), "xxxxxxxxxx\x00")
	assert.True(t, f.TryResize(&str2, 5))
	assert.Equal(t, 8, str2.Size)
	assert.Equal(t, int(str2.Addr()-base)+8, f.Cursor())

	str3, err := f.Allocate(2)
	require.NoError(t, err)
	assert.Equal(t, str2.Addr()+8, str3.Addr(), "lands right after the resized block")
	assert.Equal(t, int(str3.Addr()-base)+8, f.Cursor())
	assert.Equal(t, []byte("aaaaaaaaaaaaaaaaaaa\x00"), str1.Bytes()[:20], "earlier blocks keep their bytes")
	require.NoError(t, f.Validate())
}

func TestFixedRegionOutOfSpace(t *testing.T) {
	f, _ := newTestFixedRegion(t, FixedHeaderSize+32)

	b, err := f.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, 32, b.Size)

	cursor := f.Cursor()
	b, err = f.Allocate(1)
	require.ErrorIs(t, err, ErrOutOfSpace)
	assert.True(t, b.IsZero())
	assert.Equal(t, cursor, f.Cursor(), "failed allocation must not move the cursor")
}

func TestFixedRegionInvalidSize(t *testing.T) {
	f, _ := newTestFixedRegion(t, 8192)
	for _, size := range []int{0, -1, PageSize + 1} {
		requirePanicsIs(t, ErrInvalidSize, func() { f.Allocate(size) })
	}
	b, err := f.Allocate(PageSize)
	require.NoError(t, err, "a full page request is valid")
	assert.Equal(t, PageSize, b.Size)
}

func TestNewFixedRegion(t *testing.T) {
	t.Run("Buffer too small for the header", func(t *testing.T) {
		_, err := NewFixedRegion(make([]byte, FixedHeaderSize-1))
		require.ErrorIs(t, err, ErrBufferTooSmall)
	})

	t.Run("Buffer holding only the header", func(t *testing.T) {
		f, err := CustomFixedRegion(make([]byte, FixedHeaderSize), testConfig())
		require.NoError(t, err)
		_, err = f.Allocate(1)
		require.ErrorIs(t, err, ErrOutOfSpace)
	})

	t.Run("Nil logger", func(t *testing.T) {
		_, err := CustomFixedRegion(make([]byte, 64), Config{})
		require.Error(t, err)
	})

	t.Run("Capacity and cursor", func(t *testing.T) {
		f, _ := newTestFixedRegion(t, 100)
		assert.Equal(t, 100, f.Capacity())
		assert.Equal(t, FixedHeaderSize, f.Cursor())
	})
}

func TestFixedRegionTryResize(t *testing.T) {
	t.Run("Grow last allocation", func(t *testing.T) {
		f, _ := newTestFixedRegion(t, 128)
		b, _ := f.Allocate(8)
		assert.True(t, f.TryResize(&b, 30))
		assert.Equal(t, 32, b.Size)
		assert.Equal(t, FixedHeaderSize+32, f.Cursor())
	})

	t.Run("Grow past the end is rejected", func(t *testing.T) {
		f, _ := newTestFixedRegion(t, 64)
		b, _ := f.Allocate(8)
		cursor := f.Cursor()
		assert.False(t, f.TryResize(&b, 64))
		assert.Equal(t, 8, b.Size)
		assert.Equal(t, cursor, f.Cursor())
	})

	t.Run("Invalid sizes are rejected", func(t *testing.T) {
		f, _ := newTestFixedRegion(t, 64)
		b, _ := f.Allocate(8)
		assert.False(t, f.TryResize(&b, 0))
		assert.False(t, f.TryResize(&b, -8))
		assert.False(t, f.TryResize(&b, PageSize+1))
		assert.False(t, f.TryResize(nil, 8))
	})

	t.Run("Foreign block is rejected", func(t *testing.T) {
		f, _ := newTestFixedRegion(t, 64)
		other, _ := newTestFixedRegion(t, 64)
		f.Allocate(8)
		b, _ := other.Allocate(8)
		assert.False(t, f.TryResize(&b, 16))
	})
}

func TestFixedRegionRelease(t *testing.T) {
	f, _ := newTestFixedRegion(t, 64)
	b, _ := f.Allocate(8)
	copy(b.Bytes(), "abc")
	cursor := f.Cursor()
	f.Release(b)
	assert.Equal(t, cursor, f.Cursor(), "release is a no-op")
	assert.Equal(t, []byte("abc"), b.Bytes()[:3])
}

func TestFixedRegionReset(t *testing.T) {
	f, _ := newTestFixedRegion(t, 64)
	b1, _ := f.Allocate(16)
	f.Reset()
	assert.Equal(t, FixedHeaderSize, f.Cursor())
	b2, _ := f.Allocate(16)
	assert.Equal(t, b1.Addr(), b2.Addr())
}

func TestFixedRegionNonOverlap(t *testing.T) {
	f, _ := newTestFixedRegion(t, 1<<16)
	var blocks []Block
	for _, size := range randomSizes(t, 1, 200, 300) {
		b, err := f.Allocate(size)
		require.NoError(t, err)
		assert.Equal(t, (size+7)&^7, b.Size)
		assert.Zero(t, b.Addr()%Alignment)
		if n := len(blocks); n > 0 {
			assert.GreaterOrEqual(t, b.Addr(), blocks[n-1].End())
		}
		blocks = append(blocks, b)
	}
	requireNoOverlap(t, blocks)
}

func TestFixedRegionValidate(t *testing.T) {
	f, buf := newTestFixedRegion(t, 64)
	require.NoError(t, f.Validate())
	buf[0] ^= 0xFF
	require.ErrorIs(t, f.Validate(), ErrCorrupted)
}

func TestFixedRegionMisalignedBuffer(t *testing.T) {
	buf := make([]byte, 128)
	_, err := NewFixedRegion(buf[3:])
	require.ErrorIs(t, err, ErrBufferMisaligned)
}

package archive

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFraming(t *testing.T) {
	stream := appendHeader(nil)
	stream = appendRecord(stream, kindObject, "obj1", []byte{1, 2, 3})
	stream = appendRecord(stream, kindArray, "arr1", nil)

	rest, err := checkHeader(stream)
	require.NoError(t, err)

	kind, name, body, rest, err := nextRecord(rest)
	require.NoError(t, err)
	assert.Equal(t, kindObject, kind)
	assert.Equal(t, "obj1", name)
	assert.Equal(t, []byte{1, 2, 3}, body)

	kind, name, body, rest, err = nextRecord(rest)
	require.NoError(t, err)
	assert.Equal(t, kindArray, kind)
	assert.Equal(t, "arr1", name)
	assert.Empty(t, body)
	assert.Empty(t, rest)
}

func TestHeaderValidation(t *testing.T) {
	_, err := checkHeader([]byte{1, 2})
	assert.Error(t, err)

	bad := appendHeader(nil)
	bad[0] ^= 0xff
	_, err = checkHeader(bad)
	assert.Error(t, err)
}

func TestVersionWindow(t *testing.T) {
	old := appendHeader(nil)
	binary.LittleEndian.PutUint32(old[5:], 1)
	_, err := checkHeader(old)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint32(1), verr.Version)
	assert.Contains(t, verr.Error(), "unsupported")

	future := appendHeader(nil)
	binary.LittleEndian.PutUint32(future[5:], streamVersion+5)
	_, err = checkHeader(future)
	assert.Error(t, err)
}

func TestTruncatedRecord(t *testing.T) {
	stream := appendHeader(nil)
	stream = appendRecord(stream, kindArray, "a", []byte{9, 9, 9})
	rest, err := checkHeader(stream)
	require.NoError(t, err)

	_, _, _, _, err = nextRecord(rest[:len(rest)-1])
	assert.Error(t, err)
}

func TestPrimitiveBuf(t *testing.T) {
	var w buf
	w.U8(7)
	w.Bool(true)
	w.U32(1 << 20)
	w.I32(-5)
	w.U64(1 << 40)
	w.F64(3.5)
	w.String("name")
	w.Bytes([]byte{1, 2})

	r := rbuf{b: w.b}
	assert.Equal(t, uint8(7), r.U8("u8"))
	assert.True(t, r.Bool("bool"))
	assert.Equal(t, uint32(1<<20), r.U32("u32"))
	assert.Equal(t, int32(-5), r.I32("i32"))
	assert.Equal(t, uint64(1<<40), r.U64("u64"))
	assert.Equal(t, 3.5, r.F64("f64"))
	assert.Equal(t, "name", r.String("string"))
	assert.Equal(t, []byte{1, 2}, r.Bytes("bytes"))
	require.NoError(t, r.err)

	// Reads past the end stick the first failure.
	r.U64("past end")
	assert.Error(t, r.err)
}

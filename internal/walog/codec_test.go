package walog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWrite(t *testing.T) {
	r := Record{Kind: KindWrite, Key: []byte("k1"), Value: []byte("v1")}
	buf := Encode(nil, r)
	out, n, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "k1", string(out.Key))
	require.Equal(t, "v1", string(out.Value))
}

func TestEncodeDecodeWriteCksum(t *testing.T) {
	r := Record{Kind: KindWriteCksum, Key: []byte("k"), Value: []byte("v"), Cksum: 0xDEADBEEFCAFE}
	buf := Encode(nil, r)
	out, _, err := Decode(buf, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0xDEADBEEFCAFE, out.Cksum)
	require.Equal(t, "k", string(out.Key))
}

func TestEncodeDecodeDelete(t *testing.T) {
	r := Record{Kind: KindDelete, Key: []byte("gone")}
	buf := Encode(nil, r)
	out, _, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "gone", string(out.Key))
}

func TestEncodeDecodeDRange(t *testing.T) {
	r := Record{Kind: KindDRange, Key: []byte("a"), Hi: []byte("z")}
	buf := Encode(nil, r)
	out, _, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "a", string(out.Key))
	require.Equal(t, "z", string(out.Hi))
}

func TestEncodeDecodeCommit(t *testing.T) {
	r := Record{Kind: KindCommit, Cksum: 123456789}
	buf := Encode(nil, r)
	out, n, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.EqualValues(t, 123456789, out.Cksum)
}

func TestMultipleRecordsBackToBack(t *testing.T) {
	var buf []byte
	buf = Encode(buf, Record{Kind: KindWrite, Key: []byte("a"), Value: []byte("1")})
	buf = Encode(buf, Record{Kind: KindDelete, Key: []byte("b")})
	buf = Encode(buf, Record{Kind: KindCommit, Cksum: 7})

	r1, n1, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, KindWrite, r1.Kind)

	r2, n2, err := Decode(buf, n1)
	require.NoError(t, err)
	require.Equal(t, KindDelete, r2.Kind)

	r3, n3, err := Decode(buf, n2)
	require.NoError(t, err)
	require.Equal(t, KindCommit, r3.Kind)
	require.Equal(t, len(buf), n3)
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	buf := Encode(nil, Record{Kind: KindWrite, Key: []byte("key"), Value: []byte("value")})
	_, _, err := Decode(buf[:len(buf)-2], 0)
	require.Error(t, err)
}

package walog

import "testing"

func TestChecksumIncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, thirteen")
	want := Checksum(data)

	var st ChecksumState
	st.Absorb(data[:5])
	st.Absorb(data[5:20])
	st.Absorb(data[20:])
	got := st.Finish()

	if got != want {
		t.Fatalf("incremental checksum %x != one-shot %x", got, want)
	}
}

func TestChecksumEmptyIsZero(t *testing.T) {
	if Checksum(nil) != 0 {
		t.Fatalf("checksum of empty input should be 0")
	}
}

func TestChecksumDiffersOnSingleByteFlip(t *testing.T) {
	a := []byte("identical bytes except one flip at the end.")
	b := append([]byte(nil), a...)
	b[len(b)-1] ^= 0x01
	if Checksum(a) == Checksum(b) {
		t.Fatalf("checksum should change when input changes")
	}
}

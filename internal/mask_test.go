package internal

import (
	"bytes"
	"encoding/base64"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"pgregory.net/rapid"
)

func TestMask(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	initial := []byte("Hello")

	masked := MaskCopy(initial, key)
	assert.Check(t, is.DeepEqual(masked, []byte{0x5A, 0x51, 0x3A, 0x14, 0x7D}))
	assert.Check(t, is.DeepEqual(initial, []byte("Hello")), "source must not be modified")

	Mask(masked, masked, key, 0)
	assert.Check(t, is.DeepEqual(masked, initial))
}

func TestMaskOffset(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	data := []byte{0, 0, 0, 0, 0, 0, 0}

	whole := MaskCopy(data, key)

	split := make([]byte, len(data))
	next := Mask(split[:3], data[:3], key, 0)
	assert.Equal(t, next, 3)
	next = Mask(split[3:], data[3:], key, next)
	assert.Equal(t, next, 3)

	assert.Check(t, is.DeepEqual(split, whole))
}

func TestMaskInvolution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload")
		var key [4]byte
		copy(key[:], rapid.SliceOfN(rapid.Byte(), 4, 4).Draw(t, "key"))

		twice := MaskCopy(MaskCopy(payload, key), key)
		if !bytes.Equal(twice, payload) {
			t.Fatalf("masking twice with %v changed payload: %v != %v", key, twice, payload)
		}
	})
}

func TestNewChallengeKey(t *testing.T) {
	r := bytes.NewReader(bytes.Repeat([]byte{0xAB}, 16))

	key, err := NewChallengeKey(r)
	assert.NilError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(key)
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(decoded, bytes.Repeat([]byte{0xAB}, 16)))
}

func TestNewChallengeKeyShortSource(t *testing.T) {
	_, err := NewChallengeKey(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorContains(t, err, "challenge key")
}

func TestNewMaskingKey(t *testing.T) {
	key, err := NewMaskingKey(bytes.NewReader([]byte{9, 8, 7, 6, 5}))
	assert.NilError(t, err)
	assert.Equal(t, key, [4]byte{9, 8, 7, 6})

	key, err = NewMaskingKey(nil)
	assert.NilError(t, err)
	_ = key
}

package types

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawCID(t *testing.T, data string) CID {
	t.Helper()
	sum, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return CID(cid.NewCidV1(cid.Raw, sum).String())
}

func TestCID_Decode(t *testing.T) {
	tests := []struct {
		name   string
		input  CID
		wantOK bool
	}{
		{
			name:   "CIDv1 raw",
			input:  rawCID(t, "hello world"),
			wantOK: true,
		},
		{
			name:   "Opaque short id",
			input:  CID("Qm1"),
			wantOK: false,
		},
		{
			name:   "Empty",
			input:  CID(""),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.input.Decode()
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCID_IsZero(t *testing.T) {
	assert.True(t, CID("").IsZero())
	assert.True(t, CID("   ").IsZero())
	assert.False(t, CID("Qm1").IsZero())
}

func TestAddress_Normalize(t *testing.T) {
	assert.Equal(t, Address("0xabc"), Address(" 0xABC ").Normalize())
	assert.True(t, Address("").IsZero())
}

func TestFileKind_Normalize(t *testing.T) {
	assert.Equal(t, FileKind("png"), FileKind(".PNG").Normalize())
	assert.Equal(t, FileKind("mp4"), FileKind("mp4").Normalize())
}

func TestOctas_APT(t *testing.T) {
	assert.Equal(t, "APT 5", Octas(500000000).APT())
	assert.Equal(t, "APT 0.02", Octas(2000000).APT())
	assert.Equal(t, "APT 1.5", Octas(150000000).APT())
	assert.True(t, Octas(0).IsZero())
}

func TestNodeRole(t *testing.T) {
	role, err := ParseNodeRole("Distributor")
	require.NoError(t, err)
	assert.True(t, role.CanProvide())
	assert.True(t, role.CanDistribute())

	consumer, err := ParseNodeRole("consumer")
	require.NoError(t, err)
	assert.False(t, consumer.CanProvide())
	assert.True(t, consumer.CanConsume())

	_, err = ParseNodeRole("validator")
	assert.Error(t, err)
}

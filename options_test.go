package tftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsAcceptsInRangeValues(t *testing.T) {
	set, err := ParseOptions(map[string]string{
		"blksize": "1024",
		"timeout": "10",
		"tsize":   "2048",
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), set.Blocksize())
	assert.Equal(t, uint8(10), set.Timeout())
	assert.Equal(t, uint32(2048), set.TransferSize())
}

func TestParseOptionsRejectsBlocksizeOutOfRange(t *testing.T) {
	_, err := ParseOptions(map[string]string{"blksize": "4"})
	require.Error(t, err)

	_, err = ParseOptions(map[string]string{"blksize": "65465"})
	require.Error(t, err)
}

func TestParseOptionsRejectsTimeoutOutOfRange(t *testing.T) {
	_, err := ParseOptions(map[string]string{"timeout": "0"})
	require.Error(t, err)

	_, err = ParseOptions(map[string]string{"timeout": "256"})
	require.Error(t, err)
}

func TestParseOptionsIgnoresUnknownKeys(t *testing.T) {
	set, err := ParseOptions(map[string]string{"windowsize": "4"})
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestOptionSetDefaultsWhenAbsent(t *testing.T) {
	set := NewOptionSet()
	assert.Equal(t, DefaultBlocksize, set.Blocksize())
	assert.Equal(t, DefaultTimeoutSecs, set.Timeout())
	assert.Equal(t, uint32(0), set.TransferSize())
}

func TestOptionSetPairsCanonicalOrder(t *testing.T) {
	set := NewOptionSet()
	set.Add(TransferSizeOption{Value: 900})
	set.Add(BlocksizeOption{Value: 1024})
	set.Add(TimeoutOption{Value: 3})

	pairs := set.Pairs()
	require.Len(t, pairs, 3)
	assert.Equal(t, "blksize", pairs[0].Key)
	assert.Equal(t, "timeout", pairs[1].Key)
	assert.Equal(t, "tsize", pairs[2].Key)
}

func TestValidateAcceptedRejectsUnrequestedOption(t *testing.T) {
	requested := NewOptionSet()
	requested.Add(BlocksizeOption{Value: 1024})

	accepted := NewOptionSet()
	accepted.Add(BlocksizeOption{Value: 1024})
	accepted.Add(TimeoutOption{Value: 3}) // never requested

	err := ValidateAccepted(requested, accepted)
	require.Error(t, err)
}

func TestValidateAcceptedAllowsSubsetOfRequested(t *testing.T) {
	requested := NewOptionSet()
	requested.Add(BlocksizeOption{Value: 1024})
	requested.Add(TimeoutOption{Value: 3})

	accepted := NewOptionSet()
	accepted.Add(BlocksizeOption{Value: 1024})

	require.NoError(t, ValidateAccepted(requested, accepted))
}

func TestEffectiveOptionsMergeFromLeavesAbsentUntouched(t *testing.T) {
	e := defaultEffectiveOptions()
	set := NewOptionSet()
	set.Add(BlocksizeOption{Value: 1024})
	e.mergeFrom(set)

	assert.Equal(t, uint16(1024), e.blocksize)
	assert.Equal(t, DefaultTimeoutSecs, uint8(e.timeout.Seconds()))
}

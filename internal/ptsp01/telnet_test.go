package ptsp01

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIACFilterRefusesOptions(t *testing.T) {
	var f iacFilter
	in := []byte{'a', telIAC, telDO, 1, 'b', telIAC, telWILL, 3, telIAC, telWONT, 5, 'c'}
	data, replies := f.filter(in)
	assert.Equal(t, "abc", string(data))
	assert.Equal(t, []byte{telIAC, telWONT, 1, telIAC, telDONT, 3}, replies)
}

func TestIACFilterSubnegotiationAndEscape(t *testing.T) {
	var f iacFilter
	in := []byte{'x', telIAC, telSB, 24, 1, telIAC, telSE, telIAC, telIAC, 'y'}
	data, replies := f.filter(in)
	assert.Equal(t, []byte{'x', telIAC, 'y'}, data)
	assert.Empty(t, replies)
}

func TestIACFilterAcrossChunks(t *testing.T) {
	var f iacFilter
	d1, r1 := f.filter([]byte{'o', 'k', telIAC})
	d2, r2 := f.filter([]byte{telDO})
	d3, r3 := f.filter([]byte{31, '!'})
	assert.Equal(t, "ok", string(d1))
	assert.Empty(t, d2)
	assert.Equal(t, "!", string(d3))
	assert.Empty(t, r1)
	assert.Empty(t, r2)
	assert.Equal(t, []byte{telIAC, telWONT, 31}, r3)
}

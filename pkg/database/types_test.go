package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_ValueScan(t *testing.T) {
	in := StringArray{"albums/trip/a.jpg", "albums/trip/b,c.jpg"}
	v, err := in.Value()
	require.NoError(t, err)

	var out StringArray
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var nilArr StringArray
	v, err = nilArr.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStringArray_ScanEdges(t *testing.T) {
	var out StringArray
	require.NoError(t, out.Scan(""))
	assert.Equal(t, StringArray{}, out)

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)

	assert.Error(t, out.Scan("{a,b}"))
	assert.Error(t, out.Scan(42))
}

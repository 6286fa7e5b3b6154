package config

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The single-person lookup floor defaults lower than the batch scan floor so
// a targeted lookup surfaces weaker candidates than a tenant-wide scan would.
func TestLookupFloorDefaultsBelowScanFloor(t *testing.T) {
	typ := reflect.TypeOf(Config{})

	lookup, ok := typ.FieldByName("LookupMinScore")
	require.True(t, ok)
	scan, ok := typ.FieldByName("ScanMinScore")
	require.True(t, ok)

	assert.Equal(t, "40", lookup.Tag.Get("env-default"))
	assert.Equal(t, "50", scan.Tag.Get("env-default"))
}

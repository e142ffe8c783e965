package testflags

import (
	"flag"
	"testing"
)

// Test groups, all on by default:
//   - unit: a single package, in memory.
//   - integration: a full VM over a fresh genesis.
//   - badger: repos on disk through the badger datastore.
var (
	unitTest        = flag.Bool("unit", true, "Run the unit go tests")
	integrationTest = flag.Bool("integration", true, "Run the integration go tests")
	badgerTest      = flag.Bool("badger", true, "Run the go tests that open badger repos on disk")
)

// UnitTest runs the test it is called from in parallel unless `-unit=false`
// is passed without `-short`.
func UnitTest(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// IntegrationTest runs the test it is called from in parallel unless
// `-integration=false` or `-short` is passed.
func IntegrationTest(t *testing.T) {
	if !*integrationTest || testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// BadgerTest is an IntegrationTest that also writes a badger datastore to
// disk. `-badger=false` skips it alone.
func BadgerTest(t *testing.T) {
	if !*badgerTest {
		t.SkipNow()
	}
	IntegrationTest(t)
}

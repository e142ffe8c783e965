package runtime_test

import (
	"bytes"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

func TestSendReturnInto(t *testing.T) {
	tf.UnitTest(t)

	addr, err := address.NewIDAddress(42)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	require.NoError(t, addr.MarshalCBOR(buf))

	t.Run("exact payload", func(t *testing.T) {
		var out address.Address
		require.NoError(t, runtime.SendReturn{Return: buf.Bytes()}.Into(&out))
		assert.Equal(t, addr, out)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		payload := append(append([]byte{}, buf.Bytes()...), 0xff, 0xff)
		var out address.Address
		assert.Error(t, runtime.SendReturn{Return: payload}.Into(&out))
	})

	t.Run("empty payload", func(t *testing.T) {
		var out address.Address
		assert.Error(t, runtime.SendReturn{}.Into(&out))
	})
}

package tensor_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestToDenseAndFromDenseRoundTripFloat32(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 2), []float32{1, 2, 3, 4})
	require.NoError(t, err)

	d, err := in.ToDense()
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, d.Shape())

	back, err := tensor.FromDense(d)
	require.NoError(t, err)
	require.True(t, in.Equal(back))
}

func TestToDenseRejectsUnsupportedDType(t *testing.T) {
	in, err := tensor.New(datum.I32, tensor.NewShape(1))
	require.NoError(t, err)
	_, err = in.ToDense()
	require.Error(t, err)
}

package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/vidcap/internal/format"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

func newTestInventory(t *testing.T) *Inventory {
	t.Helper()
	vc, err := vidcap.Initialize(vidcap.Options{
		Backends: []string{vidcap.SimulatedIdentifier},
		Simulated: vidcap.SimulatedOptions{
			Manual: true,
			Devices: []vidcap.SimulatedDevice{
				{
					Identifier:  "cam0",
					Description: "Test camera",
					Capabilities: []format.Capability{
						format.Fixed(vidcap.FourccI420, 640, 480,
							format.Interval{Numerator: 1, Denominator: 30},
							format.Interval{Numerator: 1, Denominator: 1}),
						format.Fixed(vidcap.FourccYUY2, 320, 240,
							format.Interval{Numerator: 1, Denominator: 15},
							format.Interval{Numerator: 1, Denominator: 15}),
					},
				},
				{
					Identifier:  "cam1",
					Description: "Second camera",
					Capabilities: []format.Capability{
						format.Fixed(vidcap.FourccYUY2, 320, 240,
							format.Interval{Numerator: 1, Denominator: 30},
							format.Interval{Numerator: 1, Denominator: 30}),
					},
				},
			},
		},
	})
	require.NoError(t, err)

	inv := New(vc)
	require.NoError(t, inv.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, inv.Close())
		assert.NoError(t, vc.Destroy())
	})
	return inv
}

func TestStartHoldsBackends(t *testing.T) {
	inv := newTestInventory(t)

	backends := inv.Backends()
	require.Len(t, backends, 1)
	assert.Equal(t, vidcap.SimulatedIdentifier, backends[0].Info.Identifier)
	assert.Equal(t, 2, backends[0].Sources)
	assert.True(t, backends[0].Watching)
}

func TestSources(t *testing.T) {
	inv := newTestInventory(t)
	ctx := context.Background()

	sources, err := inv.Sources(ctx, vidcap.SimulatedIdentifier)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "cam0", sources[0].Identifier)
	assert.Equal(t, "Second camera", sources[1].Description)

	_, err = inv.Sources(ctx, "v4l2")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestFormatsReleasesProbe(t *testing.T) {
	inv := newTestInventory(t)
	ctx := context.Background()

	formats, err := inv.Formats(ctx, vidcap.SimulatedIdentifier, "cam0")
	require.NoError(t, err)
	require.NotEmpty(t, formats)
	assert.Equal(t, vidcap.FourccI420, formats[0].Fourcc)

	// The probe must not keep the source.
	assert.Empty(t, inv.Sessions())
	_, err = inv.StartPreview(ctx, vidcap.SimulatedIdentifier, "cam0", nil)
	require.NoError(t, err)

	// A previewed source answers from its session.
	again, err := inv.Formats(ctx, vidcap.SimulatedIdentifier, "cam0")
	require.NoError(t, err)
	assert.Equal(t, formats, again)

	_, err = inv.Formats(ctx, vidcap.SimulatedIdentifier, "cam9")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestPreviewLifecycle(t *testing.T) {
	inv := newTestInventory(t)
	ctx := context.Background()

	want := &vidcap.Format{Width: 320, Height: 240, Fourcc: vidcap.FourccRGB32, FPSNumerator: 30, FPSDenominator: 1}
	session, err := inv.StartPreview(ctx, vidcap.SimulatedIdentifier, "cam1", want)
	require.NoError(t, err)
	assert.Equal(t, vidcap.SimulatedIdentifier, session.Backend)
	assert.Equal(t, "cam1", session.Source.Identifier)
	require.NotNil(t, session.Format)
	assert.Equal(t, *want, *session.Format)
	assert.Equal(t, "yuy2->rgb32", session.Conversion)

	_, err = inv.StartPreview(ctx, vidcap.SimulatedIdentifier, "cam1", want)
	assert.ErrorIs(t, err, vidcap.ErrAlreadyAcquired)

	sessions := inv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "cam1", sessions[0].Source.Identifier)

	require.NoError(t, inv.StopPreview(vidcap.SimulatedIdentifier, "cam1"))
	assert.Empty(t, inv.Sessions())

	err = inv.StopPreview(vidcap.SimulatedIdentifier, "cam1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPreviewUnsupportedFormat(t *testing.T) {
	inv := newTestInventory(t)
	ctx := context.Background()

	_, err := inv.StartPreview(ctx, vidcap.SimulatedIdentifier, "cam0",
		&vidcap.Format{Width: 1920, Height: 1080, Fourcc: vidcap.FourccI420, FPSNumerator: 30, FPSDenominator: 1})
	assert.ErrorIs(t, err, vidcap.ErrFormatUnsupported)

	// A failed bind gives the source back.
	assert.Empty(t, inv.Sessions())
	_, err = inv.StartPreview(ctx, vidcap.SimulatedIdentifier, "cam0", nil)
	assert.NoError(t, err)
}

func TestPreviewUnknownSource(t *testing.T) {
	inv := newTestInventory(t)

	_, err := inv.StartPreview(context.Background(), "dshow", "cam0", nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = inv.StartPreview(context.Background(), vidcap.SimulatedIdentifier, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestCloseReleasesEverything(t *testing.T) {
	inv := newTestInventory(t)

	_, err := inv.StartPreview(context.Background(), vidcap.SimulatedIdentifier, "cam0", nil)
	require.NoError(t, err)

	require.NoError(t, inv.Close())
	assert.Empty(t, inv.Backends())
	assert.Empty(t, inv.Sessions())
}

package asvo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobType(t *testing.T) {
	tests := []struct {
		in   string
		want JobType
	}{
		{"conversion", TypeConversion},
		{"Conversion", TypeConversion},
		{"download_visibilities", TypeDownloadVisibilities},
		{"Download Visibilities", TypeDownloadVisibilities},
		{"DownloadVisibilities", TypeDownloadVisibilities},
		{"download_metadata", TypeDownloadMetadata},
		{"download_voltage", TypeDownloadVoltage},
		{"cancel_job", TypeCancelJob},
		{"", TypeUnknown},
		{"mystery", TypeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseJobType(tt.in), "input %q", tt.in)
	}
}

func TestParseStateKind(t *testing.T) {
	tests := []struct {
		in   string
		want StateKind
	}{
		{"queued", StateQueued},
		{"Queued", StateQueued},
		{"processing", StateProcessing},
		{"preparing", StatePreparing},
		{"ready", StateReady},
		{"Ready", StateReady},
		{"error", StateError},
		{"expired", StateExpired},
		{"cancelled", StateCancelled},
		{"Canceled", StateCancelled},
		{"archiving", StateUnknown},
		{"", StateUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStateKind(tt.in), "input %q", tt.in)
	}
}

func TestStateKindTerminal(t *testing.T) {
	terminal := []StateKind{StateReady, StateError, StateExpired, StateCancelled}
	for _, k := range terminal {
		assert.True(t, k.Terminal(), k.String())
	}

	nonTerminal := []StateKind{StateQueued, StateProcessing, StatePreparing, StateUnknown}
	for _, k := range nonTerminal {
		assert.False(t, k.Terminal(), k.String())
	}
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "Queued", JobState{Kind: StateQueued}.String())
	assert.Equal(t, "Error: disk full", JobState{Kind: StateError, Detail: "disk full"}.String())
	assert.Equal(t, "Unknown (archiving)", JobState{Kind: StateUnknown, Detail: "archiving"}.String())
	assert.Equal(t, "Unknown", JobState{Kind: StateUnknown}.String())
}

func TestParseDelivery(t *testing.T) {
	for in, want := range map[string]Delivery{
		"":        DeliveryAcacia,
		"acacia":  DeliveryAcacia,
		"Acacia":  DeliveryAcacia,
		"scratch": DeliveryScratch,
		"astro":   DeliveryAstro,
		"dug":     DeliveryDug,
	} {
		got, err := ParseDelivery(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDelivery("tape")

	var invalid *InvalidDeliveryError

	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "tape", invalid.Value)
}

func TestJobTotalBytes(t *testing.T) {
	j := Job{Files: []File{
		{Name: "a", Size: 100},
		{Name: "b", Size: -1},
		{Name: "c", Size: 50},
	}}

	assert.Equal(t, int64(150), j.TotalBytes())
}

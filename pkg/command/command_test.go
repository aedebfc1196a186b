package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncoding(t *testing.T) {
	captures := []hal.CaptureInfo{{
		StreamIDs:  []int{1, 2},
		Width:      640,
		Height:     480,
		Format:     frame.FormatRGBA,
		IsCapture:  true,
		EncodeType: frame.CodecMJPEG,
		StreamType: hal.StreamContinuous,
		FrameRate:  30,
		Settings:   []hal.Setting{{Type: hal.SettingUpdate, Value: "ae=1"}},
	}}

	testCases := map[string]struct {
		record Record
	}{
		"Capture":        {NewCapture("cam0", captures)},
		"StopCapture":    {NewStopCapture("cam0", []int{2})},
		"StopAll":        {NewStopCapture("cam0", nil)},
		"ChannelNeg":     {NewChannelNeg("cam0", ChannelInfo{SourceDevID: "D2", Detail: []ChannelDetail{{DataSessionFlag: "dataContinue", StreamType: 0}}})},
		"UpdateMetadata": {NewUpdateMetadata("cam0", []hal.Setting{{Type: hal.SettingEnable, Value: "x"}})},
		"MetadataResult": {NewMetadataResult("cam0", []hal.Setting{{Type: hal.SettingReset, Value: "y"}})},
		"OpenChannel":    {NewOpenChannel("cam0", "D2")},
		"CloseChannel":   {NewCloseChannel("cam0")},
		"StateNotify":    {NewStateNotify("cam0", hal.HalEvent{Type: hal.EventMessage, Result: hal.ResultDeviceError, Code: status.BadOperate, Content: "boom"})},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			data, err := Marshal(tc.record)
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.record, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCaptureConversion(t *testing.T) {
	in := hal.CaptureInfo{
		StreamIDs:  []int{3},
		Width:      320,
		Height:     240,
		Format:     frame.FormatNV12,
		EncodeType: frame.CodecH264,
		StreamType: hal.StreamSnapshot,
		Settings:   []hal.Setting{{Type: hal.SettingDisable, Value: "af"}},
	}
	r := NewCapture("cam0", []hal.CaptureInfo{in})
	infos, ok := r.Value.([]CaptureInfo)
	require.True(t, ok)
	require.Len(t, infos, 1)
	assert.Equal(t, in, infos[0].ToCaptureInfo())

	ev := hal.HalEvent{Type: hal.EventOperation, Result: hal.ResultCaptureFailed, Code: status.WrongState}
	r = NewStateNotify("cam0", ev)
	assert.Equal(t, ev, r.Value.(Event).HalEvent())
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal([]byte("{"))
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = Unmarshal([]byte(`{"type":"OPERATION","command":"CAPTURE"}`))
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = Unmarshal([]byte(`{"type":"OPERATION","dhId":"cam0","command":"ZOOM"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = Unmarshal([]byte(`{"type":"OPERATION","dhId":"cam0","command":"STOP_CAPTURE","value":"all"}`))
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

package gst

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
)

type recordingSinkHandler struct {
	flow   pipeline.FlowReturn
	chains int
}

func (h *recordingSinkHandler) Chain(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	h.chains++
	buf.Release()
	return h.flow
}

func (h *recordingSinkHandler) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	return true
}

func TestSinkPadChainPropagatesFlow(t *testing.T) {
	ctx := context.Background()
	for _, flow := range []pipeline.FlowReturn{
		pipeline.FlowOK,
		pipeline.FlowNotLinked,
		pipeline.FlowFlushing,
		pipeline.FlowError,
	} {
		t.Run(flow.String(), func(t *testing.T) {
			h := &recordingSinkHandler{flow: flow}
			s := &sinkPad{name: "video 0", handler: h}
			require.NoError(t, s.SetActive(ctx, true))

			require.Equal(t, flow, s.chain(ctx, pipeline.NewBuffer([]byte{1, 2, 3})))
			require.Equal(t, 1, h.chains)
		})
	}

	t.Run("inactive", func(t *testing.T) {
		h := &recordingSinkHandler{flow: pipeline.FlowOK}
		s := &sinkPad{name: "audio 0", handler: h}
		released := 0
		buf := pipeline.NewBuffer([]byte{1})
		buf.OnRelease = func() { released++ }

		require.Equal(t, pipeline.FlowFlushing, s.chain(ctx, buf))
		require.Zero(t, h.chains)
		require.Equal(t, 1, released)
	})

	t.Run("flushing", func(t *testing.T) {
		h := &recordingSinkHandler{flow: pipeline.FlowOK}
		s := &sinkPad{name: "audio 0", handler: h}
		require.NoError(t, s.SetActive(ctx, true))
		s.flushing.Store(true)

		require.Equal(t, pipeline.FlowFlushing, s.chain(ctx, pipeline.NewBuffer([]byte{1})))
		require.Zero(t, h.chains)
	})
}

// stateRecordingSource notes the state appsrc is in when the pad gets
// activated.
type stateRecordingSource struct {
	locker      sync.Mutex
	pipeline    *Pipeline
	activations []pipeline.State
}

func (s *stateRecordingSource) GetRange(ctx context.Context, offset uint64, length uint) (*pipeline.Buffer, pipeline.FlowReturn) {
	return nil, pipeline.FlowEOS
}

func (s *stateRecordingSource) ActivateMode(ctx context.Context, mode pipeline.PadMode, active bool) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if active {
		s.activations = append(s.activations, fromGstState(s.pipeline.appSrc.GetCurrentState()))
	}
	return nil
}

func (s *stateRecordingSource) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	return false
}

func (s *stateRecordingSource) HandleQuery(ctx context.Context, q pipeline.Query) bool {
	return false
}

func TestPipelineSourceActivationOrder(t *testing.T) {
	for _, tc := range []struct {
		name       string
		preferPush bool
		check      func(t *testing.T, state pipeline.State)
	}{
		{
			name:       "push",
			preferPush: true,
			check: func(t *testing.T, state pipeline.State) {
				require.GreaterOrEqual(t, state, pipeline.StatePaused)
			},
		},
		{
			name: "pull",
			check: func(t *testing.T, state pipeline.State) {
				require.LessOrEqual(t, state, pipeline.StateReady)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			src := &stateRecordingSource{}
			p, err := NewFactory(DefaultConfig()).NewPipeline(ctx, pipeline.Config{
				Name:       "activation-" + tc.name,
				Source:     src,
				PreferPush: tc.preferPush,
			})
			require.NoError(t, err)
			gp := p.(*Pipeline)
			src.pipeline = gp
			t.Cleanup(func() {
				require.NoError(t, gp.Close(ctx))
			})

			_, err = gp.SetState(ctx, pipeline.StateReady)
			require.NoError(t, err)
			_, err = gp.SetState(ctx, pipeline.StatePaused)
			require.NoError(t, err)

			src.locker.Lock()
			defer src.locker.Unlock()
			require.Len(t, src.activations, 1)
			tc.check(t, src.activations[0])
		})
	}
}

package avbridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/dispatcher"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pipeline/virtual"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/reader"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"

	assertT "github.com/stretchr/testify/assert"
)

const testTimeout = 5 * time.Second

type receivedSample struct {
	Start      typing.Optional[types.ReferenceTime]
	Stop       typing.Optional[types.ReferenceTime]
	MediaStart typing.Optional[int64]
	Discont    bool
	SyncPoint  bool
	Data       []byte
}

type receivedSegment struct {
	Start types.ReferenceTime
	Stop  types.ReferenceTime
	Rate  float64
}

type receiverEvent struct {
	Kind    string
	Sample  *receivedSample
	Segment *receivedSegment
}

type fakeReceiver struct {
	delay time.Duration
	err   error

	mu        sync.Mutex
	allocator *pool.Pool
	events    []receiverEvent
	eosCh     chan struct{}
	eosCount  int
}

var _ graph.Receiver = (*fakeReceiver)(nil)

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		eosCh: make(chan struct{}, 16),
	}
}

func (r *fakeReceiver) record(ev receiverEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeReceiver) Receive(ctx context.Context, sample *pool.Sample) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return r.err
	}
	start, stop := sample.Time()
	mediaStart, _ := sample.MediaTime()
	r.record(receiverEvent{Kind: "sample", Sample: &receivedSample{
		Start:      start,
		Stop:       stop,
		MediaStart: mediaStart,
		Discont:    sample.IsDiscontinuity(),
		SyncPoint:  sample.IsSyncPoint(),
		Data:       append([]byte(nil), sample.Bytes()...),
	}})
	return nil
}

func (r *fakeReceiver) BeginFlush(ctx context.Context) error {
	r.record(receiverEvent{Kind: "begin-flush"})
	return nil
}

func (r *fakeReceiver) EndFlush(ctx context.Context) error {
	r.record(receiverEvent{Kind: "end-flush"})
	return nil
}

func (r *fakeReceiver) NewSegment(ctx context.Context, start, stop types.ReferenceTime, rate float64) error {
	r.record(receiverEvent{Kind: "segment", Segment: &receivedSegment{Start: start, Stop: stop, Rate: rate}})
	return nil
}

func (r *fakeReceiver) EndOfStream(ctx context.Context) error {
	r.record(receiverEvent{Kind: "eos"})
	r.mu.Lock()
	r.eosCount++
	r.mu.Unlock()
	r.eosCh <- struct{}{}
	return nil
}

func (r *fakeReceiver) NotifyAllocator(ctx context.Context, allocator *pool.Pool, readOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocator = allocator
	return nil
}

func (r *fakeReceiver) Events() []receiverEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receiverEvent(nil), r.events...)
}

func (r *fakeReceiver) Samples() []*receivedSample {
	var result []*receivedSample
	for _, ev := range r.Events() {
		if ev.Sample != nil {
			result = append(result, ev.Sample)
		}
	}
	return result
}

// EventsAfterLastFlush returns the events following the last end-flush.
func (r *fakeReceiver) EventsAfterLastFlush() []receiverEvent {
	events := r.Events()
	for idx := len(events) - 1; idx >= 0; idx-- {
		if events[idx].Kind == "end-flush" {
			return events[idx+1:]
		}
	}
	return nil
}

func (r *fakeReceiver) waitEOS(t *testing.T) {
	t.Helper()
	select {
	case <-r.eosCh:
	case <-time.After(testTimeout):
		t.Fatal("no end of stream")
	}
}

type testEnv struct {
	t          *testing.T
	data       []byte
	reader     *reader.ReaderAt
	factory    *virtual.Factory
	dispatcher *dispatcher.Dispatcher
	filter     *Filter
	receivers  map[types.MediaType]*fakeReceiver
}

func newTestEnv(
	t *testing.T,
	params virtual.SampleParams,
	vcfg virtual.Config,
	opts ...Option,
) *testEnv {
	data, err := virtual.EncodeBytes(virtual.SampleContainer(params))
	require.NoError(t, err)
	return newTestEnvWithData(t, data, vcfg, opts...)
}

func newTestEnvWithData(
	t *testing.T,
	data []byte,
	vcfg virtual.Config,
	opts ...Option,
) *testEnv {
	ctx := context.Background()
	env := &testEnv{
		t:          t,
		data:       data,
		reader:     reader.NewReaderAt(ctx, bytes.NewReader(data), int64(len(data))),
		factory:    virtual.NewFactory(vcfg),
		dispatcher: dispatcher.New(ctx, dispatcher.OptionWorkers(8)),
		receivers:  map[types.MediaType]*fakeReceiver{},
	}
	env.filter = New(ctx, append([]Option{
		OptionPipelineFactory{Factory: env.factory},
		OptionDispatcher{Dispatcher: env.dispatcher},
		OptionDiscoveryTimeout(testTimeout),
		OptionStateChangeTimeout(testTimeout),
	}, opts...)...)
	t.Cleanup(func() {
		assertT.NoError(t, env.filter.Close(ctx))
		assertT.NoError(t, env.reader.Close())
		assertT.NoError(t, env.dispatcher.Close())
	})
	return env
}

func (env *testEnv) connect() {
	ctx := context.Background()
	require.NoError(env.t, env.filter.Connect(ctx, env.reader, mediatype.NewStream("AVBv")))
}

func (env *testEnv) connectReceivers() {
	ctx := context.Background()
	for _, port := range env.filter.OutputPorts() {
		r := newFakeReceiver()
		require.NoError(env.t, port.Connect(ctx, r))
		env.receivers[port.MediaType().Major] = r
	}
}

func (env *testEnv) port(major types.MediaType) *OutputPort {
	for _, port := range env.filter.OutputPorts() {
		if port.major == major {
			return port
		}
	}
	env.t.Fatalf("no %s port", major)
	return nil
}

func (env *testEnv) start() {
	env.connect()
	env.connectReceivers()
	require.NoError(env.t, env.filter.Run(context.Background(), 0))
}

func TestFilterPlayback(t *testing.T) {
	for _, push := range []bool{false, true} {
		name := "pull"
		if push {
			name = "push"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t, virtual.SampleParams{Duration: 500 * time.Millisecond}, virtual.Config{}, OptionPreferPush(push))
			env.connect()

			ports := env.filter.OutputPorts()
			require.Len(t, ports, 2)
			require.True(t, env.filter.getConnection().discovery.isComplete())
			require.Equal(t, types.MediaTypeAudio, ports[0].MediaType().Major)
			require.Equal(t, types.MediaTypeVideo, ports[1].MediaType().Major)
			wf, ok := ports[0].MediaType().WaveFormat()
			require.True(t, ok)
			require.Equal(t, 48000*2*2, wf.AvgBytesPerSec)
			require.Len(t, env.filter.Pins(), 3)

			env.connectReceivers()
			require.NoError(t, env.filter.Run(ctx, 0))
			state, err := env.filter.GetState(ctx, testTimeout)
			require.NoError(t, err)
			require.Equal(t, types.StateRunning, state)

			audio, video := env.receivers[types.MediaTypeAudio], env.receivers[types.MediaTypeVideo]
			audio.waitEOS(t)
			video.waitEOS(t)

			audioSamples := audio.Samples()
			require.Len(t, audioSamples, 25)
			require.Equal(t, types.ReferenceTime(0), audioSamples[0].Start.Get())
			require.Equal(t, types.ReferenceTime(200_000), audioSamples[0].Stop.Get())
			require.Len(t, audioSamples[0].Data, 960*2*2)

			videoSamples := video.Samples()
			require.Len(t, videoSamples, 13)
			for idx, s := range videoSamples {
				require.Len(t, s.Data, 4*2*3)
				assertT.Equal(t, byte(idx), s.Data[0])
				assertT.Equal(t, idx%5 == 0, s.SyncPoint, "frame %d", idx)
				assertT.Equal(t, types.ReferenceTime(idx)*400_000, s.Start.Get())
			}

			stats := env.port(types.MediaTypeVideo).Statistics()
			require.Equal(t, uint64(13), stats.Delivered.Count)
			require.Zero(t, stats.Truncated.Count)

			mode := env.filter.Pipeline().SourcePad().Mode()
			if push {
				require.Equal(t, pipeline.PadModePush, mode)
			} else {
				require.Equal(t, pipeline.PadModePull, mode)
			}

			require.NoError(t, env.filter.Stop(ctx))
			require.NoError(t, env.filter.Disconnect(ctx))
			require.Nil(t, env.filter.Pipeline())
			require.Empty(t, env.filter.OutputPorts())
		})
	}
}

func TestFilterStopMidStream(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 20 * time.Second}, virtual.Config{}, OptionPreferPush(true))
	env.connect()
	env.connectReceivers()
	for _, r := range env.receivers {
		r.delay = time.Millisecond
	}
	require.NoError(t, env.filter.Run(ctx, 0))

	audio := env.receivers[types.MediaTypeAudio]
	require.Eventually(t, func() bool {
		return len(audio.Samples()) >= 10
	}, testTimeout, time.Millisecond)

	require.NoError(t, env.filter.Stop(ctx))
	state, err := env.filter.GetState(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.StateStopped, state)

	src := env.filter.getConnection().source
	require.False(t, src.isPushing())
	require.Less(t, src.NextOffset(), int64(len(env.data)))
	require.Zero(t, env.reader.Outstanding())
	require.Zero(t, env.filter.getConnection().pool.Outstanding())

	received := len(audio.Samples())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, received, len(audio.Samples()))
	audio.mu.Lock()
	defer audio.mu.Unlock()
	require.Zero(t, audio.eosCount)
}

func TestFilterPortsSurvivePadRemoval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 200 * time.Millisecond}, virtual.Config{})
	env.start()
	env.receivers[types.MediaTypeVideo].waitEOS(t)

	before := env.filter.OutputPorts()
	require.NoError(t, env.filter.Stop(ctx))
	for _, port := range before {
		require.False(t, port.IsAttached(), port.Name())
	}

	require.NoError(t, env.filter.Pause(ctx))
	require.Eventually(t, func() bool {
		for _, port := range env.filter.OutputPorts() {
			if !port.IsAttached() {
				return false
			}
		}
		return true
	}, testTimeout, time.Millisecond)
	after := env.filter.OutputPorts()
	require.Len(t, after, len(before))
	for idx := range before {
		require.Same(t, before[idx], after[idx])
	}
	require.Same(t, env.receivers[types.MediaTypeVideo], after[1].Receiver())

	// the teardown flush-start must not leave the ports flushing
	env.receivers[types.MediaTypeVideo].waitEOS(t)
	for _, ev := range env.receivers[types.MediaTypeVideo].Events() {
		require.NotEqual(t, "begin-flush", ev.Kind)
	}
}

func TestFilterGetRangePastEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{})
	env.connect()

	conn := env.filter.getConnection()
	h := &sourceHandler{filter: env.filter, bridge: conn.source}
	buf, flow := h.GetRange(ctx, uint64(len(env.data)), 16)
	require.Nil(t, buf)
	require.Equal(t, pipeline.FlowEOS, flow)

	buf, flow = h.GetRange(ctx, uint64(len(env.data)-3), 16)
	require.Equal(t, pipeline.FlowOK, flow)
	require.Equal(t, env.data[len(env.data)-3:], buf.Data)
	require.Equal(t, uint64(len(env.data)-3), buf.Offset)
	buf.Release()

	q := &pipeline.QueryDuration{Format: pipeline.FormatBytes}
	require.True(t, h.HandleQuery(ctx, q))
	require.Equal(t, int64(len(env.data)), q.Duration)
}

func TestFilterConnectRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{})

	err := env.filter.Connect(ctx, env.reader, &mediatype.MediaType{Major: types.MediaTypeVideo})
	require.ErrorIs(t, err, graph.ErrTypeNotAccepted)

	err = env.filter.Connect(ctx, inputPeer{}, mediatype.NewStream("AVBv"))
	require.ErrorIs(t, err, graph.ErrInvalidDirection)

	err = env.filter.Connect(ctx, outputPeer{}, mediatype.NewStream("AVBv"))
	require.ErrorIs(t, err, graph.ErrNoInterface)

	require.ErrorIs(t, env.filter.Pause(ctx), graph.ErrNotConnected)
	require.Nil(t, env.filter.InputPin().ConnectedTo())

	env.connect()
	require.ErrorIs(t, env.filter.Connect(ctx, env.reader, mediatype.NewStream("AVBv")), graph.ErrAlreadyConnected)
	require.Equal(t, graph.Peer(env.reader), env.filter.InputPin().ConnectedTo())
}

type inputPeer struct{}

func (inputPeer) Direction() graph.PinDirection { return graph.PinDirectionInput }

type outputPeer struct{}

func (outputPeer) Direction() graph.PinDirection { return graph.PinDirectionOutput }

func TestFilterConnectRollback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithData(t, bytes.Repeat([]byte{0xff}, 1024), virtual.Config{})

	err := env.filter.Connect(ctx, env.reader, mediatype.NewStream("AVBv"))
	require.Error(t, err)
	var pipelineErr ErrPipeline
	require.True(t, errors.As(err, &pipelineErr), err.Error())

	require.Nil(t, env.filter.Pipeline())
	require.Empty(t, env.filter.OutputPorts())
	require.Empty(t, env.factory.Last().SinkPads())
	require.Zero(t, env.reader.Outstanding())
}

func TestFilterDisconnectWhileRunning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{})
	env.start()

	require.ErrorIs(t, env.filter.Disconnect(ctx), types.ErrWrongState)
	require.ErrorIs(t, env.port(types.MediaTypeAudio).Disconnect(ctx), types.ErrWrongState)
	require.NotNil(t, env.filter.Pipeline())

	require.NoError(t, env.filter.Stop(ctx))
	require.NoError(t, env.port(types.MediaTypeAudio).Disconnect(ctx))
	require.NoError(t, env.filter.Disconnect(ctx))
}

func TestFilterAsyncPause(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{AsyncStateChanges: true})
	env.connect()
	env.connectReceivers()

	err := env.filter.Pause(ctx)
	if err != nil {
		require.ErrorIs(t, err, types.ErrStateIntermediate)
	}
	state, err := env.filter.GetState(ctx, testTimeout)
	require.NoError(t, err)
	require.Equal(t, types.StatePaused, state)
}

func TestFilterBlacklist(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{}, OptionBlacklist{"Raw Video"})
	env.connect()

	ports := env.filter.OutputPorts()
	require.Len(t, ports, 2)
	decoders := env.factory.Last().SelectedDecoders()
	require.Equal(t, "Virtual PCM Decoder", decoders[0])
	require.Equal(t, virtual.DefaultFallbackDecoder, decoders[1])

	r := env.filter.onAutoplugSelect(ctx, nil, pipeline.ElementFactoryInfo{LongName: "Fluendo Hardware Accelerated Video Decoder"})
	require.Equal(t, pipeline.AutoplugSelectSkip, r)
	r = env.filter.onAutoplugSelect(ctx, nil, pipeline.ElementFactoryInfo{LongName: "Virtual PCM Decoder"})
	require.Equal(t, pipeline.AutoplugSelectTry, r)
}

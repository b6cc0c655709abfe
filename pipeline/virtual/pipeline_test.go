package virtual

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"

	assertT "github.com/stretchr/testify/assert"
)

type bytesSource struct {
	data     []byte
	pushOnly bool

	mu          sync.Mutex
	activations []string
	seeks       []*pipeline.EventSeek
	onSeek      func(ev *pipeline.EventSeek) bool
}

func (s *bytesSource) GetRange(ctx context.Context, offset uint64, length uint) (*pipeline.Buffer, pipeline.FlowReturn) {
	if offset >= uint64(len(s.data)) {
		return nil, pipeline.FlowEOS
	}
	end := min(offset+uint64(length), uint64(len(s.data)))
	buf := pipeline.NewBuffer(append([]byte(nil), s.data[offset:end]...))
	buf.Offset = offset
	return buf, pipeline.FlowOK
}

func (s *bytesSource) ActivateMode(ctx context.Context, mode pipeline.PadMode, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations = append(s.activations, fmt.Sprintf("%s:%t", mode, active))
	return nil
}

func (s *bytesSource) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	seek, ok := ev.(*pipeline.EventSeek)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.seeks = append(s.seeks, seek)
	onSeek := s.onSeek
	s.mu.Unlock()
	if onSeek == nil {
		return false
	}
	return onSeek(seek)
}

func (s *bytesSource) HandleQuery(ctx context.Context, q pipeline.Query) bool {
	switch q := q.(type) {
	case *pipeline.QueryScheduling:
		q.Seekable = true
		q.Modes = []pipeline.PadMode{pipeline.PadModePush}
		if !s.pushOnly {
			q.Modes = append(q.Modes, pipeline.PadModePull)
		}
		return true
	}
	return false
}

type collector struct {
	mu      sync.Mutex
	buffers []*pipeline.Buffer
	events  []pipeline.Event
}

func (c *collector) Chain(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = append(c.buffers, buf)
	return pipeline.FlowOK
}

func (c *collector) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *collector) snapshot() ([]*pipeline.Buffer, []pipeline.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*pipeline.Buffer(nil), c.buffers...), append([]pipeline.Event(nil), c.events...)
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = nil
	c.events = nil
}

func (c *collector) hasEOS() bool {
	_, events := c.snapshot()
	for _, ev := range events {
		if _, ok := ev.(*pipeline.EventEOS); ok {
			return true
		}
	}
	return false
}

type linker struct {
	t        *testing.T
	pipeline func() pipeline.Pipeline
	skip     string

	mu         sync.Mutex
	collectors map[string]*collector
	sinks      map[string]pipeline.SinkPad
	added      int
	removed    int
	noMorePads int
	unknown    []string
}

func newLinker(t *testing.T) *linker {
	return &linker{
		t:          t,
		collectors: map[string]*collector{},
		sinks:      map[string]pipeline.SinkPad{},
	}
}

func (l *linker) PadAdded(ctx context.Context, pad pipeline.Pad) {
	l.mu.Lock()
	l.added++
	c := l.collectors[pad.Name()]
	sink := l.sinks[pad.Name()]
	l.mu.Unlock()
	if c == nil {
		c = &collector{}
		var err error
		sink, err = l.pipeline().NewSinkPad(ctx, "", c, pipeline.SinkPadOptions{NormalizeVideo: pad.Caps().Family() == "video"})
		if !assertT.NoError(l.t, err) {
			return
		}
		assertT.NoError(l.t, sink.SetActive(ctx, true))
		l.mu.Lock()
		l.collectors[pad.Name()] = c
		l.sinks[pad.Name()] = sink
		l.mu.Unlock()
	}
	sink.ClearFlushing()
	assertT.NoError(l.t, pad.Link(ctx, sink))
}

func (l *linker) PadRemoved(ctx context.Context, pad pipeline.Pad) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed++
}

func (l *linker) NoMorePads(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.noMorePads++
}

func (l *linker) UnknownType(ctx context.Context, pad pipeline.Pad, caps *pipeline.Caps) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unknown = append(l.unknown, pad.Name())
}

func (l *linker) AutoplugSelect(
	ctx context.Context,
	pad pipeline.Pad,
	caps *pipeline.Caps,
	factory pipeline.ElementFactoryInfo,
) pipeline.AutoplugSelectResult {
	if l.skip != "" && strings.Contains(factory.Klass, l.skip) {
		return pipeline.AutoplugSelectSkip
	}
	return pipeline.AutoplugSelectTry
}

func (l *linker) collector(name string) *collector {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectors[name]
}

func (l *linker) sink(name string) pipeline.SinkPad {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sinks[name]
}

type busRecorder struct {
	mu       sync.Mutex
	messages []pipeline.Message
}

func (b *busRecorder) HandleMessage(ctx context.Context, msg pipeline.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *busRecorder) count(match func(pipeline.Message) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, msg := range b.messages {
		if match(msg) {
			n++
		}
	}
	return n
}

func isEOS(msg pipeline.Message) bool {
	_, ok := msg.(*pipeline.MessageEOS)
	return ok
}

func isError(msg pipeline.Message) bool {
	_, ok := msg.(*pipeline.MessageError)
	return ok
}

type testEnv struct {
	pipeline *Pipeline
	source   *bytesSource
	linker   *linker
	bus      *busRecorder
	data     []byte
}

func newTestEnv(t *testing.T, cfg Config, preferPush bool, params SampleParams) *testEnv {
	data, err := EncodeBytes(SampleContainer(params))
	require.NoError(t, err)
	env := &testEnv{
		source: &bytesSource{data: data},
		linker: newLinker(t),
		bus:    &busRecorder{},
		data:   data,
	}
	env.linker.pipeline = func() pipeline.Pipeline { return env.pipeline }
	p, err := NewFactory(cfg).NewPipeline(context.Background(), pipeline.Config{
		Name:       t.Name(),
		Source:     env.source,
		Decode:     env.linker,
		Bus:        env.bus,
		PreferPush: preferPush,
	})
	require.NoError(t, err)
	env.pipeline = p.(*Pipeline)
	return env
}

// pushAll feeds the whole input through the source pad from the given offset.
func (env *testEnv) pushAll(ctx context.Context, offset int) pipeline.FlowReturn {
	src := env.pipeline.SourcePad()
	for offset < len(env.data) {
		end := min(offset+1000, len(env.data))
		buf := pipeline.NewBuffer(append([]byte(nil), env.data[offset:end]...))
		buf.Offset = uint64(offset)
		if flow := src.Push(ctx, buf); flow != pipeline.FlowOK {
			return flow
		}
		offset = end
	}
	src.PushEvent(ctx, &pipeline.EventEOS{})
	return pipeline.FlowOK
}

func TestPipelinePullPlayback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, false, SampleParams{Duration: 500 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	ret, err := env.pipeline.SetState(ctx, pipeline.StatePlaying)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateChangeSuccess, ret)
	require.Equal(t, pipeline.PadModePull, env.pipeline.SourcePad().Mode())

	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 1
	}, 5*time.Second, time.Millisecond)

	audio, video := env.linker.collector("src_0"), env.linker.collector("src_1")
	require.NotNil(t, audio)
	require.NotNil(t, video)
	require.True(t, audio.hasEOS())
	require.True(t, video.hasEOS())

	audioBufs, audioEvents := audio.snapshot()
	require.Len(t, audioBufs, 25)
	seg, ok := audioEvents[0].(*pipeline.EventSegment)
	require.True(t, ok, audioEvents[0])
	require.Equal(t, pipeline.FormatTime, seg.Segment.Format)

	videoBufs, _ := video.snapshot()
	require.Len(t, videoBufs, 13)
	for idx, buf := range videoBufs {
		require.Equal(t, idx%5 != 0, buf.Flags.Has(pipeline.BufferFlagDeltaUnit), idx)
	}
	require.Equal(t, uint64(13), env.linker.sink("src_1").(*sinkPad).FlippedFrames())

	require.Equal(t, map[int]string{0: "Virtual PCM Decoder", 1: "Virtual Raw Video Decoder"}, env.pipeline.SelectedDecoders())
	require.Zero(t, env.bus.count(isError))

	videoPad := env.linker.sink("src_1").(*sinkPad).peer.Load()
	_, ok = videoPad.QueryPosition(ctx, pipeline.FormatBytes)
	require.False(t, ok)
	duration, ok := videoPad.QueryDuration(ctx, pipeline.FormatTime)
	require.True(t, ok)
	require.Equal(t, int64(500*time.Millisecond), duration)
}

func TestPipelinePauseReadyCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, false, SampleParams{Duration: 200 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 1
	}, 5*time.Second, time.Millisecond)

	_, err = env.pipeline.SetState(ctx, pipeline.StateReady)
	require.NoError(t, err)

	env.linker.mu.Lock()
	require.Equal(t, 2, env.linker.added)
	require.Equal(t, 2, env.linker.removed)
	require.Equal(t, 1, env.linker.noMorePads)
	env.linker.mu.Unlock()

	// the flush-start sent while going to ready is never followed by a
	// flush-stop
	_, events := env.linker.collector("src_0").snapshot()
	_, isFlushStart := events[len(events)-1].(*pipeline.EventFlushStart)
	require.True(t, isFlushStart)
	require.True(t, env.linker.sink("src_0").IsFlushing())

	env.linker.collector("src_0").reset()
	_, err = env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 2
	}, 5*time.Second, time.Millisecond)
	env.linker.mu.Lock()
	require.Equal(t, 4, env.linker.added)
	require.Equal(t, 2, env.linker.noMorePads)
	env.linker.mu.Unlock()
	bufs, _ := env.linker.collector("src_0").snapshot()
	require.Len(t, bufs, 10)

	env.source.mu.Lock()
	require.Equal(t, []string{"pull:true", "pull:false", "pull:true"}, env.source.activations)
	env.source.mu.Unlock()
}

func TestPipelinePullSeek(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, false, SampleParams{Duration: time.Second})
	defer env.pipeline.Close(ctx)

	_, err := env.pipeline.SetState(ctx, pipeline.StatePlaying)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 1
	}, 5*time.Second, time.Millisecond)

	for _, name := range []string{"src_0", "src_1"} {
		env.linker.collector(name).reset()
	}
	target := pipeline.ClockTimeFromDuration(500 * time.Millisecond)
	ok := env.linker.sink("src_0").SendUpstreamEvent(ctx, &pipeline.EventSeek{
		Rate:      1,
		Format:    pipeline.FormatTime,
		Flags:     pipeline.SeekFlagFlush,
		StartType: pipeline.SeekTypeSet,
		Start:     int64(target),
		StopType:  pipeline.SeekTypeNone,
	})
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 2
	}, 5*time.Second, time.Millisecond)

	for _, name := range []string{"src_0", "src_1"} {
		bufs, events := env.linker.collector(name).snapshot()
		require.NotEmpty(t, bufs, name)
		require.GreaterOrEqual(t, bufs[0].PTS, target, name)
		require.True(t, bufs[0].Flags.Has(pipeline.BufferFlagDiscont), name)
		for _, buf := range bufs[1:] {
			require.False(t, buf.Flags.Has(pipeline.BufferFlagDiscont), name)
		}

		_, isFlushStart := events[0].(*pipeline.EventFlushStart)
		require.True(t, isFlushStart, name)
		_, isFlushStop := events[1].(*pipeline.EventFlushStop)
		require.True(t, isFlushStop, name)
		seg, isSegment := events[2].(*pipeline.EventSegment)
		require.True(t, isSegment, name)
		require.Equal(t, target, seg.Segment.Start)
		require.Equal(t, target, seg.Segment.Time)
	}

	pos, ok := env.linker.sink("src_0").(*sinkPad).peer.Load().QueryPosition(ctx, pipeline.FormatTime)
	require.True(t, ok)
	require.Equal(t, int64(980*time.Millisecond), pos)
}

func TestPipelineRateChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, false, SampleParams{Duration: 100 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.bus.count(isEOS) == 1
	}, 5*time.Second, time.Millisecond)

	ok := env.linker.sink("src_1").SendUpstreamEvent(ctx, &pipeline.EventSeek{
		Rate:      2,
		Format:    pipeline.FormatTime,
		StartType: pipeline.SeekTypeNone,
		StopType:  pipeline.SeekTypeNone,
	})
	require.True(t, ok)
	require.Equal(t, 2.0, env.pipeline.currentSegment().Rate)

	ok = env.linker.sink("src_1").SendUpstreamEvent(ctx, &pipeline.EventSeek{
		Rate:      1,
		Format:    pipeline.FormatBytes,
		StartType: pipeline.SeekTypeSet,
	})
	require.False(t, ok)
}

func TestPipelinePushPlaybackAndSeek(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, true, SampleParams{Duration: time.Second})
	defer env.pipeline.Close(ctx)

	var pushedFrom sync.WaitGroup
	env.source.onSeek = func(ev *pipeline.EventSeek) bool {
		if ev.Format != pipeline.FormatBytes {
			return false
		}
		src := env.pipeline.SourcePad()
		src.PushEvent(ctx, &pipeline.EventFlushStart{})
		src.PushEvent(ctx, &pipeline.EventFlushStop{ResetTime: true})
		pushedFrom.Add(1)
		go func() {
			defer pushedFrom.Done()
			env.pushAll(ctx, int(ev.Start))
		}()
		return true
	}

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Equal(t, pipeline.PadModePush, env.pipeline.SourcePad().Mode())
	require.Equal(t, pipeline.FlowOK, env.pushAll(ctx, 0))
	require.Equal(t, 1, env.bus.count(isEOS))

	audioBufs, _ := env.linker.collector("src_0").snapshot()
	require.Len(t, audioBufs, 50)

	for _, name := range []string{"src_0", "src_1"} {
		env.linker.collector(name).reset()
	}
	target := pipeline.ClockTimeFromDuration(300 * time.Millisecond)
	ok := env.linker.sink("src_1").SendUpstreamEvent(ctx, &pipeline.EventSeek{
		Rate:      1,
		Format:    pipeline.FormatTime,
		Flags:     pipeline.SeekFlagKeyUnit,
		StartType: pipeline.SeekTypeSet,
		Start:     int64(target),
		StopType:  pipeline.SeekTypeNone,
	})
	require.True(t, ok)
	pushedFrom.Wait()
	require.Equal(t, 2, env.bus.count(isEOS))

	env.source.mu.Lock()
	require.Len(t, env.source.seeks, 1)
	require.Equal(t, pipeline.FormatBytes, env.source.seeks[0].Format)
	require.NotZero(t, env.source.seeks[0].Flags&pipeline.SeekFlagFlush)
	env.source.mu.Unlock()

	// the video keyframe at 200ms is the earliest one needed
	keyPTS := pipeline.ClockTimeFromDuration(200 * time.Millisecond)
	videoBufs, _ := env.linker.collector("src_1").snapshot()
	require.NotEmpty(t, videoBufs)
	require.Equal(t, keyPTS, videoBufs[0].PTS)
	require.False(t, videoBufs[0].Flags.Has(pipeline.BufferFlagDeltaUnit))
	for _, name := range []string{"src_0", "src_1"} {
		bufs, events := env.linker.collector(name).snapshot()
		require.NotEmpty(t, bufs, name)
		require.GreaterOrEqual(t, bufs[0].PTS, keyPTS, name)
		require.LessOrEqual(t, bufs[0].PTS, target, name)
		require.True(t, bufs[0].Flags.Has(pipeline.BufferFlagDiscont), name)
		var seg *pipeline.EventSegment
		for _, ev := range events {
			if s, ok := ev.(*pipeline.EventSegment); ok {
				seg = s
				break
			}
		}
		require.NotNil(t, seg, name)
		require.Equal(t, keyPTS, seg.Segment.Start)
	}
}

func TestPipelinePushFlushing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, true, SampleParams{Duration: 100 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	src := env.pipeline.SourcePad()
	require.Equal(t, pipeline.FlowFlushing, src.Push(ctx, pipeline.NewBuffer([]byte{1})))

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.True(t, src.PushEvent(ctx, &pipeline.EventFlushStart{}))
	released := false
	buf := pipeline.NewBuffer(env.data)
	buf.OnRelease = func() { released = true }
	require.Equal(t, pipeline.FlowFlushing, src.Push(ctx, buf))
	require.True(t, released)
	require.True(t, src.PushEvent(ctx, &pipeline.EventFlushStop{}))
	require.False(t, src.PushEvent(ctx, &pipeline.EventQoS{}))
}

func TestPipelineAutoplugSkip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, true, SampleParams{Duration: 100 * time.Millisecond})
	defer env.pipeline.Close(ctx)
	env.linker.skip = "Video"

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Equal(t, pipeline.FlowOK, env.pushAll(ctx, 0))

	env.linker.mu.Lock()
	require.Equal(t, []string{"src_1"}, env.linker.unknown)
	require.Equal(t, 1, env.linker.added)
	env.linker.mu.Unlock()
	require.Equal(t, map[int]string{0: "Virtual PCM Decoder"}, env.pipeline.SelectedDecoders())
}

func TestPipelineAsyncPreroll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{AsyncStateChanges: true}, true, SampleParams{Duration: 100 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	ret, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateChangeAsync, ret)

	ret, state, err := env.pipeline.GetState(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateChangeAsync, ret)
	require.Equal(t, pipeline.StatePaused, state)

	ret, _, err = env.pipeline.GetState(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateChangeAsync, ret)

	go env.pushAll(ctx, 0)
	ret, state, err = env.pipeline.GetState(ctx, -1)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateChangeSuccess, ret)
	require.Equal(t, pipeline.StatePaused, state)
	require.Eventually(t, func() bool {
		return env.bus.count(func(msg pipeline.Message) bool {
			_, ok := msg.(*pipeline.MessageAsyncDone)
			return ok
		}) == 1
	}, 5*time.Second, time.Millisecond)
}

func TestPipelineGarbageInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, false, SampleParams{})
	defer env.pipeline.Close(ctx)
	env.source.data = []byte("definitely not a container")

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.bus.count(isError) == 1
	}, 5*time.Second, time.Millisecond)
	env.linker.mu.Lock()
	require.Zero(t, env.linker.added)
	env.linker.mu.Unlock()
}

func TestPipelineQoS(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, true, SampleParams{Duration: 100 * time.Millisecond})
	defer env.pipeline.Close(ctx)

	_, err := env.pipeline.SetState(ctx, pipeline.StatePaused)
	require.NoError(t, err)
	require.Equal(t, pipeline.FlowOK, env.pushAll(ctx, 0))

	ev := &pipeline.EventQoS{Type: pipeline.QoSTypeUnderflow, Proportion: 1.5, Diff: 1000, Timestamp: 5}
	require.True(t, env.linker.sink("src_0").SendUpstreamEvent(ctx, ev))
	require.Equal(t, []pipeline.EventQoS{*ev}, env.pipeline.QoSEvents())
}

package avbridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pipeline/virtual"
	"github.com/xaionaro-go/avbridge/reader"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type loggingReader struct {
	reader.AsyncReader
	log *callLog
}

func (r *loggingReader) BeginFlush(ctx context.Context) error {
	r.log.add("reader begin-flush")
	return r.AsyncReader.BeginFlush(ctx)
}

func (r *loggingReader) EndFlush(ctx context.Context) error {
	r.log.add("reader end-flush")
	return r.AsyncReader.EndFlush(ctx)
}

type loggingSourcePad struct {
	pipeline.SourcePad
	log *callLog
}

func (p *loggingSourcePad) PushEvent(ctx context.Context, ev pipeline.Event) bool {
	p.log.add(fmt.Sprintf("src %T", ev))
	return true
}

type loggingPipeline struct {
	pipeline.Pipeline
	srcPad *loggingSourcePad
}

func (p *loggingPipeline) SourcePad() pipeline.SourcePad {
	return p.srcPad
}

func TestSourceBridgeFlushingSeekOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, virtual.SampleParams{Duration: 100 * time.Millisecond}, virtual.Config{})
	env.connect()

	log := &callLog{}
	conn := *env.filter.getConnection()
	conn.reader = &loggingReader{AsyncReader: conn.reader, log: log}
	conn.pipeline = &loggingPipeline{
		Pipeline: conn.pipeline,
		srcPad:   &loggingSourcePad{SourcePad: conn.pipeline.SourcePad(), log: log},
	}
	s := newSourceBridge(env.filter, &conn)

	require.True(t, s.handleEvent(ctx, &pipeline.EventSeek{
		Rate:      1,
		Format:    pipeline.FormatBytes,
		Flags:     pipeline.SeekFlagFlush,
		StartType: pipeline.SeekTypeSet,
		Start:     16,
	}))
	require.Equal(t, []string{
		"src *pipeline.EventFlushStart",
		"reader begin-flush",
		"src *pipeline.EventFlushStop",
		"reader end-flush",
	}, log.get())
	require.Equal(t, int64(16), s.NextOffset())
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avbridge"
	"github.com/xaionaro-go/avbridge/dispatcher"
	"github.com/xaionaro-go/avbridge/gst"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pipeline/virtual"
	"github.com/xaionaro-go/avbridge/reader"
	"github.com/xaionaro-go/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] [<file>]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	backend := pflag.String("backend", "gst", "the pipeline implementation: 'gst' or 'virtual'")
	pushMode := pflag.Bool("push-mode", false, "prefer push scheduling of the upstream reader")
	workers := pflag.Int("workers", 4, "the amount of dispatcher workers")
	discoveryTimeout := pflag.Duration("discovery-timeout", 10*time.Second, "how long to wait for the streams to be exposed")
	sampleDuration := pflag.Duration("sample-duration", 5*time.Second, "the duration of the synthesized stream played when no file is given (virtual backend only)")
	pflag.Parse()
	if len(pflag.Args()) > 1 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	var factory pipeline.Factory
	switch *backend {
	case "gst":
		factory = gst.NewFactory(gst.DefaultConfig())
	case "virtual":
		factory = virtual.NewFactory(virtual.Config{})
	default:
		l.Fatalf("unknown backend '%s'", *backend)
	}

	source, size, err := openSource(pflag.Arg(0), *sampleDuration)
	if err != nil {
		l.Fatal(err)
	}
	if c, ok := source.(io.Closer); ok {
		defer c.Close()
	}

	r := reader.NewReaderAt(ctx, source, size)
	defer r.Close()
	d := dispatcher.New(ctx, dispatcher.OptionWorkers(*workers))
	defer d.Close()

	f := avbridge.New(ctx,
		avbridge.OptionPipelineFactory{Factory: factory},
		avbridge.OptionDispatcher{Dispatcher: d},
		avbridge.OptionDiscoveryTimeout(*discoveryTimeout),
		avbridge.OptionPreferPush(*pushMode),
	)
	defer func() {
		if err := f.Close(ctx); err != nil {
			l.Error(err)
		}
	}()

	l.Debugf("connecting to %s...", r)
	if err := f.Connect(ctx, r, mediatype.NewStream(mediatype.SubtypeAny)); err != nil {
		l.Fatal(err)
	}

	ports := f.OutputPorts()
	if len(ports) == 0 {
		l.Fatal("no streams found")
	}
	sinks := make([]*countingSink, 0, len(ports))
	for _, port := range ports {
		sink := newCountingSink(port.Name())
		if err := port.Connect(ctx, sink); err != nil {
			l.Fatalf("unable to connect %s: %v", port, err)
		}
		sinks = append(sinks, sink)
		fmt.Printf("%s: %s\n", port.Name(), port.MediaType())
	}

	if err := f.Run(ctx, 0); err != nil {
		l.Fatal(err)
	}

	errGroup, groupCtx := errgroup.WithContext(ctx)
	playbackDone := make(chan struct{})
	errGroup.Go(func() error {
		defer close(playbackDone)
		for _, sink := range sinks {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case <-sink.eosCh:
			}
		}
		return nil
	})
	errGroup.Go(func() error {
		select {
		case <-playbackDone:
			return nil
		case err := <-f.ErrorChan():
			return err
		}
	})
	errGroup.Go(func() error {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-playbackDone:
				return nil
			case <-groupCtx.Done():
				return nil
			case <-t.C:
				for _, sink := range sinks {
					fmt.Println(sink)
				}
			}
		}
	})
	waitErr := errGroup.Wait()

	if err := f.Stop(ctx); err != nil {
		l.Error(err)
	}
	for _, port := range ports {
		statsJSON, err := json.Marshal(port.Statistics())
		if err != nil {
			l.Fatal(err)
		}
		fmt.Printf("%s: %s\n", port.Name(), statsJSON)
	}
	if err := f.Disconnect(ctx); err != nil {
		l.Error(err)
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		l.Fatal(waitErr)
	}
}

func openSource(
	path string,
	sampleDuration time.Duration,
) (io.ReaderAt, int64, error) {
	if path == "" {
		data, err := virtual.EncodeBytes(virtual.SampleContainer(virtual.SampleParams{
			Duration: sampleDuration,
		}))
		if err != nil {
			return nil, 0, fmt.Errorf("unable to synthesize a stream: %w", err)
		}
		return bytes.NewReader(data), int64(len(data)), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("unable to stat '%s': %w", path, err)
	}
	return file, info.Size(), nil
}

// filter_state.go provides the Stopped/Paused/Running state machine.

package avbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

// Pause prerolls the pipeline. It returns types.ErrStateIntermediate if
// the pipeline completes the transition asynchronously; poll GetState then.
func (f *Filter) Pause(ctx context.Context) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Pause")
	defer func() { logger.Debugf(ctx, "/Pause: %v", _err) }()
	return xsync.DoA1R1(ctx, &f.stateChangeLocker, f.pause, ctx)
}

func (f *Filter) pause(ctx context.Context) error {
	conn := f.getConnection()
	if conn == nil {
		return graph.ErrNotConnected
	}

	switch f.getState() {
	case types.StatePaused:
		return nil
	case types.StateRunning:
		ret, err := conn.pipeline.SetState(ctx, pipeline.StatePaused)
		if err != nil {
			return fmt.Errorf("unable to pause the pipeline: %w", err)
		}
		f.setState(ctx, types.StatePaused)
		if ret == pipeline.StateChangeAsync {
			return types.ErrStateIntermediate
		}
		return nil
	}

	if err := f.activatePorts(ctx); err != nil {
		f.deactivatePorts(ctx)
		return err
	}
	if conn.pool != nil {
		if err := conn.pool.Commit(ctx); err != nil {
			f.deactivatePorts(ctx)
			return fmt.Errorf("unable to commit the input allocator: %w", err)
		}
	}
	ret, err := conn.pipeline.SetState(ctx, pipeline.StatePaused)
	if err != nil {
		f.deactivatePorts(ctx)
		return fmt.Errorf("unable to pause the pipeline: %w", err)
	}
	f.setState(ctx, types.StatePaused)
	if ret == pipeline.StateChangeAsync {
		return types.ErrStateIntermediate
	}
	return nil
}

// Run starts the data flow; start is the nominal stream start time.
func (f *Filter) Run(ctx context.Context, start types.ReferenceTime) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Run(%s)", start)
	defer func() { logger.Debugf(ctx, "/Run(%s): %v", start, _err) }()
	return xsync.DoA2R1(ctx, &f.stateChangeLocker, f.run, ctx, start)
}

func (f *Filter) run(ctx context.Context, start types.ReferenceTime) error {
	conn := f.getConnection()
	if conn == nil {
		return graph.ErrNotConnected
	}
	switch f.getState() {
	case types.StateRunning:
		return nil
	case types.StateStopped:
		if err := f.pause(ctx); err != nil && !errors.Is(err, types.ErrStateIntermediate) {
			return err
		}
	}

	conn.source.ensurePushing(ctx)
	f.locker.Do(ctx, func() {
		f.startTime = start
	})
	ret, err := conn.pipeline.SetState(ctx, pipeline.StatePlaying)
	if err != nil {
		return fmt.Errorf("unable to start the pipeline: %w", err)
	}
	f.setState(ctx, types.StateRunning)
	if ret == pipeline.StateChangeAsync {
		return types.ErrStateIntermediate
	}
	return nil
}

// Stop returns the pipeline to ready and waits for it to acknowledge it.
func (f *Filter) Stop(ctx context.Context) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()
	return xsync.DoA1R1(ctx, &f.stateChangeLocker, f.stop, ctx)
}

func (f *Filter) stop(ctx context.Context) error {
	conn := f.getConnection()
	if conn == nil || f.getState() == types.StateStopped {
		f.setState(ctx, types.StateStopped)
		return nil
	}

	// the pipeline sends a flush-start without a flush-stop on its way
	// to ready, see quirks.go
	f.suppressFlush.Store(true)
	defer f.suppressFlush.Store(false)

	// decommitting first wakes up streaming threads waiting for samples
	f.deactivatePorts(ctx)

	var errs []error
	if _, err := conn.pipeline.SetState(ctx, pipeline.StateReady); err != nil {
		errs = append(errs, fmt.Errorf("unable to stop the pipeline: %w", err))
	} else if err := f.waitPipelineState(ctx, conn.pipeline); err != nil {
		errs = append(errs, err)
	}
	f.setState(ctx, types.StateStopped)

	if conn.pool != nil {
		if err := conn.pool.Decommit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to decommit the input allocator: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetState returns the state of the filter, with types.ErrStateIntermediate
// while the pipeline has not completed the transition within the timeout.
// A negative timeout waits forever.
func (f *Filter) GetState(ctx context.Context, timeout time.Duration) (types.State, error) {
	state := f.getState()
	conn := f.getConnection()
	if conn == nil {
		return state, nil
	}
	ret, _, err := conn.pipeline.GetState(ctx, timeout)
	switch {
	case err != nil:
		return state, fmt.Errorf("unable to get the state of the pipeline: %w", err)
	case ret == pipeline.StateChangeAsync:
		return state, types.ErrStateIntermediate
	}
	return state, nil
}

func (f *Filter) activatePorts(ctx context.Context) error {
	var errs []error
	for _, port := range f.OutputPorts() {
		if err := port.activate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to activate port '%s': %w", port.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Filter) deactivatePorts(ctx context.Context) {
	for _, port := range f.OutputPorts() {
		port.deactivate(ctx)
	}
}

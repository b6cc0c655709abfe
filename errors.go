package avbridge

import (
	"fmt"

	"github.com/xaionaro-go/avbridge/pipeline"
)

type ErrBuildPipeline struct {
	Err error
}

func (e ErrBuildPipeline) Error() string {
	return fmt.Sprintf("unable to build the pipeline: %v", e.Err)
}

func (e ErrBuildPipeline) Unwrap() error {
	return e.Err
}

type ErrPadLink struct {
	Pad  string
	Port string
	Err  error
}

func (e ErrPadLink) Error() string {
	return fmt.Sprintf("unable to link pad '%s' to port '%s': %v", e.Pad, e.Port, e.Err)
}

func (e ErrPadLink) Unwrap() error {
	return e.Err
}

// ErrPushFailed is reported when the pipeline refuses the pushed input
// with a fatal flow status.
type ErrPushFailed struct {
	Flow pipeline.FlowReturn
}

func (e ErrPushFailed) Error() string {
	return fmt.Sprintf("the pipeline refused the input: %s", e.Flow)
}

// ErrPipeline is an error posted by the pipeline on its bus.
type ErrPipeline struct {
	Source string
	Debug  string
	Err    error
}

func (e ErrPipeline) Error() string {
	if e.Debug == "" {
		return fmt.Sprintf("pipeline error from '%s': %v", e.Source, e.Err)
	}
	return fmt.Sprintf("pipeline error from '%s': %v (%s)", e.Source, e.Err, e.Debug)
}

func (e ErrPipeline) Unwrap() error {
	return e.Err
}

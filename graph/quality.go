package graph

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/types"
)

type QualityMessageType int

const (
	QualityFamine = QualityMessageType(iota)
	QualityFlood
)

func (t QualityMessageType) String() string {
	switch t {
	case QualityFamine:
		return "famine"
	case QualityFlood:
		return "flood"
	}
	return fmt.Sprintf("unknown-quality-type-%d", int(t))
}

// Quality is a downstream report on how well it keeps up with the data.
type Quality struct {
	Type       QualityMessageType
	Proportion int64 // in 1/1000 of the nominal rate
	Late       types.ReferenceTime
	TimeStamp  types.ReferenceTime
}

// QualitySink receives quality notifications instead of the pipeline.
type QualitySink interface {
	Notify(ctx context.Context, q Quality) error
}

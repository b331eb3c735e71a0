package output

import (
	"errors"

	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

// Output interface for different output types
type Output interface {
	UpdateSample(sample shared.Sample, stats shared.LatencyStats)
	ReportError(kind probe.ErrorKind, err error)
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) UpdateSample(sample shared.Sample, stats shared.LatencyStats) {
	for _, o := range om.outputs {
		o.UpdateSample(sample, stats)
	}
}

func (om *OutputManager) ReportError(kind probe.ErrorKind, err error) {
	for _, o := range om.outputs {
		o.ReportError(kind, err)
	}
}

// Close closes every output and returns the joined errors
func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}

package transfer

import (
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Factory assembles the transfer strategy a run asked for, wrapped in
// the fallback coordinator. The bucket client may be nil when no object
// store is configured, which restricts the available methods to direct.
type Factory struct {
	Files      HostFiles
	Bucket     BucketClient
	BucketName string
	SpoolDir   string
	Retry      RetryPolicy
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
}

// ForMethod builds the coordinator for the requested method. Direct
// falls back to the object store when one is configured; the object
// store falls back to direct; hybrid has no fallback because it already
// spans both paths.
func (f *Factory) ForMethod(method refresh.TransferMethod) (refresh.Transfer, error) {
	direct := NewDirect(f.Files, f.SpoolDir, f.Logger, f.Metrics)

	var object *ObjectStore
	if f.Bucket != nil {
		object = NewObjectStore(f.Files, f.Bucket, f.BucketName, f.SpoolDir, f.Retry, f.Logger, f.Metrics)
	}

	switch method {
	case refresh.TransferDirect:
		if object != nil {
			return NewCoordinator(direct, object, f.Logger), nil
		}
		return NewCoordinator(direct, nil, f.Logger), nil

	case refresh.TransferObjectStore:
		if object == nil {
			return nil, fmt.Errorf("objectstore transfer requested but no object store configured")
		}
		return NewCoordinator(object, direct, f.Logger), nil

	case refresh.TransferHybrid:
		if object == nil {
			return nil, fmt.Errorf("hybrid transfer requested but no object store configured")
		}
		return NewCoordinator(NewHybrid(object, direct, f.Logger, f.Metrics), nil, f.Logger), nil

	default:
		return nil, fmt.Errorf("unknown transfer method: %s", method)
	}
}

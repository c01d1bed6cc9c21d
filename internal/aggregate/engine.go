package aggregate

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// defaultRemoteTimeout bounds one remote-procedure call so a stalled remote
// leaves budget for the fallback path.
const defaultRemoteTimeout = 5 * time.Second

// FallbackEngine selects between the remote and local paths: remote whenever
// it is capable of the request, local for windowed rollups and whenever the
// remote call fails.
type FallbackEngine struct {
	remote        Engine
	local         Engine
	remoteTimeout time.Duration
}

// NewFallbackEngine combines a remote primary with a local fallback.
func NewFallbackEngine(remote, local Engine) *FallbackEngine {
	return &FallbackEngine{remote: remote, local: local, remoteTimeout: defaultRemoteTimeout}
}

// Aggregate implements Engine.
func (e *FallbackEngine) Aggregate(ctx context.Context, filter FilterCriteria) (*PageResult, error) {
	filter = filter.Normalized()

	if filter.TimeRange != TimeRangeAll || e.remote == nil {
		return e.localOrUnavailable(ctx, filter, nil)
	}

	remoteCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	result, errRemote := e.remote.Aggregate(remoteCtx, filter)
	cancel()
	if errRemote == nil {
		return result, nil
	}

	if IsProcIncompatible(errRemote) {
		log.WithError(errRemote).Debug("aggregate: remote procedure incompatible, using local path")
	} else {
		log.WithError(errRemote).Warn("aggregate: remote procedure failed, retrying on local path")
	}
	return e.localOrUnavailable(ctx, filter, errRemote)
}

// localOrUnavailable runs the local path, folding a preceding remote failure
// into the data-unavailable error when both paths are down.
func (e *FallbackEngine) localOrUnavailable(ctx context.Context, filter FilterCriteria, remoteErr error) (*PageResult, error) {
	result, errLocal := e.local.Aggregate(ctx, filter)
	if errLocal == nil {
		return result, nil
	}
	if remoteErr != nil && !IsProcIncompatible(remoteErr) {
		return nil, fmt.Errorf("%w: remote: %v; local: %v", ErrDataUnavailable, remoteErr, errLocal)
	}
	return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, errLocal)
}

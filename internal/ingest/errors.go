package ingest

import (
	"errors"
	"fmt"
)

// ErrRunActive is returned when a run is requested while another is in
// progress.
var ErrRunActive = errors.New("a run is already in progress")

// ErrRemoteUnavailable is returned for a non-dry run on a pipeline that has
// no remote index credentials.
var ErrRemoteUnavailable = errors.New("remote index not configured: only dry runs are allowed")

// PersistError reports an asset whose merged metadata could not be saved.
// Removed is true when the orphaned asset was deleted again.
type PersistError struct {
	AssetID string
	Removed bool
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save metadata for %s: %v", e.AssetID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

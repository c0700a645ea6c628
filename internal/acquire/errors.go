package acquire

import "fmt"

// SourceExhaustedError reports that every source candidate for an asset
// failed. Last holds the error from the final candidate attempted.
type SourceExhaustedError struct {
	AssetID string
	Last    error
}

func (e *SourceExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("all sources exhausted for %s: %v", e.AssetID, e.Last)
	}
	return fmt.Sprintf("all sources exhausted for %s", e.AssetID)
}

func (e *SourceExhaustedError) Unwrap() error { return e.Last }

// ExtractionError reports an archive that downloaded fine but did not
// contain the expected executable.
type ExtractionError struct {
	AssetID    string
	Executable string
	Reason     string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: executable %q: %s", e.AssetID, e.Executable, e.Reason)
}

// FilesystemError reports a destination that could not be prepared or
// written, independent of any network source.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem: %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

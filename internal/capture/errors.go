package capture

import "errors"

var (
	ErrDetection             = errors.New("paper detection failed")
	ErrExtraction            = errors.New("paper extraction failed")
	ErrCapabilityUnavailable = errors.New("document detection unavailable")
	ErrNoFrame               = errors.New("camera is not ready")
	ErrNothingCaptured       = errors.New("no image captured")
)

package podtypes

import "errors"

// Deploy/* error kinds: fatal for the specific deploy call that
// triggers them, surfaced to the caller rather than retried.
var (
	ErrMissingImage           = errors.New("deploy: missing image or dockerfile")
	ErrMissingDockerfile      = errors.New("deploy: dockerfile set without a build context")
	ErrBothImageAndDockerfile = errors.New("deploy: exactly one of image or dockerfile must be set")
)

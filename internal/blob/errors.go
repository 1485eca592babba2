package blob

import "errors"

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("blob not found")

// ErrMissingBucket is returned when the s3 driver is selected without a bucket.
var ErrMissingBucket = errors.New("s3 bucket is required")

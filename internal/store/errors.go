package store

import "errors"

// ErrMissingDSN indicates that the postgres dialect was selected without a DSN.
var ErrMissingDSN = errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN")

// ErrUnsupportedDialect indicates an unknown DB_DIALECT value.
var ErrUnsupportedDialect = errors.New("unsupported DB_DIALECT")

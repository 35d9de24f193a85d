package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidInput           = errors.New("invalid input")
	ErrDataSourceInactive     = errors.New("data source is inactive")
	ErrUnknownConnectorType   = errors.New("unknown connector type")
	ErrNotConnected           = errors.New("connector is not connected")
	ErrQueryTimeout           = errors.New("Query timeout")
	ErrCredentialsKeyMismatch = errors.New("data source credentials were encrypted with a different key")
)

package config

import "errors"

var (
	ErrParsingConfig      = errors.New("failed to parse environment variables into config")
	ErrNilPointer         = errors.New("nil pointer provided to config loader")
	ErrReadDefinitions    = errors.New("failed to read state definitions")
	ErrInvalidDefinitions = errors.New("invalid state definitions")
)

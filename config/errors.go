// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidMinLevel    = errors.New("invalid minimum trace level")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidPoolSize    = errors.New("invalid worker pool size")
	ErrInvalidTimeout     = errors.New("invalid timeout")
	ErrInvalidMailboxSize = errors.New("invalid mailbox size")
	ErrInvalidOverflow    = errors.New("invalid overflow policy")
	ErrInvalidSinkType    = errors.New("invalid sink type")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrUnsupportedFormat  = errors.New("unsupported configuration format")
	ErrWatcherUnavailable = errors.New("configuration watcher not available")
)

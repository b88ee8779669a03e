package services

import "errors"

// Task errors
var (
	ErrTaskNotFound     = errors.New("task: not found")
	ErrTaskInvalidInput = errors.New("task: invalid input")
	ErrTaskUnavailable  = errors.New("task: harness unavailable")
)

// Project errors
var (
	ErrProjectNotFound     = errors.New("project: not found")
	ErrProjectInvalidInput = errors.New("project: invalid input")
	ErrProjectStoreClosed  = errors.New("project: store closed")
)

// PPT workflow errors
var (
	ErrStagePrerequisite = errors.New("ppt: stage prerequisites missing")
	ErrOutlineFailed     = errors.New("ppt: outline generation failed")
)

// Progress hub errors
var (
	ErrHubClosed = errors.New("progress: hub closed")
)

// KV errors
var (
	ErrKVCorrupt = errors.New("kv: corrupt value")
)

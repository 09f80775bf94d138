package service

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrCodeNotFound       = errors.New("code expired or invalid, please resend")
	ErrCodeMismatch       = errors.New("invalid code")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrProjectNotFound    = errors.New("project not found")
	ErrSelfLike           = errors.New("cannot like your own project")
	ErrNotProjectOwner    = errors.New("only the project owner can modify it")
)

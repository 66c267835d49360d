package repository

import "errors"

var (
	ErrNotFound      = errors.New("record not found")
	ErrAttemptExists = errors.New("an active attempt already exists")
)

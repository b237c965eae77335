package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable: a fonte externa falhou (conexão, DNS, timeout, não-2xx, decode).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStoreFailure: erro de persistência durante a passada; nada foi confirmado.
	ErrStoreFailure = errors.New("store failure")

	ErrNotFound = errors.New("regional not found")

	// ErrSuspiciousEmpty só aparece com RefuseEmpty ligado.
	ErrSuspiciousEmpty = errors.New("external list is empty; refusing to deactivate every record")
)

type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.Cause} }

type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreFailure, e.Cause} }

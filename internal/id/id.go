// Package id generates identifiers for batches.
package id

import "github.com/google/uuid"

func New() string {
	return uuid.NewString()
}

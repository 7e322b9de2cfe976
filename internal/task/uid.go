package task

import (
	"math/big"

	"github.com/google/uuid"
)

// NewUID returns a fresh unique identifier rendered as a decimal integer.
// Used for local task pids and generated runscript stems.
func NewUID() string {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:]).String()
}

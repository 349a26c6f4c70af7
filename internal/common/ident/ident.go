// Package ident generates the prefixed identifiers used for every stored
// entity, e.g. "tsk_3f9c01ab22de".
package ident

import (
	"strings"

	"github.com/google/uuid"
)

// Kind selects the entity prefix.
type Kind string

const (
	KindProject Kind = "prj"
	KindSession Kind = "ses"
	KindQueue   Kind = "que"
	KindTask    Kind = "tsk"
	KindPrompt  Kind = "prm"
)

// entropyLen is the number of hex characters following the prefix.
const entropyLen = 12

// New returns a fresh identifier for the given kind.
func New(kind Kind) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return string(kind) + "_" + raw[:entropyLen]
}

// Suffix returns the last n characters of an ID, used for friendly task
// names. Short IDs are returned whole.
func Suffix(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}

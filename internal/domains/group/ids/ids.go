// Package ids generates the prefixed identifiers GLKDC hands out for
// events, system messages, and rotation requests, using
// github.com/google/uuid — a teacher go.mod dependency pulled in
// transitively, promoted to direct use here the same way the teacher's own
// usecase layer generates prefixed IDs via an injected GenerateID function.
package ids

import "github.com/google/uuid"

func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func EventID() string      { return New("gevt") }
func MessageID() string    { return New("gevtmsg") }
func KeyRecordID() string  { return New("kr") }
func RequestID() string    { return New("greq") }

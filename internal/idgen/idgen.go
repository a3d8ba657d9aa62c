// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// UtterancePrefix is prepended to every utterance ID.
const UtterancePrefix = "ut-"

// MessagePrefix is prepended to every assistant message ID.
const MessagePrefix = "msg-"

// alphabet defines the character set used for the random portion of the ID.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// length is the number of random characters generated (excluding the prefix).
const length = 10

// Utterance returns a new unique utterance ID.
func Utterance() (string, error) {
	return generate(UtterancePrefix)
}

// Message returns a new unique assistant message ID.
func Message() (string, error) {
	return generate(MessagePrefix)
}

func generate(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

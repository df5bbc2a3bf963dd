package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyKey(t *testing.T) {
	updated := time.Now().Add(-time.Hour)
	lastAt := time.Now()

	withLast := Conversation{
		UpdatedAt:   updated,
		LastMessage: &Message{CreatedAt: lastAt},
	}
	assert.Equal(t, lastAt, withLast.RecencyKey())

	withoutLast := Conversation{UpdatedAt: updated}
	assert.Equal(t, updated, withoutLast.RecencyKey())

	zeroLast := Conversation{UpdatedAt: updated, LastMessage: &Message{}}
	assert.Equal(t, updated, zeroLast.RecencyKey())
}

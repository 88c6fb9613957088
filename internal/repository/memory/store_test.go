package memory

import (
	"context"
	"testing"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/repository/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) *domain.Store { return NewStore() })
}

func TestAppend_UnknownChat(t *testing.T) {
	store := NewStore()
	err := store.Snippets.Append(context.Background(), &domain.CodeSnippet{ChatID: uuid.New(), Code: "x"})
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

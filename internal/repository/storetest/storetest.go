// Package storetest holds the behavioral suite every storage backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) *domain.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("chat ownership", func(t *testing.T) { testChatOwnership(t, newStore(t)) })
	t.Run("logs", func(t *testing.T) { testLogs(t, newStore(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

func newUser(t *testing.T, store *domain.Store, email string) *domain.User {
	t.Helper()
	user := &domain.User{Name: "Ada", Email: email, PasswordHash: "hash"}
	require.NoError(t, store.Users.Create(context.Background(), user))
	return user
}

func testUsers(t *testing.T, store *domain.Store) {
	ctx := context.Background()
	user := newUser(t, store, "ada@x.io")

	err := store.Users.Create(ctx, &domain.User{Name: "Eve", Email: "ada@x.io", PasswordHash: "hash"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	got, err := store.Users.GetByEmail(ctx, "ada@x.io")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got.Name = "Ada L."
	require.NoError(t, store.Users.Update(ctx, got))

	byID, err := store.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "Ada L.", byID.Name)

	missing, err := store.Users.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	users, err := store.Users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	deletedAt := time.Now().UTC()
	byID.DeletedAt = &deletedAt
	require.NoError(t, store.Users.Update(ctx, byID))

	users, err = store.Users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func testChatOwnership(t *testing.T, store *domain.Store) {
	ctx := context.Background()
	owner := newUser(t, store, "owner@x.io")
	other := newUser(t, store, "other@x.io")

	chat := &domain.Chat{OwnerID: owner.ID, Name: "Draft"}
	require.NoError(t, store.Chats.Create(ctx, chat))

	notMine, err := store.Chats.GetOwned(ctx, other.ID, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, notMine)

	renamed, err := store.Chats.Rename(ctx, other.ID, chat.ID, "Stolen", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, renamed)

	deleted, err := store.Chats.Delete(ctx, other.ID, chat.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	list, err := store.Chats.ListByOwner(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	renamed, err = store.Chats.Rename(ctx, owner.ID, chat.ID, "Sorter", time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, "Sorter", renamed.Name)

	list, err = store.Chats.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Sorter", list[0].Name)
}

func testLogs(t *testing.T, store *domain.Store) {
	ctx := context.Background()
	owner := newUser(t, store, "owner@x.io")

	chat := &domain.Chat{OwnerID: owner.ID, Name: "Draft"}
	require.NoError(t, store.Chats.Create(ctx, chat))

	none, err := store.Transcripts.Latest(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first := &domain.Transcript{ChatID: chat.ID, AuthorID: owner.ID, Text: "sort a list"}
	second := &domain.Transcript{ChatID: chat.ID, AuthorID: owner.ID, Text: "in reverse", AudioKey: "audio/1.webm"}
	require.NoError(t, store.Transcripts.Append(ctx, first))
	require.NoError(t, store.Transcripts.Append(ctx, second))
	assert.Greater(t, second.Seq, first.Seq)

	edited, err := store.Transcripts.UpdateText(ctx, chat.ID, first.ID, "sort a slice", time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, edited)
	assert.Equal(t, first.Seq, edited.Seq)
	assert.Equal(t, "sort a slice", edited.Text)

	wrongChat, err := store.Transcripts.UpdateText(ctx, uuid.New(), first.ID, "x", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, wrongChat)

	latest, err := store.Transcripts.Latest(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "audio/1.webm", latest.AudioKey)

	transcripts, err := store.Transcripts.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, transcripts, 2)
	assert.Equal(t, "sort a slice", transcripts[0].Text)

	for _, code := range []string{"a()", "b()"} {
		require.NoError(t, store.Snippets.Append(ctx, &domain.CodeSnippet{ChatID: chat.ID, Language: "go", Code: code}))
	}
	snippets, err := store.Snippets.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "a()", snippets[0].Code)
	assert.Less(t, snippets[0].Seq, snippets[1].Seq)

	lastCode, err := store.Snippets.Latest(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, lastCode)
	assert.Equal(t, "b()", lastCode.Code)

	deleted, err := store.Chats.Delete(ctx, owner.ID, chat.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	transcripts, err = store.Transcripts.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, transcripts)

	snippets, err = store.Snippets.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func testConcurrentAppends(t *testing.T, store *domain.Store) {
	ctx := context.Background()
	owner := newUser(t, store, "owner@x.io")

	chat := &domain.Chat{OwnerID: owner.ID, Name: "Draft"}
	require.NoError(t, store.Chats.Create(ctx, chat))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Snippets.Append(ctx, &domain.CodeSnippet{
				ChatID:   chat.ID,
				Language: "go",
				Code:     fmt.Sprintf("v%d()", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snippets, err := store.Snippets.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, snippets, n)
	for i := 1; i < n; i++ {
		assert.Less(t, snippets[i-1].Seq, snippets[i].Seq)
	}

	lastCode, err := store.Snippets.Latest(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, snippets[n-1].ID, lastCode.ID)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nightjar-labs/linkbrief-back/internal/db"
	"github.com/nightjar-labs/linkbrief-back/internal/notify"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&db.User{}))
	require.NoError(t, gdb.AutoMigrate(&db.Bookmark{}))
	return gdb
}

func setupBookmarks(t *testing.T) (*Bookmarks, *notify.Hub) {
	t.Helper()

	logger := zap.NewNop().Sugar()
	hub := notify.NewHub(nil, logger)
	t.Cleanup(hub.Close)
	return NewBookmarks(setupTestDB(t), hub, logger), hub
}

func strPtr(s string) *string { return &s }

func fields(url string) BookmarkFields {
	return BookmarkFields{
		URL:         url,
		Title:       "Title",
		Favicon:     strPtr("https://site.com/f.ico"),
		Summary:     "- **point**",
		GeneratedAt: time.Now().UTC(),
	}
}

func TestAppendAssignsOpaqueID(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	first, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)
	second, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestAppendRejectsRelativeURL(t *testing.T) {
	s, _ := setupBookmarks(t)

	_, err := s.Append(context.Background(), 1, fields("/relative"))
	assert.Equal(t, ErrBookmarkURLInvalid, err)
}

func TestListReturnsOnlyOwnBookmarksInOrder(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	_, err := s.Append(ctx, 1, fields("https://site.com/first"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond) // created_at is the sort key
	_, err = s.Append(ctx, 1, fields("https://site.com/second"))
	require.NoError(t, err)
	_, err = s.Append(ctx, 2, fields("https://site.com/other-user"))
	require.NoError(t, err)

	got, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://site.com/first", got[0].URL)
	assert.Equal(t, "https://site.com/second", got[1].URL)
}

func TestRegenerateTouchesDerivedFieldsOnly(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Hour)
	updated, err := s.Regenerate(ctx, 1, created.ID, BookmarkFields{
		Title:       "New Title",
		Favicon:     nil,
		Summary:     "- fresh",
		GeneratedAt: later,
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.URL, updated.URL)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, "- fresh", updated.Summary)
	assert.Nil(t, updated.Favicon)
	assert.WithinDuration(t, later, updated.GeneratedAt, time.Second)
	assert.WithinDuration(t, created.CreatedAt, updated.CreatedAt, time.Second)
}

func TestRegenerateUnknownBookmark(t *testing.T) {
	s, _ := setupBookmarks(t)

	_, err := s.Regenerate(context.Background(), 1, "missing", fields("https://site.com"))
	assert.Equal(t, ErrBookmarkNotFound, err)
}

func TestRegenerateIsOwnerScoped(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	_, err = s.Regenerate(ctx, 2, created.ID, fields("https://site.com/a"))
	assert.Equal(t, ErrBookmarkNotFound, err)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	token, err := s.RequestDelete(ctx, 1, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Requesting is not deleting.
	got, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.ConfirmDelete(ctx, 1, token))

	got, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Tokens are single-use.
	assert.Equal(t, ErrDeleteTokenInvalid, s.ConfirmDelete(ctx, 1, token))
}

func TestConfirmDeleteRejectsExpiredToken(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	token, err := s.RequestDelete(ctx, 1, created.ID)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(deleteTokenTTL + time.Minute) }
	assert.Equal(t, ErrDeleteTokenInvalid, s.ConfirmDelete(ctx, 1, token))

	s.now = time.Now
	got, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRequestDeleteSweepsExpiredTokens(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	first, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)
	second, err := s.Append(ctx, 1, fields("https://site.com/b"))
	require.NoError(t, err)

	stale, err := s.RequestDelete(ctx, 1, first.ID)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(deleteTokenTTL + time.Minute) }
	fresh, err := s.RequestDelete(ctx, 1, second.ID)
	require.NoError(t, err)

	s.mu.Lock()
	_, staleKept := s.pending[stale]
	_, freshKept := s.pending[fresh]
	pendingLen := len(s.pending)
	s.mu.Unlock()

	assert.False(t, staleKept)
	assert.True(t, freshKept)
	assert.Equal(t, 1, pendingLen)
}

func TestConfirmDeleteRejectsOtherUsersToken(t *testing.T) {
	s, _ := setupBookmarks(t)
	ctx := context.Background()

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)

	token, err := s.RequestDelete(ctx, 1, created.ID)
	require.NoError(t, err)

	assert.Equal(t, ErrDeleteTokenInvalid, s.ConfirmDelete(ctx, 2, token))
}

func TestRequestDeleteUnknownBookmark(t *testing.T) {
	s, _ := setupBookmarks(t)

	_, err := s.RequestDelete(context.Background(), 1, "missing")
	assert.Equal(t, ErrBookmarkNotFound, err)
}

func TestMutationsSignalSubscribers(t *testing.T) {
	s, hub := setupBookmarks(t)
	ctx := context.Background()

	ch, cancel := hub.Subscribe(1)
	defer cancel()

	drain := func() bool {
		select {
		case <-ch:
			return true
		case <-time.After(time.Second):
			return false
		}
	}

	created, err := s.Append(ctx, 1, fields("https://site.com/a"))
	require.NoError(t, err)
	assert.True(t, drain(), "append should signal")

	_, err = s.Regenerate(ctx, 1, created.ID, fields("https://site.com/a"))
	require.NoError(t, err)
	assert.True(t, drain(), "regenerate should signal")

	token, err := s.RequestDelete(ctx, 1, created.ID)
	require.NoError(t, err)
	require.NoError(t, s.ConfirmDelete(ctx, 1, token))
	assert.True(t, drain(), "confirmed delete should signal")
}

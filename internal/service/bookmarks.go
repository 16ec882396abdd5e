package service

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nightjar-labs/linkbrief-back/internal/db"
	"github.com/nightjar-labs/linkbrief-back/internal/notify"
)

var (
	ErrBookmarkNotFound   = errors.New("bookmark not found")
	ErrDeleteTokenInvalid = errors.New("delete confirmation token is invalid or expired")
	ErrBookmarkURLInvalid = errors.New("bookmark url must be absolute")
)

const deleteTokenTTL = 5 * time.Minute

type (
	// BookmarkFields is what a successful pipeline run produces; Append
	// persists all of it, Regenerate overwrites everything except URL.
	BookmarkFields struct {
		URL         string
		Title       string
		Favicon     *string
		Summary     string
		GeneratedAt time.Time
	}

	pendingDelete struct {
		userID     uint64
		bookmarkID string
		expires    time.Time
	}

	Bookmarks struct {
		db     *gorm.DB
		hub    *notify.Hub
		logger *zap.SugaredLogger
		now    func() time.Time

		mu      sync.Mutex
		pending map[string]pendingDelete
	}
)

func NewBookmarks(gdb *gorm.DB, hub *notify.Hub, l *zap.SugaredLogger) *Bookmarks {
	return &Bookmarks{
		db:      gdb,
		hub:     hub,
		logger:  l,
		now:     time.Now,
		pending: make(map[string]pendingDelete),
	}
}

// Append stores a new bookmark and returns it with its assigned key.
func (s *Bookmarks) Append(ctx context.Context, userID uint64, f BookmarkFields) (*db.Bookmark, error) {
	if u, err := url.Parse(f.URL); err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrBookmarkURLInvalid
	}

	model := db.Bookmark{
		UserID:      userID,
		URL:         f.URL,
		Title:       f.Title,
		Favicon:     f.Favicon,
		Summary:     f.Summary,
		GeneratedAt: f.GeneratedAt,
	}
	res := s.db.WithContext(ctx).Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}

	s.notifyChange(ctx, userID)
	return &model, nil
}

func (s *Bookmarks) Get(ctx context.Context, userID uint64, id string) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&model)
	if res.Error != nil {
		if res.Error == gorm.ErrRecordNotFound {
			return nil, ErrBookmarkNotFound
		}
		return nil, res.Error
	}
	return &model, nil
}

func (s *Bookmarks) List(ctx context.Context, userID uint64) ([]db.Bookmark, error) {
	sql, args, err := squirrel.
		Select("b.id", "b.user_id", "b.url", "b.title", "b.favicon", "b.summary", "b.created_at", "b.generated_at").
		From("bookmarks b").
		Where(squirrel.Eq{"b.user_id": userID}).
		OrderBy("b.created_at", "b.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	bookmarks := make([]db.Bookmark, 0)
	res := s.db.WithContext(ctx).Raw(sql, args...).Scan(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return bookmarks, nil
}

// Regenerate overwrites the derived fields after a fresh pipeline run. URL,
// CreatedAt and ID stay as they were on append.
func (s *Bookmarks) Regenerate(ctx context.Context, userID uint64, id string, f BookmarkFields) (*db.Bookmark, error) {
	updates := map[string]interface{}{
		"title":        f.Title,
		"favicon":      f.Favicon,
		"summary":      f.Summary,
		"generated_at": f.GeneratedAt,
	}
	res := s.db.WithContext(ctx).
		Model(&db.Bookmark{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(updates)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update bookmark")
	}
	if res.RowsAffected == 0 {
		return nil, ErrBookmarkNotFound
	}

	s.notifyChange(ctx, userID)
	return s.Get(ctx, userID, id)
}

// RequestDelete issues a single-use confirmation token instead of deleting
// outright; the removal happens in ConfirmDelete. Tokens live in memory, so
// the confirm must land on the instance that issued it.
func (s *Bookmarks) RequestDelete(ctx context.Context, userID uint64, id string) (string, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return "", err
	}

	token := uuid.New().String()
	s.mu.Lock()
	// Unredeemed tokens would pile up otherwise; drop the expired ones
	// while we hold the lock anyway.
	now := s.now()
	for tok, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, tok)
		}
	}
	s.pending[token] = pendingDelete{
		userID:     userID,
		bookmarkID: id,
		expires:    now.Add(deleteTokenTTL),
	}
	s.mu.Unlock()

	return token, nil
}

func (s *Bookmarks) ConfirmDelete(ctx context.Context, userID uint64, token string) error {
	s.mu.Lock()
	p, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	s.mu.Unlock()

	if !ok || p.userID != userID || s.now().After(p.expires) {
		return ErrDeleteTokenInvalid
	}

	res := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", p.userID, p.bookmarkID).
		Delete(&db.Bookmark{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBookmarkNotFound
	}

	s.notifyChange(ctx, p.userID)
	return nil
}

func (s *Bookmarks) notifyChange(ctx context.Context, userID uint64) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(ctx, userID)
}

package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"filevault-backend/internal/shared/storage/object"
	"filevault-backend/internal/shared/telemetry"
	"filevault-backend/internal/shared/util"
)

// Service contains business logic for files.
type Service struct {
	Store    object.ObjectStore
	Repo     FilesRepo
	Validity time.Duration
	Now      func() time.Time
	NewID    func() string
}

// ListResult is one page of a user's files.
type ListResult struct {
	Files  []File
	Count  int
	Limit  int
	Offset int
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Create uploads body and records it. When the record cannot be written the
// uploaded object is removed again so no orphan is left behind.
func (s *Service) Create(ctx context.Context, userID, fileName, contentType string, body io.Reader, signed bool) (File, error) {
	if strings.TrimSpace(userID) == "" || body == nil {
		return File{}, ErrInvalidInput
	}
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now()
	key := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), s.newID(), name)

	// Put overwrites, so a key that is already recorded must never be uploaded to.
	if _, err := s.Repo.FindByKey(ctx, key); err == nil {
		return File{}, fmt.Errorf("create file key=%s: %w", key, ErrDuplicateKey)
	} else if !errors.Is(err, ErrNotFound) {
		return File{}, fmt.Errorf("check file key: %w", err)
	}

	if _, err := s.Store.Put(ctx, key, contentType, body, !signed); err != nil {
		return File{}, fmt.Errorf("upload object: %w", err)
	}

	f := File{UserID: userID, Key: key, IsSigned: signed}
	if signed {
		url, err := s.Store.SignURL(ctx, key, s.Validity)
		if err != nil {
			s.discard(ctx, key, err)
			return File{}, fmt.Errorf("sign url: %w", err)
		}
		expiry := now.Add(s.Validity).UTC()
		f.URL = url
		f.ExpiryTime = &expiry
	} else {
		f.URL = s.Store.PublicURL(key)
	}

	created, err := s.Repo.Create(ctx, f)
	if err != nil {
		// A duplicate means another record owns the object under this key.
		if !errors.Is(err, ErrDuplicateKey) {
			s.discard(ctx, key, err)
		}
		return File{}, fmt.Errorf("create file record: %w", err)
	}

	telemetry.Info("files.created", map[string]any{
		"file_id": created.ID,
		"user_id": userID,
		"key":     key,
		"signed":  signed,
	})
	return created, nil
}

// Get returns a file owned by userID.
func (s *Service) Get(ctx context.Context, userID string, id int64) (File, error) {
	return s.Repo.GetByID(ctx, userID, id)
}

// List returns a page of the user's files, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) (ListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.Repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return ListResult{}, err
	}
	count, err := s.Repo.CountByUser(ctx, userID)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Files: items, Count: count, Limit: limit, Offset: offset}, nil
}

// Remove deletes the object and then its record. If the record delete fails
// after the object is gone, the record is left dangling and the refresher
// reports it as inconsistent.
func (s *Service) Remove(ctx context.Context, userID string, id int64) error {
	f, err := s.Repo.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, f.Key); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.Repo.Delete(ctx, userID, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete file record: %w", err)
	}
	telemetry.Info("files.removed", map[string]any{
		"file_id": id,
		"user_id": userID,
		"key":     f.Key,
	})
	return nil
}

func (s *Service) discard(ctx context.Context, key string, cause error) {
	if err := s.Store.Delete(context.WithoutCancel(ctx), key); err != nil {
		telemetry.Error("files.discard_failed", map[string]any{
			"key":   key,
			"cause": cause,
			"error": err,
		})
		return
	}
	telemetry.Warn("files.discarded", map[string]any{
		"key":   key,
		"cause": cause,
	})
}

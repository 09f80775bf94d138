package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

const idempotencySweepBatch = 500

var errClaimRace = errors.New("idempotency claim raced with another insert")

// DBIdempotencyStore keeps claims in the idempotency_records table. Claims are
// decided under a row lock so two retries cannot both run the handler.
type DBIdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBIdempotencyStore(db *gorm.DB) *DBIdempotencyStore {
	return &DBIdempotencyStore{db: db, now: time.Now}
}

func (s *DBIdempotencyStore) Claim(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyClaim, error) {
	claim, err := s.claimOnce(ctx, scope, key, fingerprint, ttl)
	if errors.Is(err, errClaimRace) {
		// The competing insert has committed by now; read it under the lock.
		claim, err = s.claimOnce(ctx, scope, key, fingerprint, ttl)
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "idempotency", "claim", "error")
		return IdempotencyClaim{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency", "claim", "success")
	return claim, nil
}

func (s *DBIdempotencyStore) claimOnce(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyClaim, error) {
	now := s.now().UTC()
	var claim IdempotencyClaim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.IdempotencyRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope = ? AND idempotency_key = ?", scope, key).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = domain.IdempotencyRecord{
				Scope:       scope,
				Key:         key,
				Fingerprint: fingerprint,
				Status:      domain.IdempotencyStatusPending,
				ExpiresAt:   now.Add(ttl),
			}
			if err := tx.Create(&rec).Error; err != nil {
				if isDuplicateKey(err) {
					return errClaimRace
				}
				return err
			}
			claim.State = IdempotencyStateNew
			return nil
		case err != nil:
			return err
		}

		if rec.Expired(now) {
			claim.State = IdempotencyStateNew
			return tx.Model(&rec).Updates(map[string]any{
				"fingerprint":     fingerprint,
				"status":          domain.IdempotencyStatusPending,
				"response_status": 0,
				"content_type":    "",
				"response_body":   nil,
				"cookies":         "",
				"expires_at":      now.Add(ttl),
			}).Error
		}
		switch {
		case rec.Fingerprint != fingerprint:
			claim.State = IdempotencyStateConflict
		case rec.Status == domain.IdempotencyStatusCompleted:
			claim.State = IdempotencyStateReplay
			claim.Response = &StoredResponse{
				StatusCode:  rec.ResponseStatus,
				ContentType: rec.ContentType,
				Body:        append([]byte(nil), rec.ResponseBody...),
				Cookies:     rec.CookieLines(),
			}
		default:
			claim.State = IdempotencyStateInProgress
		}
		return nil
	})
	return claim, err
}

// Complete stores resp against a pending claim. A claim that was released or
// taken over by another fingerprint is left alone.
func (s *DBIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, resp StoredResponse, ttl time.Duration) error {
	err := s.db.WithContext(ctx).Model(&domain.IdempotencyRecord{}).
		Where("scope = ? AND idempotency_key = ? AND fingerprint = ? AND status = ?",
			scope, key, fingerprint, domain.IdempotencyStatusPending).
		Updates(map[string]any{
			"status":          domain.IdempotencyStatusCompleted,
			"response_status": resp.StatusCode,
			"content_type":    resp.ContentType,
			"response_body":   resp.Body,
			"cookies":         strings.Join(resp.Cookies, "\n"),
			"expires_at":      s.now().UTC().Add(ttl),
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "idempotency", "complete", "error")
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency", "complete", "success")
	return nil
}

func (s *DBIdempotencyStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	err := s.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ? AND fingerprint = ? AND status = ?",
			scope, key, fingerprint, domain.IdempotencyStatusPending).
		Delete(&domain.IdempotencyRecord{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "idempotency", "release", "error")
		return fmt.Errorf("release idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency", "release", "success")
	return nil
}

// Sweep deletes up to batch expired records and reports how many went.
func (s *DBIdempotencyStore) Sweep(ctx context.Context, now time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = idempotencySweepBatch
	}
	var expired []domain.IdempotencyRecord
	err := s.db.WithContext(ctx).
		Select("scope", "idempotency_key").
		Where("expires_at <= ?", now.UTC()).
		Order("expires_at ASC").
		Limit(batch).
		Find(&expired).Error
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	pairs := make([][]any, 0, len(expired))
	for _, rec := range expired {
		pairs = append(pairs, []any{rec.Scope, rec.Key})
	}
	res := s.db.WithContext(ctx).
		Where("(scope, idempotency_key) IN ?", pairs).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *DBIdempotencyStore) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Sweep(ctx, s.now(), idempotencySweepBatch)
			switch {
			case err != nil:
				logger.Warn("idempotency sweep failed", "error", err)
			case deleted > 0:
				logger.Info("idempotency sweep removed expired records", "deleted", deleted)
			}
		}
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key value")
}

// Package rediscache puts a read-through Redis cache in front of shift reads.
// Bookings are never cached: they must reflect the store at snapshot time.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

const DefaultTTL = 5 * time.Minute

type ShiftCache struct {
	store.ScheduleRepository

	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewShiftCache(next store.ScheduleRepository, client *redis.Client, ttl time.Duration, log *slog.Logger) *ShiftCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ShiftCache{
		ScheduleRepository: next,
		client:             client,
		ttl:                ttl,
		log:                log.With(slog.String("component", "rediscache.shifts")),
	}
}

func shiftsKey(doctorID string, date time.Time) string {
	return "medportal:shifts:" + doctorID + ":" + domain.DateOf(date).Format(time.DateOnly)
}

// generationKey is bumped by every replace. A read-through write only lands
// when the generation it observed before reading the store is unchanged.
func generationKey(doctorID string, date time.Time) string {
	return shiftsKey(doctorID, date) + ":gen"
}

const generationTTL = 24 * time.Hour

type cachedShift struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (c *ShiftCache) GetWorkShifts(ctx context.Context, doctorID string, date time.Time) ([]domain.WorkShift, error) {
	key := shiftsKey(doctorID, date)
	genKey := generationKey(doctorID, date)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		shifts, decErr := decodeShifts(raw, doctorID, date)
		if decErr == nil {
			return shifts, nil
		}
		c.log.Warn("cached shifts unreadable", slog.String("key", key), slog.Any("err", decErr))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("shift cache read failed", slog.String("key", key), slog.Any("err", err))
	}

	gen, genErr := generation(ctx, c.client, genKey)

	shifts, err := c.ScheduleRepository.GetWorkShifts(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		c.log.Warn("shift cache generation unreadable; skipping write", slog.String("key", genKey), slog.Any("err", genErr))
		return shifts, nil
	}

	payload, err := encodeShifts(shifts)
	if err == nil {
		err = c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := generation(ctx, tx, genKey)
			if err != nil {
				return err
			}
			if current != gen {
				c.log.Debug("shifts replaced during read; not caching", slog.String("key", key))
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, c.ttl)
				return nil
			})
			return err
		}, genKey)
	}
	if errors.Is(err, redis.TxFailedErr) {
		c.log.Debug("shifts replaced during cache write; not caching", slog.String("key", key))
		err = nil
	}
	if err != nil {
		c.log.Warn("shift cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return shifts, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, r getter, genKey string) (int64, error) {
	gen, err := r.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *ShiftCache) ReplaceWorkShifts(ctx context.Context, doctorID string, date time.Time, shifts []domain.WorkShift) ([]domain.WorkShift, error) {
	out, err := c.ScheduleRepository.ReplaceWorkShifts(ctx, doctorID, date, shifts)
	if err != nil {
		return nil, err
	}
	genKey := generationKey(doctorID, date)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, shiftsKey(doctorID, date))
		return nil
	})
	if err != nil {
		c.log.Warn("shift cache invalidation failed", slog.String("doctor_id", doctorID), slog.Any("err", err))
	}
	return out, nil
}

func encodeShifts(shifts []domain.WorkShift) ([]byte, error) {
	rows := make([]cachedShift, 0, len(shifts))
	for _, s := range shifts {
		rows = append(rows, cachedShift{ID: s.ID.String(), Start: s.StartTime, End: s.EndTime})
	}
	return json.Marshal(rows)
}

func decodeShifts(raw []byte, doctorID string, date time.Time) ([]domain.WorkShift, error) {
	var rows []cachedShift
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.WorkShift, 0, len(rows))
	for _, r := range rows {
		s := domain.WorkShift{
			DoctorID:  doctorID,
			WorkDate:  domain.DateOf(date),
			StartTime: r.Start,
			EndTime:   r.End,
		}
		if err := s.ID.UnmarshalText([]byte(r.ID)); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

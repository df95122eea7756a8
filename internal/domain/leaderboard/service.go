// Package leaderboard maintains per-mode and per-country user rankings and
// answers "who is right above me" queries.
package leaderboard

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/lets/internal/domain/types"
	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
)

// UserDirectory resolves the user facts the leaderboards depend on.
type UserDirectory interface {
	// Eligible reports whether the user may appear on leaderboards.
	Eligible(ctx context.Context, userID int64) (bool, error)
	// Country returns the two-letter country code, or "" / "xx" when unknown.
	Country(ctx context.Context, userID int64) (string, error)
	// Username returns the display name, false if the user does not exist.
	Username(ctx context.Context, userID int64) (string, bool, error)
}

// Store is the sorted-set backend the leaderboards are kept in.
type Store interface {
	Upsert(ctx context.Context, key string, member int64, score float64) error
	Rank(ctx context.Context, key string, member int64) (int, bool, error)
	Score(ctx context.Context, key string, member int64) (float64, bool, error)
	At(ctx context.Context, key string, index int) (types.Entry, bool, error)
	Remove(ctx context.Context, key string, member int64) (bool, error)
	Top(ctx context.Context, key string, n int) ([]types.Entry, error)
}

// RankInfo is a user's position and the gap to the next better user.
type RankInfo struct {
	CurrentRank  int    `json:"currentRank"`
	NextUsername string `json:"nextUsername"`
	Difference   int64  `json:"difference"`
}

// Service updates and queries leaderboards.
type Service struct {
	store  Store
	users  UserDirectory
	logger logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds a leaderboard service.
func NewService(store Store, users UserDirectory, opts ...Option) *Service {
	s := &Service{store: store, users: users, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validate(userID int64, mode Mode, variant Variant) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id %d", ErrInvalidArgument, userID)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, int(mode))
	}
	if !variant.Valid() {
		return fmt.Errorf("%w: variant %d", ErrInvalidArgument, int(variant))
	}
	return nil
}

// RecordScore sets the user's ranking value on the mode board and, when the
// user's country is known, on the country board. Ineligible users are
// silently ignored. The latest value replaces any earlier one.
func (s *Service) RecordScore(ctx context.Context, userID int64, score float64, mode Mode, variant Variant) error {
	if err := validate(userID, mode, variant); err != nil {
		return err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: score %v", ErrInvalidArgument, score)
	}

	ok, err := s.users.Eligible(ctx, userID)
	if err != nil {
		return fmt.Errorf("check eligibility of %d: %w", userID, err)
	}
	if !ok {
		metrics.RecordLeaderboardSkipped()
		s.logger.Debug(ctx, "leaderboard update skipped, user not allowed", logger.Int64("user_id", userID))
		return nil
	}

	if err := s.store.Upsert(ctx, Key(mode, variant), userID, score); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	metrics.RecordLeaderboardUpsert("global")

	country, err := s.users.Country(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "country lookup failed, country board not updated",
			logger.Int64("user_id", userID), logger.Error(err))
		return nil
	}
	if !knownCountry(country) {
		return nil
	}
	if err := s.store.Upsert(ctx, CountryKey(mode, variant, country), userID, score); err != nil {
		return fmt.Errorf("update country leaderboard: %w", err)
	}
	metrics.RecordLeaderboardUpsert("country")
	return nil
}

// RankInfo returns the user's 1-based rank on the (mode, variant) board, the
// username right above and the truncated score gap to them. Unranked users
// get rank 1 with no neighbour.
func (s *Service) RankInfo(ctx context.Context, userID int64, mode Mode, variant Variant) (RankInfo, error) {
	if err := validate(userID, mode, variant); err != nil {
		return RankInfo{}, err
	}
	key := Key(mode, variant)

	rank, ok, err := s.store.Rank(ctx, key, userID)
	if err != nil {
		return RankInfo{}, fmt.Errorf("rank of %d: %w", userID, err)
	}
	if !ok {
		metrics.RecordRankQuery("unranked")
		return RankInfo{CurrentRank: 1}, nil
	}

	position := rank - 1
	info := RankInfo{CurrentRank: position + 1}
	if position == 0 {
		metrics.RecordRankQuery("top")
		return info, nil
	}

	above, ok, err := s.store.At(ctx, key, position-1)
	if err != nil || !ok {
		s.degraded(ctx, userID, "neighbour lookup failed", err)
		return info, nil
	}
	mine, ok, err := s.store.Score(ctx, key, userID)
	if err != nil || !ok {
		s.degraded(ctx, userID, "own score lookup failed", err)
		return info, nil
	}
	name, ok, err := s.users.Username(ctx, above.UserID)
	if err != nil || !ok {
		s.degraded(ctx, userID, "neighbour username lookup failed", err)
		return info, nil
	}

	metrics.RecordRankQuery("ranked")
	info.NextUsername = name
	info.Difference = int64(mine) - int64(above.Score)
	return info, nil
}

func (s *Service) degraded(ctx context.Context, userID int64, msg string, err error) {
	metrics.RecordRankQuery("degraded")
	fields := []logger.Field{logger.Int64("user_id", userID)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	s.logger.Warn(ctx, msg, fields...)
}

// Top returns up to n best entries of the (mode, variant) board, or of the
// country board when country is known.
func (s *Service) Top(ctx context.Context, mode Mode, variant Variant, country string, n int) ([]types.Entry, error) {
	if !mode.Valid() || !variant.Valid() {
		return nil, fmt.Errorf("%w: mode %d variant %d", ErrInvalidArgument, int(mode), int(variant))
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidArgument, n)
	}
	key := Key(mode, variant)
	if knownCountry(country) {
		key = CountryKey(mode, variant, country)
	}
	entries, err := s.store.Top(ctx, key, n)
	if err != nil {
		return nil, fmt.Errorf("top of %s: %w", key, err)
	}
	return entries, nil
}

// Forget drops the user from the mode board and from the given country board.
func (s *Service) Forget(ctx context.Context, userID int64, mode Mode, variant Variant, country string) error {
	if err := validate(userID, mode, variant); err != nil {
		return err
	}
	if _, err := s.store.Remove(ctx, Key(mode, variant), userID); err != nil {
		return fmt.Errorf("remove %d: %w", userID, err)
	}
	if knownCountry(country) {
		if _, err := s.store.Remove(ctx, CountryKey(mode, variant, country), userID); err != nil {
			return fmt.Errorf("remove %d from country board: %w", userID, err)
		}
	}
	return nil
}

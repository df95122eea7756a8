// Package autorank implements the time-driven promotion pipeline for
// community beatmaps.
//
// A beatmap whose mapper opted in and which carries a valid autorank flag
// becomes QUALIFIED once it has been left untouched upstream for
// GraveyardDays-QualifiedDays days and RANKED (or LOVED) after GraveyardDays.
// Any upstream update pulls it back to PENDING. The engine only decides; the
// caller persists the beatmap, dispatches notifications and wipes
// leaderboards.
package autorank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/pkg/logger"
)

// Window lengths in days.
const (
	GraveyardDays = 28
	QualifiedDays = 3
)

// UpdateDateLayout is the upstream last_update format.
const UpdateDateLayout = "2006-01-02 15:04:05"

const day = 24 * time.Hour

// Profile is a mapper's autorank opt-in.
type Profile struct {
	BanchoID int64
	// UserID is the mapper's account on this server, 0 if unknown.
	UserID int64
	Active bool
}

// Flags is per-beatmap autorank eligibility.
type Flags struct {
	Valid   bool
	Lovable bool
}

// ProfileSource resolves mapper profiles and beatmap flags.
type ProfileSource interface {
	Profile(ctx context.Context, banchoID int64) (Profile, bool, error)
	Flags(ctx context.Context, beatmapID int64) (Flags, bool, error)
}

// Metadata is what the upstream beatmap API knows about a difficulty.
type Metadata struct {
	LastUpdate string
}

// MetadataFetcher looks beatmaps up upstream by file checksum.
type MetadataFetcher interface {
	FetchUpstreamMetadata(ctx context.Context, md5 string) (Metadata, bool, error)
}

// SkipReason names the precondition that stopped a sweep.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipFrozen          SkipReason = "frozen"
	SkipRanked          SkipReason = "ranked"
	SkipProfileInactive SkipReason = "profile_inactive"
	SkipFlagInvalid     SkipReason = "flag_invalid"
)

// Notification announces a status transition.
type Notification struct {
	ID             uuid.UUID
	BeatmapID      int64
	BeatmapSetID   int64
	Artist         string
	Title          string
	DifficultyName string
	Previous       beatmap.Status
	Status         beatmap.Status
	// MapperUserID is the local account of the mapper, 0 when unresolvable.
	MapperUserID int64
	At           time.Time
}

// Label is the announcement label of the new status.
func (n Notification) Label() string { return n.Status.Label() }

// Result describes the outcome of one sweep.
type Result struct {
	Skipped SkipReason
	// Aborted is set when the upstream update date could not be resolved.
	Aborted  bool
	Previous beatmap.Status

	UpdateDateResolved bool
	Transitioned       bool
	NeedWipe           bool
	// ReleaseFreeze asks the repository to clear ranked_status_freezed.
	ReleaseFreeze bool

	Notifications []Notification
}

// Outcome is a short metric label for r.
func (r Result) Outcome() string {
	switch {
	case r.Skipped != SkipNone:
		return "skipped_" + string(r.Skipped)
	case r.Aborted:
		return "aborted"
	case r.Transitioned:
		return "transitioned"
	default:
		return "unchanged"
	}
}

// Engine runs autorank sweeps.
type Engine struct {
	profiles        ProfileSource
	metadata        MetadataFetcher
	clock           clockwork.Clock
	metadataTimeout time.Duration
	logger          logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithMetadataTimeout bounds the upstream lookup.
func WithMetadataTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.metadataTimeout = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine.
func NewEngine(profiles ProfileSource, metadata MetadataFetcher, opts ...Option) *Engine {
	e := &Engine{
		profiles:        profiles,
		metadata:        metadata,
		clock:           clockwork.NewRealClock(),
		metadataTimeout: 5 * time.Second,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sweep evaluates bm and mutates it in place. Errors are returned only for
// store failures; an unreachable upstream yields Result.Aborted.
func (e *Engine) Sweep(ctx context.Context, bm *beatmap.Beatmap) (Result, error) {
	res := Result{Previous: bm.RankedStatus}

	if !bm.RankedStatusFrozen.AutoManaged() {
		res.Skipped = SkipFrozen
		return res, nil
	}
	if bm.RankedStatusFrozen != beatmap.FrozenAutorank && bm.RankedStatus >= beatmap.StatusRanked {
		res.Skipped = SkipRanked
		return res, nil
	}

	profile, ok, err := e.profiles.Profile(ctx, bm.CreatorID)
	if err != nil {
		return res, fmt.Errorf("load autorank profile %d: %w", bm.CreatorID, err)
	}
	if !ok || !profile.Active {
		res.Skipped = SkipProfileInactive
		return res, nil
	}

	flags, ok, err := e.profiles.Flags(ctx, bm.BeatmapID)
	if err != nil {
		return res, fmt.Errorf("load autorank flags %d: %w", bm.BeatmapID, err)
	}
	if !ok || !flags.Valid {
		res.Skipped = SkipFlagInvalid
		return res, nil
	}

	e.logger.Debug(ctx, "checking autorank eligibility",
		logger.Int64("beatmap_id", bm.BeatmapID),
		logger.String("song", bm.SongName),
	)

	updateDate := bm.UpdateDate
	if updateDate == 0 {
		ts, ok := e.resolveUpdateDate(ctx, bm.FileMD5)
		if !ok {
			res.Aborted = true
			return res, nil
		}
		updateDate = ts
		res.UpdateDateResolved = true
	}

	touched := time.Unix(updateDate, 0)
	qualifyAt := touched.Add((GraveyardDays - QualifiedDays) * day)
	rankAt := touched.Add(GraveyardDays * day)
	now := e.clock.Now()

	prev := bm.RankedStatus
	next := *bm
	next.UpdateDate = updateDate

	switch {
	case !now.Before(rankAt):
		res.NeedWipe = prev == beatmap.StatusQualified
		if flags.Lovable {
			next.RankedStatus = beatmap.StatusLoved
		} else {
			next.RankedStatus = beatmap.StatusRanked
		}
		next.RankedStatusFrozen = beatmap.FrozenAutorank
	case !now.Before(qualifyAt) && !flags.Lovable:
		next.RankedStatus = beatmap.StatusQualified
		next.RankedStatusFrozen = beatmap.FrozenAutorank
	default:
		res.NeedWipe = prev >= beatmap.StatusRanked
		next.RankedStatus = beatmap.StatusPending
		next.RankedStatusFrozen = beatmap.Unfrozen
	}

	if next.RankedStatus != prev {
		res.Transitioned = true
		res.ReleaseFreeze = true
		res.Notifications = append(res.Notifications, Notification{
			ID:             uuid.New(),
			BeatmapID:      next.BeatmapID,
			BeatmapSetID:   next.BeatmapSetID,
			Artist:         next.Artist,
			Title:          next.Title,
			DifficultyName: next.DifficultyName,
			Previous:       prev,
			Status:         next.RankedStatus,
			MapperUserID:   profile.UserID,
			At:             now,
		})
		e.logger.Info(ctx, "autorank transition",
			logger.Int64("beatmap_id", next.BeatmapID),
			logger.String("from", prev.Label()),
			logger.String("to", next.RankedStatus.Label()),
			logger.Bool("need_wipe", res.NeedWipe),
		)
	}

	*bm = next
	return res, nil
}

func (e *Engine) resolveUpdateDate(ctx context.Context, md5 string) (int64, bool) {
	if e.metadata == nil || md5 == "" {
		return 0, false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.metadataTimeout)
	defer cancel()

	md, ok, err := e.metadata.FetchUpstreamMetadata(lookupCtx, md5)
	if err != nil {
		e.logger.Warn(ctx, "upstream metadata lookup failed", logger.String("md5", md5), logger.Error(err))
		return 0, false
	}
	if !ok {
		e.logger.Debug(ctx, "beatmap unknown upstream", logger.String("md5", md5))
		return 0, false
	}

	ts, err := ParseUpdateDate(md.LastUpdate)
	if err != nil {
		e.logger.Warn(ctx, "bad upstream last_update", logger.String("md5", md5), logger.Error(err))
		return 0, false
	}
	return ts, true
}

// ParseUpdateDate converts an upstream "YYYY-MM-DD HH:MM:SS" string, read as
// UTC, into Unix seconds.
func ParseUpdateDate(s string) (int64, error) {
	t, err := time.ParseInLocation(UpdateDateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse update date %q: %w", s, err)
	}
	return t.Unix(), nil
}

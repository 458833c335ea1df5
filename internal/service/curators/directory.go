// Package curators resolves who may vote on proposals and the live quorum.
package curators

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// Member is a platform identity found in the curator chat.
type Member struct {
	Platform       db.Platform
	PlatformUserID string
	IsBot          bool
}

// MemberSource lists the members of the curator chat at call time.
type MemberSource interface {
	Members(ctx context.Context) ([]Member, error)
}

// AliasResolver maps a platform identity to its master user id.
// Implemented by the identity service.
type AliasResolver interface {
	MasterID(ctx context.Context, platform db.Platform, platformUserID string) (uint64, bool, error)
}

// Directory caches the curator set for at most ttl. The cache is the only
// in-process mutable state of the core and is guarded by mu; concurrent
// refreshes are collapsed into one source query.
type Directory struct {
	source   MemberSource
	resolver AliasResolver
	botID    string
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	cached    []uint64
	fetchedAt time.Time

	group singleflight.Group
}

func NewDirectory(source MemberSource, resolver AliasResolver, botID string, ttl time.Duration, log *slog.Logger) *Directory {
	if ttl <= 0 || ttl > 60*time.Second {
		ttl = 60 * time.Second
	}
	return &Directory{
		source:   source,
		resolver: resolver,
		botID:    botID,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (d *Directory) SetClock(now func() time.Time) { d.now = now }

// ActiveCurators returns the master ids of the curator chat members,
// excluding bots and the configured bot identity. Members without an alias
// have never talked to the bot and cannot vote, so they are skipped.
func (d *Directory) ActiveCurators(ctx context.Context) ([]uint64, error) {
	d.mu.Lock()
	if d.cached != nil && d.now().Sub(d.fetchedAt) < d.ttl {
		out := slices.Clone(d.cached)
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	v, err, _ := d.group.Do("curators", func() (any, error) {
		return d.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]uint64)), nil
}

func (d *Directory) refresh(ctx context.Context) ([]uint64, error) {
	members, err := d.source.Members(ctx)
	if err != nil {
		d.log.Error("failed to list curator chat members", "err", err)
		return nil, svcErr.Storage("curators.members", err)
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		if m.IsBot || (d.botID != "" && m.PlatformUserID == d.botID) {
			continue
		}
		id, ok, err := d.resolver.MasterID(ctx, m.Platform, m.PlatformUserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			d.log.Debug("curator has no alias yet", "platform", m.Platform, "platform_user_id", m.PlatformUserID)
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	d.mu.Lock()
	d.cached = ids
	d.fetchedAt = d.now()
	d.mu.Unlock()

	d.log.Debug("curator set refreshed", "count", len(ids))
	return ids, nil
}

// Invalidate drops the cached set so the next call queries the source.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// IsCurator reports whether masterID is in the current curator set.
func (d *Directory) IsCurator(ctx context.Context, masterID uint64) (bool, error) {
	ids, err := d.ActiveCurators(ctx)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(ids, masterID)
	return found, nil
}

// RequiredVotes is the smallest strict majority of the curator set, minimum 1.
func (d *Directory) RequiredVotes(ctx context.Context) (int, error) {
	ids, err := d.ActiveCurators(ctx)
	if err != nil {
		return 0, err
	}
	return Threshold(len(ids)), nil
}

// Threshold is ⌊(n-1)/2⌋+1, minimum 1.
func Threshold(n int) int {
	if n <= 1 {
		return 1
	}
	return (n-1)/2 + 1
}

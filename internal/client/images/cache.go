// Package images keeps the signed-in user's images and trash in memory.
//
// # Overview
//
// Cache holds two disjoint collections, active (newest first) and trash,
// each image optionally carrying a signed display URL. Full refreshes
// replace a collection atomically; uploads, deletes and restores are applied
// locally as soon as their own API call succeeds.
//
// # Reconciliation
//
// Every refresh and every local change takes a sequence number when it
// starts. Local changes are also recorded in a delta log. When a refresh
// completes, the deltas that started after it are replayed over the server
// list, so an upload or delete made while the list was loading is not lost.
// A refresh that started before an already-applied one is discarded.
//
// # Cancellation
//
// Results are dropped, and state left as it was, when the caller's context
// is done, when Close has been called, or when Reset (a credential change)
// happened while the call was in flight.
//
// Deletes and restores on the same id run in the order they were issued.
package images

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/imgkeeper/internal/client/models"
	"github.com/dmitrijs2005/imgkeeper/internal/client/session"
	"github.com/dmitrijs2005/imgkeeper/internal/logging"
)

const DefaultMaxParallel = 8

var (
	ErrClosed    = errors.New("image cache closed")
	ErrDiscarded = errors.New("result discarded: session changed")
)

// API is the subset of api.Client the cache calls.
type API interface {
	ListImages(ctx context.Context) ([]models.Image, error)
	ListTrash(ctx context.Context) ([]models.Image, error)
	SignedURL(ctx context.Context, id string) (string, error)
	Upload(ctx context.Context, fileName string, r io.Reader) (models.Image, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

type Option func(*Cache)

// WithMaxParallel bounds concurrent signed-URL fetches during a refresh.
// n <= 0 keeps the default.
func WithMaxParallel(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxParallel = n
		}
	}
}

type deltaKind int

const (
	deltaInsert deltaKind = iota
	deltaTrash
	deltaRestore
	deltaURL
)

type delta struct {
	seq  uint64
	kind deltaKind
	img  models.Image
}

type Cache struct {
	api         API
	logger      logging.Logger
	maxParallel int
	seq         *sequencer

	mu     sync.Mutex
	active []models.Image
	trash  []models.Image
	closed bool

	epoch     uint64
	lastToken string

	clock         uint64
	activeApplied uint64
	trashApplied  uint64
	inflight      map[uint64]struct{}
	deltas        []delta
}

func New(api API, logger logging.Logger, opts ...Option) *Cache {
	c := &Cache{
		api:         api,
		logger:      logger,
		maxParallel: DefaultMaxParallel,
		seq:         newSequencer(),
		inflight:    make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active returns a copy of the active collection, newest first.
func (c *Cache) Active() []models.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Image(nil), c.active...)
}

// Trash returns a copy of the trash collection.
func (c *Cache) Trash() []models.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Image(nil), c.trash...)
}

// Find looks id up in active, then in trash.
func (c *Cache) Find(id string) (models.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.active, id); i >= 0 {
		return c.active[i], true
	}
	if i := indexOf(c.trash, id); i >= 0 {
		return c.trash[i], true
	}
	return models.Image{}, false
}

// Reset forgets everything held for the previous credential. In-flight
// results started before Reset are dropped.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.active = nil
	c.trash = nil
	c.deltas = nil
	c.inflight = make(map[uint64]struct{})
}

// Close stops the cache from accepting results. State stays readable.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// OnSessionChange is a session subscriber: a different token, or none,
// resets the cache.
func (c *Cache) OnSessionChange(st session.State) {
	if st.Hydrating {
		return
	}
	c.mu.Lock()
	changed := st.Credential.Token != c.lastToken
	c.lastToken = st.Credential.Token
	c.mu.Unlock()

	if changed {
		c.Reset()
	}
}

// beginLocked opens an operation: it returns the epoch to check on completion and
// a fresh sequence number. Called with mu held.
func (c *Cache) beginLocked() (uint64, uint64, error) {
	if c.closed {
		return 0, 0, ErrClosed
	}
	c.clock++
	return c.epoch, c.clock, nil
}

// usableLocked reports whether a result started at epoch may be applied.
func (c *Cache) usableLocked(ctx context.Context, epoch uint64) error {
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.epoch != epoch {
		return ErrDiscarded
	}
	return nil
}

// recordLocked logs a local change for in-flight refreshes to replay.
func (c *Cache) recordLocked(kind deltaKind, img models.Image) {
	c.clock++
	if len(c.inflight) == 0 {
		return
	}
	c.deltas = append(c.deltas, delta{seq: c.clock, kind: kind, img: img})
}

// finishRefreshLocked drops deltas no in-flight refresh can still need.
func (c *Cache) finishRefreshLocked(start uint64) {
	delete(c.inflight, start)
	if len(c.inflight) == 0 {
		c.deltas = nil
		return
	}
	oldest := ^uint64(0)
	for s := range c.inflight {
		if s < oldest {
			oldest = s
		}
	}
	i := 0
	for i < len(c.deltas) && c.deltas[i].seq <= oldest {
		i++
	}
	c.deltas = c.deltas[i:]
}

// Refresh replaces the active collection with the server's list, each image
// enriched with a signed URL. A failed list leaves state untouched; a failed
// URL fetch leaves that image without one.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, false)
}

// RefreshTrash is Refresh for the trash collection.
func (c *Cache) RefreshTrash(ctx context.Context) error {
	return c.refresh(ctx, true)
}

func (c *Cache) refresh(ctx context.Context, trash bool) error {
	c.mu.Lock()
	epoch, start, err := c.beginLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.inflight[start] = struct{}{}
	c.mu.Unlock()

	list, err := c.list(ctx, trash)
	if err == nil {
		list = c.withSignedURLs(ctx, list)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finishRefreshLocked(start)

	if err != nil {
		return err
	}
	if err := c.usableLocked(ctx, epoch); err != nil {
		return err
	}

	applied, otherApplied := &c.activeApplied, c.trashApplied
	if trash {
		applied, otherApplied = &c.trashApplied, c.activeApplied
	}
	if start < *applied {
		c.logger.Debug(ctx, "discarding superseded refresh", "trash", trash)
		return nil
	}

	if !trash {
		sortNewestFirst(list)
	}
	fresh := c.replay(list, start, trash)
	other := c.trash
	if trash {
		other = c.active
	}

	// An id listed by both sides stays where the newer listing put it.
	if otherApplied > start {
		fresh = withoutIDs(fresh, other)
	} else {
		other = withoutIDs(other, fresh)
	}

	if trash {
		c.trash, c.active = fresh, other
	} else {
		c.active, c.trash = fresh, other
	}
	*applied = start
	return nil
}

func (c *Cache) list(ctx context.Context, trash bool) ([]models.Image, error) {
	if trash {
		return c.api.ListTrash(ctx)
	}
	return c.api.ListImages(ctx)
}

// withSignedURLs fetches URLs concurrently, at most maxParallel at a time.
// Each result lands in its own slot so completion order does not matter.
func (c *Cache) withSignedURLs(ctx context.Context, list []models.Image) []models.Image {
	out := append([]models.Image(nil), list...)

	var g errgroup.Group
	g.SetLimit(c.maxParallel)
	for i := range out {
		g.Go(func() error {
			url, err := c.api.SignedURL(ctx, out[i].ID)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn(ctx, "signed url unavailable", "image_id", out[i].ID, "err", err)
				}
				out[i].SignedURL = ""
				return nil
			}
			out[i].SignedURL = url
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// replay applies the deltas started after start to a fresh server list.
// Called with mu held.
func (c *Cache) replay(list []models.Image, start uint64, trash bool) []models.Image {
	for _, d := range c.deltas {
		if d.seq <= start {
			continue
		}
		id := d.img.ID
		switch d.kind {
		case deltaInsert:
			if !trash {
				list = prepend(remove(list, id), d.img)
			} else {
				list = remove(list, id)
			}
		case deltaTrash:
			if trash {
				list = append(remove(list, id), d.img)
			} else {
				list = remove(list, id)
			}
		case deltaRestore:
			if trash {
				list = remove(list, id)
			} else {
				list = insertSorted(remove(list, id), d.img)
			}
		case deltaURL:
			if i := indexOf(list, id); i >= 0 {
				list[i].SignedURL = d.img.SignedURL
			}
		}
	}
	return list
}

// InsertUploaded puts a freshly uploaded image at the head of active right
// away, then attaches its signed URL once fetched. Concurrent calls keep
// reverse call order whatever order their URL fetches finish in.
func (c *Cache) InsertUploaded(ctx context.Context, img models.Image) {
	img.SignedURL = ""
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	epoch, _, err := c.beginLocked()
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.trash = remove(c.trash, img.ID)
	c.active = prepend(remove(c.active, img.ID), img)
	c.recordLocked(deltaInsert, img)
	c.mu.Unlock()

	url, err := c.api.SignedURL(ctx, img.ID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn(ctx, "signed url unavailable", "image_id", img.ID, "err", err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachURLLocked(ctx, epoch, img.ID, url)
}

func (c *Cache) attachURLLocked(ctx context.Context, epoch uint64, id, url string) {
	if c.usableLocked(ctx, epoch) != nil {
		return
	}
	if i := indexOf(c.active, id); i >= 0 {
		c.active[i].SignedURL = url
	}
	if i := indexOf(c.trash, id); i >= 0 {
		c.trash[i].SignedURL = url
	}
	c.recordLocked(deltaURL, models.Image{ID: id, SignedURL: url})
}

// Upload sends the file and inserts the created image.
func (c *Cache) Upload(ctx context.Context, fileName string, r io.Reader) (models.Image, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return models.Image{}, ErrClosed
	}

	img, err := c.api.Upload(ctx, fileName, r)
	if err != nil {
		return models.Image{}, err
	}

	c.InsertUploaded(ctx, img)
	if cur, ok := c.Find(img.ID); ok {
		img = cur
	}
	return img, nil
}

// MoveToTrash deletes id on the server and, once that succeeds, moves it
// from active to the end of trash. An id not in active when the call starts
// is a no-op.
func (c *Cache) MoveToTrash(ctx context.Context, id string) error {
	release, err := c.seq.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	epoch, _, err := c.beginLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	i := indexOf(c.active, id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	img := c.active[i]
	c.mu.Unlock()

	if err := c.api.Delete(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(ctx, epoch); err != nil {
		return err
	}
	// A refresh may have dropped it from active meanwhile.
	if i := indexOf(c.active, id); i >= 0 {
		img = c.active[i]
	}
	img.IsDeleted = true
	c.active = remove(c.active, id)
	c.trash = append(remove(c.trash, id), img)
	c.recordLocked(deltaTrash, img)
	return nil
}

// RestoreFromTrash restores id on the server, fetches a new signed URL and
// puts the image back into active at its date position. An id not in trash
// when the call starts is a no-op.
func (c *Cache) RestoreFromTrash(ctx context.Context, id string) error {
	release, err := c.seq.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	epoch, _, err := c.beginLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	i := indexOf(c.trash, id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	img := c.trash[i]
	c.mu.Unlock()

	if err := c.api.Restore(ctx, id); err != nil {
		return err
	}

	url, err := c.api.SignedURL(ctx, id)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn(ctx, "signed url unavailable", "image_id", id, "err", err)
		url = ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(ctx, epoch); err != nil {
		return err
	}
	if i := indexOf(c.trash, id); i >= 0 {
		img = c.trash[i]
	}
	img.IsDeleted = false
	img.SignedURL = url
	c.trash = remove(c.trash, id)
	c.active = insertSorted(remove(c.active, id), img)
	c.recordLocked(deltaRestore, img)
	return nil
}

// SignedURL fetches a fresh URL for id and attaches it to the cached image.
func (c *Cache) SignedURL(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	epoch, _, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	url, err := c.api.SignedURL(ctx, id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachURLLocked(ctx, epoch, id, url)
	return url, nil
}

func indexOf(list []models.Image, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// remove returns list without id. The input slice is not modified.
func remove(list []models.Image, id string) []models.Image {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}
	out := make([]models.Image, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// withoutIDs returns list minus every id present in other.
func withoutIDs(list, other []models.Image) []models.Image {
	if len(other) == 0 {
		return list
	}
	ids := make(map[string]struct{}, len(other))
	for _, img := range other {
		ids[img.ID] = struct{}{}
	}
	out := make([]models.Image, 0, len(list))
	for _, img := range list {
		if _, ok := ids[img.ID]; !ok {
			out = append(out, img)
		}
	}
	return out
}

func prepend(list []models.Image, img models.Image) []models.Image {
	out := make([]models.Image, 0, len(list)+1)
	out = append(out, img)
	return append(out, list...)
}

// insertSorted places img before the first image not newer than it.
func insertSorted(list []models.Image, img models.Image) []models.Image {
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].CreatedAt.After(img.CreatedAt.Time)
	})
	out := make([]models.Image, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, img)
	return append(out, list[i:]...)
}

func sortNewestFirst(list []models.Image) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt.Time)
	})
}

package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
)

// memLinkRepository is a LinkRepository with a unique index on short codes.
type memLinkRepository struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.Link
	byCode map[string]uint64
	clock  time.Time

	// createErrs are returned by Create, one per call, before inserting.
	createErrs []error
	existsErr  error

	createCalls atomic.Int64
	existsCalls atomic.Int64
}

func newMemLinkRepository() *memLinkRepository {
	return &memLinkRepository{
		byID:   make(map[uint64]*model.Link),
		byCode: make(map[string]uint64),
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memLinkRepository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memLinkRepository) Create(_ context.Context, link *model.Link) error {
	r.createCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		return err
	}
	if _, taken := r.byCode[link.ShortCode]; taken {
		return repository.ErrShortCodeTaken
	}

	r.nextID++
	now := r.tick()
	link.ID = r.nextID
	link.CreatedAt, link.UpdatedAt = now, now
	stored := *link
	r.byID[link.ID] = &stored
	r.byCode[link.ShortCode] = link.ID
	return nil
}

func (r *memLinkRepository) GetByID(_ context.Context, id uint64, ownerID *uint64) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byID[id]
	if !ok || (ownerID != nil && link.UserID != *ownerID) {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *memLinkRepository) GetByCode(_ context.Context, code string) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *memLinkRepository) ListByOwner(_ context.Context, ownerID uint64) ([]model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Link, 0)
	for _, l := range r.byID {
		if l.UserID == ownerID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memLinkRepository) Update(_ context.Context, id, ownerID uint64, upd repository.LinkUpdate) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byID[id]
	if !ok || link.UserID != ownerID {
		return nil, repository.ErrLinkNotFound
	}
	if upd.OriginalURL != nil {
		link.OriginalURL = *upd.OriginalURL
	}
	if upd.CustomDomain != nil {
		if *upd.CustomDomain == "" {
			link.CustomDomain = nil
		} else {
			d := *upd.CustomDomain
			link.CustomDomain = &d
		}
	}
	if !upd.Empty() {
		link.UpdatedAt = r.tick()
	}
	cp := *link
	return &cp, nil
}

func (r *memLinkRepository) Delete(_ context.Context, id, ownerID uint64) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byID[id]
	if !ok || link.UserID != ownerID {
		return nil, repository.ErrLinkNotFound
	}
	delete(r.byID, id)
	delete(r.byCode, link.ShortCode)
	return link, nil
}

func (r *memLinkRepository) IncrementClicks(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byID[id]
	if !ok {
		return repository.ErrLinkNotFound
	}
	link.Clicks++
	return nil
}

func (r *memLinkRepository) CodeExists(_ context.Context, code string, _ bool) (bool, error) {
	r.existsCalls.Add(1)
	if r.existsErr != nil {
		return false, r.existsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byCode[code]
	return ok, nil
}

func (r *memLinkRepository) WithTx(_ context.Context, fn func(repository.LinkRepository) error) error {
	return fn(r)
}

// seed inserts a link directly, bypassing createErrs.
func (r *memLinkRepository) seed(owner uint64, code, url string) *model.Link {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.tick()
	link := &model.Link{ID: r.nextID, UserID: owner, ShortCode: code, OriginalURL: url, CreatedAt: now, UpdatedAt: now}
	r.byID[link.ID] = link
	r.byCode[code] = link.ID
	cp := *link
	return &cp
}

func (r *memLinkRepository) clicks(id uint64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byID[id]; ok {
		return l.Clicks
	}
	return -1
}

var errCacheDown = errors.New("cache unreachable")

// brokenCache fails every call.
type brokenCache struct {
	calls atomic.Int64
}

func (c *brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	c.calls.Add(1)
	return nil, false, errCacheDown
}

func (c *brokenCache) Set(context.Context, string, any, time.Duration) error {
	c.calls.Add(1)
	return errCacheDown
}

func (c *brokenCache) Delete(context.Context, string) error {
	c.calls.Add(1)
	return errCacheDown
}

func (c *brokenCache) Flush(context.Context) error {
	c.calls.Add(1)
	return errCacheDown
}

// generatorFunc adapts a function to CodeGenerator.
type generatorFunc func(seed string, length int) string

func (f generatorFunc) Generate(seed string, length int) string { return f(seed, length) }

// sequence returns codes in order, then repeats the last one.
func sequence(codes ...string) generatorFunc {
	var mu sync.Mutex
	i := 0
	return func(string, int) string {
		mu.Lock()
		defer mu.Unlock()
		c := codes[min(i, len(codes)-1)]
		i++
		return c
	}
}

// clickCounter is a ClickRecorder that only counts calls.
type clickCounter struct {
	n atomic.Int64
}

func (c *clickCounter) Record(context.Context, *model.Link) { c.n.Add(1) }

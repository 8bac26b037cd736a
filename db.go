package denkmit

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const (
	DefaultOrder             = 3
	DefaultBroadcastInterval = 30 * time.Second
	DefaultValueCacheSize    = 1024
	DefaultAccess            = "writeAll"
)

// Config configures Create and Open.
type Config struct {
	// Persist holds every block of the dataset. Required.
	Persist Persist
	// NodeCache caches decoded Pollards. A cache of 4096 nodes is used when nil.
	NodeCache NodeCache
	// Key signs local writes and heads. A fresh P-384 key is generated when nil.
	Key *ecdsa.PrivateKey
	// Gossip announces heads to other replicas. Replication is off when nil.
	Gossip Gossip
	// Consensus replaces the rule recorded in the manifest.
	Consensus Consensus
	Logger    *zap.Logger
	// ValueCacheSize bounds the cache of decoded values.
	ValueCacheSize int
	// BroadcastInterval is how often the current head is announced. A
	// negative interval disables broadcasting.
	BroadcastInterval time.Duration
	// Now is the clock used for timestamps.
	Now func() time.Time

	// The fields below only apply to Create.

	Name string
	// Order is the Pollard order of the forest.
	Order int
	// Hash names the hash function, see HashFuncByName. Open also uses it to
	// verify the manifest block.
	Hash           string
	ConsensusLogic []byte
	Access         string
	Meta           map[string]string
}

func (c *Config) defaults() error {
	if c.Persist == nil {
		return fmt.Errorf("%w: no Persist", ErrConfiguration)
	}
	if c.NodeCache == nil {
		c.NodeCache = NewNodeCache(4096)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ValueCacheSize <= 0 {
		c.ValueCacheSize = DefaultValueCacheSize
	}
	if c.BroadcastInterval == 0 {
		c.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Order == 0 {
		c.Order = DefaultOrder
	}
	if c.Hash == "" {
		c.Hash = DefaultHash
	}
	if c.Access == "" {
		c.Access = DefaultAccess
	}
	return nil
}

// DB is a replicated key-value dataset. Writes and synchronization run one
// at a time on an internal queue; reads run concurrently with them.
type DB[T any] struct {
	log       *zap.Logger
	codec     ValueCodec[T]
	blocks    *Blocks
	records   records
	identity  *Identity
	manifest  *Manifest
	consensus Consensus
	gossip    Gossip
	now       func() time.Time
	label     string

	mu       sync.RWMutex
	items    *SortedItemsStore
	head     *Head
	lastTime int64

	forestMu sync.RWMutex
	forest   *Forest

	values      *lru.Cache
	queue       *taskQueue
	unsubscribe func()
	closeOnce   sync.Once
}

// Create starts a new dataset, storing its consensus record and manifest.
func Create[T any](ctx context.Context, cfg Config, codec ValueCodec[T]) (*DB[T], error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if cfg.Order < MinOrder || cfg.Order > MaxOrder {
		return nil, fmt.Errorf("%w: order %d not in [%d,%d]", ErrConfiguration, cfg.Order, MinOrder, MaxOrder)
	}
	blocks, identity, err := setup(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	recs := records{blocks: blocks, verifier: NewVerifier(blocks, 256)}

	cr := DefaultConsensusRecord()
	if cfg.ConsensusLogic != nil {
		cr = &ConsensusRecord{Version: ConsensusVersion, Name: "custom", Logic: cfg.ConsensusLogic}
	}
	if _, err := NewRulesConsensus(cr.Logic); err != nil {
		return nil, err
	}
	if err := recs.putConsensus(ctx, identity, cr); err != nil {
		return nil, err
	}
	m := &Manifest{
		Version:   ManifestVersion,
		Timestamp: cfg.Now().UnixMilli(),
		Name:      cfg.Name,
		Type:      DatasetType,
		Order:     cfg.Order,
		Hash:      cfg.Hash,
		Consensus: cr.ID,
		Access:    cfg.Access,
		Meta:      cfg.Meta,
	}
	if err := recs.putManifest(ctx, identity, m); err != nil {
		return nil, err
	}
	db, err := newDB(ctx, cfg, codec, blocks, recs, identity, m)
	if err != nil {
		return nil, err
	}
	db.log.Info("created dataset", zap.String("name", m.Name), zap.Int("order", m.Order), zap.String("hash", m.Hash))
	return db, nil
}

// Open joins the dataset at address. Its manifest must be reachable through
// cfg.Persist and hashed with cfg.Hash.
func Open[T any](ctx context.Context, address string, cfg Config, codec ValueCodec[T]) (*DB[T], error) {
	id, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	blocks, identity, err := setup(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	recs := records{blocks: blocks, verifier: NewVerifier(blocks, 256)}
	m, err := recs.manifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", address, err)
	}
	if m.Type != DatasetType {
		return nil, fmt.Errorf("%w: dataset type %q", ErrIncompatibleStructure, m.Type)
	}
	if m.Hash != cfg.Hash {
		return nil, fmt.Errorf("%w: dataset uses %s, configured %s", ErrConfiguration, m.Hash, cfg.Hash)
	}
	db, err := newDB(ctx, cfg, codec, blocks, recs, identity, m)
	if err != nil {
		return nil, err
	}
	db.log.Info("opened dataset", zap.String("name", m.Name))
	return db, nil
}

func setup(ctx context.Context, cfg *Config) (*Blocks, *Identity, error) {
	hash, err := HashFuncByName(cfg.Hash)
	if err != nil {
		return nil, nil, err
	}
	blocks := NewBlocks(cfg.Persist, hash, cfg.NodeCache)
	var identity *Identity
	if cfg.Key != nil {
		identity, err = IdentityFromKey(ctx, blocks, cfg.Key)
	} else {
		identity, err = NewIdentity(ctx, blocks)
	}
	if err != nil {
		return nil, nil, err
	}
	return blocks, identity, nil
}

func newDB[T any](ctx context.Context, cfg Config, codec ValueCodec[T], blocks *Blocks, recs records, identity *Identity, m *Manifest) (*DB[T], error) {
	forest, err := NewForest(m.Order, blocks)
	if err != nil {
		return nil, err
	}
	consensus := cfg.Consensus
	if consensus == nil {
		cr, err := recs.consensus(ctx, m.Consensus)
		if err != nil {
			return nil, err
		}
		if consensus, err = NewRulesConsensus(cr.Logic); err != nil {
			return nil, err
		}
	}
	values, err := lru.New(cfg.ValueCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	log := cfg.Logger.With(zap.String("dataset", m.Address()), zap.Stringer("identity", identity.ID()))
	db := &DB[T]{
		log:       log,
		codec:     codec,
		blocks:    blocks,
		records:   recs,
		identity:  identity,
		manifest:  m,
		consensus: consensus,
		gossip:    cfg.Gossip,
		now:       cfg.Now,
		label:     m.ID.String(),
		items:     NewSortedItemsStore(),
		forest:    forest,
		values:    values,
		queue:     newTaskQueue(log),
	}
	if db.gossip != nil {
		unsubscribe, err := db.gossip.Subscribe(m.Address(), db.onHead)
		if err != nil {
			db.queue.Close()
			return nil, fmt.Errorf("subscribe %s: %w", m.Address(), err)
		}
		db.unsubscribe = unsubscribe
		if cfg.BroadcastInterval > 0 {
			db.queue.Every(cfg.BroadcastInterval, "broadcast", db.broadcast)
		}
	}
	return db, nil
}

func (db *DB[T]) Address() string      { return db.manifest.Address() }
func (db *DB[T]) Manifest() *Manifest  { return db.manifest }
func (db *DB[T]) Identity() *Identity  { return db.identity }
func (db *DB[T]) Blocks() *Blocks      { return db.blocks }
func (db *DB[T]) Consensus() Consensus { return db.consensus }
func (db *DB[T]) Logger() *zap.Logger  { return db.log }
func (db *DB[T]) Codec() ValueCodec[T] { return db.codec }
func (db *DB[T]) Verifier() *Verifier  { return db.records.verifier }

// Size is the number of live keys.
func (db *DB[T]) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.items.Len()
}

// Root returns the id of the forest's root Pollard.
func (db *DB[T]) Root() (ID, error) {
	db.forestMu.RLock()
	defer db.forestMu.RUnlock()
	return db.forest.Root()
}

// Height is the number of forest layers.
func (db *DB[T]) Height() int {
	db.forestMu.RLock()
	defer db.forestMu.RUnlock()
	return db.forest.Height()
}

// Shape returns the number of Pollards per forest layer, bottom-up.
func (db *DB[T]) Shape() []int {
	db.forestMu.RLock()
	defer db.forestMu.RUnlock()
	return db.forest.Shape()
}

// Head returns the most recently created head, or nil.
func (db *DB[T]) Head() *Head {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.head
}

// Set writes value under key and waits until the forest reflects it. A
// write still queued when ctx is done is withdrawn; one already running
// completes and its result is returned.
func (db *DB[T]) Set(ctx context.Context, key string, value T) error {
	data, err := db.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return db.queue.Do(ctx, "set", func(ctx context.Context) error {
		return db.set(ctx, key, value, data)
	})
}

func (db *DB[T]) set(ctx context.Context, key string, value T, data []byte) error {
	e := &Entry{Version: EntryVersion, Timestamp: db.nextTimestamp(key), Key: key, Value: data}
	if err := db.admit(ctx, e.Timestamp, db.identity.ID()); err != nil {
		return err
	}
	if err := db.records.putEntry(ctx, db.identity, e); err != nil {
		return err
	}
	db.mu.Lock()
	prev, replaced, applied := db.items.Set(e.Timestamp, key, e.ID, e.Creator)
	if applied {
		db.values.Add(key, value)
	}
	db.mu.Unlock()
	if !applied {
		return fmt.Errorf("%w: write to %q at %d superseded by a newer entry", ErrConsensusRejected, key, e.Timestamp)
	}
	from := e.Timestamp
	if replaced {
		from = min(from, prev)
	}
	return db.rebuild(ctx, from)
}

// nextTimestamp returns the current time in milliseconds, bumped past every
// sort key applied so far and past the live entry for key. Merged entries
// from replicas with faster clocks advance it too.
func (db *DB[T]) nextTimestamp(key string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts := max(db.now().UnixMilli(), db.lastTime+1)
	if cur, ok := db.items.GetByKey(key); ok {
		ts = max(ts, cur.SortKey+1)
	}
	db.lastTime = ts
	return ts
}

// admit runs the consensus rule for an entry.
func (db *DB[T]) admit(ctx context.Context, timestamp int64, creator ID) error {
	ok, err := db.consensus.Execute(ctx, CheckPayload{
		Now:            db.now().UnixMilli(),
		DatasetCreator: db.manifest.Creator.String(),
		LocalIdentity:  db.identity.ID().String(),
		EntryTimestamp: timestamp,
		EntryCreator:   creator.String(),
	})
	if err != nil {
		return err
	}
	if !ok {
		rejectedCounter.WithLabelValues(db.label).Inc()
		return fmt.Errorf("%w: entry at %d by %s", ErrConsensusRejected, timestamp, creator)
	}
	return nil
}

func (db *DB[T]) rebuild(ctx context.Context, from int64) error {
	start := time.Now()
	db.forestMu.Lock()
	db.mu.RLock()
	err := db.forest.Rebuild(ctx, db.items, from)
	size := db.items.Len()
	db.mu.RUnlock()
	height := db.forest.Height()
	db.forestMu.Unlock()
	rebuildDuration.WithLabelValues(db.label).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	updateForestMetrics(db.label, size, height)
	return nil
}

// Get returns the live value of key.
func (db *DB[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if v, ok := db.values.Get(key); ok {
		return v.(T), nil
	}
	db.mu.RLock()
	item, ok := db.items.GetByKey(key)
	db.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	v, err := db.value(ctx, item)
	if err != nil {
		return zero, err
	}
	db.mu.RLock()
	cur, ok := db.items.GetByKey(key)
	if ok && cur.CID.Equal(item.CID) {
		db.values.Add(key, v)
	}
	db.mu.RUnlock()
	return v, nil
}

func (db *DB[T]) value(ctx context.Context, item SortedItem) (T, error) {
	var zero T
	e, err := db.records.entry(ctx, item.CID)
	if err != nil {
		return zero, err
	}
	v, err := db.codec.Unmarshal(e.Value)
	if err != nil {
		return zero, fmt.Errorf("unmarshal %q: %w", item.Key, err)
	}
	return v, nil
}

// Iter calls f for every live key in sort order, stopping at the first error.
func (db *DB[T]) Iter(ctx context.Context, f func(key string, value T) error) error {
	db.mu.RLock()
	snapshot := make([]SortedItem, 0, db.items.Len())
	for it := range db.items.Items() {
		snapshot = append(snapshot, it)
	}
	db.mu.RUnlock()
	for _, it := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		var v T
		if cached, ok := db.values.Get(it.Key); ok {
			v = cached.(T)
		} else {
			var err error
			if v, err = db.value(ctx, it); err != nil {
				return err
			}
		}
		if err := f(it.Key, v); err != nil {
			return err
		}
	}
	return nil
}

// Items returns the live entries in sort order.
func (db *DB[T]) Items() []SortedItem {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]SortedItem, 0, db.items.Len())
	for it := range db.items.Items() {
		out = append(out, it)
	}
	return out
}

// CreateOnlyNewHead stores and returns a head for the current root. It
// returns nil when the dataset is empty or the root has not changed since
// the last head.
func (db *DB[T]) CreateOnlyNewHead(ctx context.Context) (*Head, error) {
	var h *Head
	err := db.queue.Do(ctx, "head", func(ctx context.Context) error {
		var err error
		h, err = db.createOnlyNewHead(ctx)
		return err
	})
	return h, err
}

// CreateHead returns a head for the current root, reusing the last one when
// the root has not changed.
func (db *DB[T]) CreateHead(ctx context.Context) (*Head, error) {
	var h *Head
	err := db.queue.Do(ctx, "head", func(ctx context.Context) error {
		var err error
		h, err = db.createHead(ctx)
		return err
	})
	return h, err
}

func (db *DB[T]) createHead(ctx context.Context) (*Head, error) {
	h, err := db.createOnlyNewHead(ctx)
	if err != nil || h != nil {
		return h, err
	}
	if h = db.Head(); h == nil {
		return nil, ErrEmptyTree
	}
	return h, nil
}

func (db *DB[T]) createOnlyNewHead(ctx context.Context) (*Head, error) {
	db.forestMu.RLock()
	root, err := db.forest.Root()
	height := db.forest.Height()
	db.forestMu.RUnlock()
	if errors.Is(err, ErrEmptyTree) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if last := db.Head(); last != nil && last.Root.Equal(root) {
		return nil, nil
	}
	h := &Head{
		Version:     HeadVersion,
		Manifest:    db.manifest.ID,
		Root:        root,
		Timestamp:   db.now().UnixMilli(),
		LayersCount: height,
		Size:        db.Size(),
		Creator:     db.identity.ID(),
	}
	if err := db.records.putHead(ctx, db.identity, h); err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.head = h
	db.mu.Unlock()
	db.log.Debug("new head", zap.Stringer("head", h.ID), zap.Stringer("root", root), zap.Int("size", h.Size))
	return h, nil
}

// Compare returns the layer-0 leaves that differ between the local forest
// and the tree named by head: local-only first, then remote-only.
func (db *DB[T]) Compare(ctx context.Context, head *Head) (bool, [2][]Leaf, error) {
	var diff [2][]Leaf
	err := db.queue.Do(ctx, "compare", func(ctx context.Context) error {
		var err error
		diff, err = db.compare(ctx, head)
		return err
	})
	if err != nil {
		return false, diff, err
	}
	return len(diff[0]) == 0 && len(diff[1]) == 0, diff, nil
}

func (db *DB[T]) compare(ctx context.Context, head *Head) ([2][]Leaf, error) {
	if !head.Manifest.Equal(db.manifest.ID) {
		return [2][]Leaf{}, fmt.Errorf("%w: head %s belongs to dataset %s", ErrIncompatibleStructure, head.ID, head.Manifest)
	}
	db.forestMu.RLock()
	defer db.forestMu.RUnlock()
	local, remote, err := db.forest.Diff(ctx, head.Root, head.LayersCount)
	return [2][]Leaf{local, remote}, err
}

// Merge applies the entries of head that are newer than the local ones.
// Every candidate entry is verified and checked by the consensus rule first;
// if any is rejected nothing is applied.
func (db *DB[T]) Merge(ctx context.Context, head *Head) error {
	return db.queue.Do(ctx, "merge", func(ctx context.Context) error {
		return db.merge(ctx, head)
	})
}

func (db *DB[T]) merge(ctx context.Context, head *Head) error {
	diff, err := db.compare(ctx, head)
	if err != nil {
		return err
	}
	if len(diff[0]) == 0 && len(diff[1]) == 0 {
		syncCounter.WithLabelValues(db.label, "equal").Inc()
		return nil
	}
	var candidates []SortedEntry
	db.mu.RLock()
	for _, l := range diff[1] {
		se, ok := l.(SortedEntry)
		if !ok {
			continue
		}
		if cur, ok := db.items.GetByKey(se.Key); ok && cur.CID.Equal(se.Link) {
			continue
		}
		candidates = append(candidates, se)
	}
	db.mu.RUnlock()
	if err := db.check(ctx, candidates); err != nil {
		return err
	}
	applied, err := db.apply(ctx, candidates, math.MaxInt64)
	if err != nil {
		return err
	}
	syncCounter.WithLabelValues(db.label, "merged").Inc()
	db.log.Info("merged head", zap.Stringer("head", head.ID), zap.Stringer("from", head.Creator),
		zap.Int("candidates", len(candidates)), zap.Int("applied", applied))
	return nil
}

// check verifies that every leaf names a signed entry matching its key,
// timestamp and creator, and that the consensus rule accepts it.
func (db *DB[T]) check(ctx context.Context, leaves []SortedEntry) error {
	for _, se := range leaves {
		e, err := db.records.entry(ctx, se.Link)
		if err != nil {
			return err
		}
		if e.Key != se.Key || e.Timestamp != se.SortKey() || !e.Creator.Equal(se.Creator) {
			return fmt.Errorf("%w: leaf %s does not match entry %s", ErrInvalidStructure, se, e.ID)
		}
		if err := db.admit(ctx, e.Timestamp, e.Creator); err != nil {
			return fmt.Errorf("key %q: %w", se.Key, err)
		}
	}
	return nil
}

// apply sets every leaf and rebuilds the forest from the lowest affected
// sort key. from overrides that starting point when lower.
func (db *DB[T]) apply(ctx context.Context, leaves []SortedEntry, from int64) (int, error) {
	applied := 0
	db.mu.Lock()
	for _, se := range leaves {
		prev, replaced, ok := db.items.Set(se.SortKey(), se.Key, se.Link, se.Creator)
		if !ok {
			continue
		}
		applied++
		db.lastTime = max(db.lastTime, se.SortKey())
		from = min(from, se.SortKey())
		if replaced {
			from = min(from, prev)
		}
		db.values.Remove(se.Key)
	}
	db.mu.Unlock()
	if applied == 0 && from == math.MaxInt64 {
		return 0, nil
	}
	return applied, db.rebuild(ctx, from)
}

// Load fills an empty dataset from the tree named by head. A dataset that
// already holds entries is merged instead.
func (db *DB[T]) Load(ctx context.Context, head *Head) error {
	return db.queue.Do(ctx, "load", func(ctx context.Context) error {
		return db.load(ctx, head)
	})
}

func (db *DB[T]) load(ctx context.Context, head *Head) error {
	if !head.Manifest.Equal(db.manifest.ID) {
		return fmt.Errorf("%w: head %s belongs to dataset %s", ErrIncompatibleStructure, head.ID, head.Manifest)
	}
	if db.Size() > 0 {
		return db.merge(ctx, head)
	}
	entries, err := db.walk(ctx, head)
	if err != nil {
		return err
	}
	if err := db.check(ctx, entries); err != nil {
		return err
	}
	applied, err := db.apply(ctx, entries, RebuildAll)
	if err != nil {
		return err
	}
	syncCounter.WithLabelValues(db.label, "loaded").Inc()
	db.log.Info("loaded head", zap.Stringer("head", head.ID), zap.Stringer("from", head.Creator), zap.Int("entries", applied))
	return nil
}

// walk collects the entries of a remote tree breadth-first.
func (db *DB[T]) walk(ctx context.Context, head *Head) ([]SortedEntry, error) {
	var entries []SortedEntry
	level := []ID{head.Root}
	depth := 0
	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		depth++
		var next []ID
		found := 0
		for _, id := range level {
			p, err := db.blocks.GetPollard(ctx, id)
			if err != nil {
				return nil, err
			}
			if p.Order() != db.manifest.Order {
				return nil, fmt.Errorf("%w: pollard %s has order %d", ErrIncompatibleStructure, id, p.Order())
			}
			for leaf := range p.Leaves() {
				switch l := leaf.(type) {
				case Empty:
				case PollardLink:
					next = append(next, l.ID)
				case SortedEntry:
					entries = append(entries, l)
					found++
				default:
					return nil, fmt.Errorf("%w: %s leaf in pollard %s", ErrInvalidStructure, leaf.Kind(), id)
				}
			}
		}
		if found > 0 && len(next) > 0 {
			return nil, fmt.Errorf("%w: layer %d mixes links and entries", ErrInvalidStructure, depth)
		}
		level = next
	}
	if head.LayersCount > 0 && depth != head.LayersCount {
		return nil, fmt.Errorf("%w: head claims %d layers, found %d", ErrInvalidStructure, head.LayersCount, depth)
	}
	return entries, nil
}

// Sync fetches the head with the given id and merges or loads it.
func (db *DB[T]) Sync(ctx context.Context, id ID) error {
	return db.queue.Do(ctx, "sync", func(ctx context.Context) error {
		return db.sync(ctx, id)
	})
}

func (db *DB[T]) sync(ctx context.Context, id ID) error {
	head, err := db.records.head(ctx, id)
	if err != nil {
		syncCounter.WithLabelValues(db.label, "failed").Inc()
		return err
	}
	if head.Creator.Equal(db.identity.ID()) {
		return nil
	}
	if root, err := db.Root(); err == nil && root.Equal(head.Root) {
		syncCounter.WithLabelValues(db.label, "equal").Inc()
		return nil
	}
	if db.Size() == 0 {
		err = db.load(ctx, head)
	} else {
		err = db.merge(ctx, head)
	}
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrConsensusRejected) {
			outcome = "rejected"
		}
		syncCounter.WithLabelValues(db.label, outcome).Inc()
	}
	return err
}

func (db *DB[T]) onHead(data []byte) {
	id := ID(bytes.Clone(data))
	db.queue.Enqueue("sync", func(ctx context.Context) error {
		if err := db.sync(ctx, id); err != nil {
			db.log.Warn("sync failed", zap.Stringer("head", id), zap.Error(err))
			return err
		}
		return nil
	})
}

// Broadcast announces the current head on the dataset's gossip topic.
func (db *DB[T]) Broadcast(ctx context.Context) error {
	return db.queue.Do(ctx, "broadcast", db.broadcast)
}

func (db *DB[T]) broadcast(ctx context.Context) error {
	if db.gossip == nil {
		return fmt.Errorf("%w: no gossip", ErrConfiguration)
	}
	h, err := db.createHead(ctx)
	if errors.Is(err, ErrEmptyTree) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := db.gossip.Publish(ctx, db.manifest.Address(), h.ID); err != nil {
		return fmt.Errorf("publish head: %w", err)
	}
	broadcastCounter.WithLabelValues(db.label).Inc()
	return nil
}

// Close stops replication, drops queued work and releases in-memory state.
// Blocks already stored remain in the Persist.
func (db *DB[T]) Close() error {
	db.closeOnce.Do(func() {
		if db.unsubscribe != nil {
			db.unsubscribe()
		}
		db.queue.Close()
		db.mu.Lock()
		db.items.Clear()
		db.head = nil
		db.mu.Unlock()
		db.forestMu.Lock()
		db.forest.Reset()
		db.forestMu.Unlock()
		db.values.Purge()
		db.log.Info("closed dataset")
	})
	return nil
}

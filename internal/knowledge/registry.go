package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"
)

// ErrDomainNotFound is returned for domain names the registry does not know.
// An empty-but-known domain is not an error.
var ErrDomainNotFound = errors.New("unknown knowledge domain")

const embedBatchSize = 32

// Embedder is the slice of the provider client the registry needs.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Snapshot is one immutable view of a domain: its chunk set plus the vector
// and keyword indexes built from it. Readers obtain a snapshot and use it
// without locking; rebuilds swap in a fresh snapshot atomically.
type Snapshot struct {
	Domain  string
	Version uint64
	Index   *VectorIndex
	Keyword *KeywordIndex
}

// Chunks returns the snapshot's chunk set in id order.
func (s *Snapshot) Chunks() []Chunk { return s.Index.Chunks() }

// Len returns the number of chunks in the snapshot.
func (s *Snapshot) Len() int { return s.Index.Len() }

// DomainInfo summarises one domain for introspection endpoints.
type DomainInfo struct {
	Name    string `json:"name"`
	Chunks  int    `json:"chunks"`
	Version uint64 `json:"version"`
}

type domainEntry struct {
	name string
	snap atomic.Pointer[Snapshot]

	// write serializes rebuild and ingest for the domain. Readers stay
	// lock-free on the snapshot pointer; writers must hold write from the
	// moment they read the current snapshot until they swap in the new one.
	write sync.Mutex
}

// Registry owns all per-domain state. Domains are fixed at startup; their
// contents change through Ingest and RebuildDomain.
type Registry struct {
	embedder Embedder
	model    string
	dir      string
	logger   *log.Logger
	domains  map[string]*domainEntry
}

// NewRegistry creates a registry with an empty snapshot per known domain.
func NewRegistry(domains []string, embedder Embedder, model, dir string, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags)
	}
	r := &Registry{
		embedder: embedder,
		model:    model,
		dir:      dir,
		logger:   logger,
		domains:  make(map[string]*domainEntry, len(domains)),
	}
	for _, name := range domains {
		kw, err := NewKeywordIndex(nil)
		if err != nil {
			return nil, err
		}
		entry := &domainEntry{name: name}
		entry.snap.Store(&Snapshot{Domain: name, Index: NewVectorIndex(name), Keyword: kw})
		r.domains[name] = entry
	}
	return r, nil
}

// Get returns the current snapshot for domain.
func (r *Registry) Get(domain string) (*Snapshot, error) {
	entry, ok := r.domains[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	return entry.snap.Load(), nil
}

// Domains lists all known domains with their current sizes, sorted by name.
func (r *Registry) Domains() []DomainInfo {
	infos := make([]DomainInfo, 0, len(r.domains))
	for _, entry := range r.domains {
		snap := entry.snap.Load()
		infos = append(infos, DomainInfo{Name: entry.name, Chunks: snap.Len(), Version: snap.Version})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// RebuildDomain replaces the domain's entire chunk set, embedding every chunk
// and swapping in the new snapshot atomically. Readers never observe a
// half-built index.
func (r *Registry) RebuildDomain(ctx context.Context, domain string, chunks []Chunk) error {
	entry, ok := r.domains[domain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	entry.write.Lock()
	defer entry.write.Unlock()

	ix := NewVectorIndex(domain)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := r.embedder.Embed(ctx, r.model, texts)
		if err != nil {
			return fmt.Errorf("embed domain %s: %w", domain, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed domain %s: expected %d vectors, got %d", domain, len(batch), len(vectors))
		}
		for i := range batch {
			if err := ix.Add(batch[i], vectors[i]); err != nil {
				return fmt.Errorf("rebuild %s: %w", domain, err)
			}
		}
	}
	return r.swap(entry, ix)
}

// Ingest appends new chunks to a domain, assigning ordinal ids after the
// current maximum, and swaps in an updated snapshot. Existing chunks keep
// their vectors; only the new chunks are embedded.
func (r *Registry) Ingest(ctx context.Context, domain string, incoming []IncomingChunk) (int, error) {
	entry, ok := r.domains[domain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	if len(incoming) == 0 {
		return 0, nil
	}
	entry.write.Lock()
	defer entry.write.Unlock()

	cur := entry.snap.Load().Index
	nextID := 1
	if n := len(cur.chunks); n > 0 {
		nextID = cur.chunks[n-1].ID + 1
	}

	texts := make([]string, len(incoming))
	chunks := make([]Chunk, len(incoming))
	for i, in := range incoming {
		texts[i] = in.Text
		chunks[i] = Chunk{
			ID:         nextID + i,
			Text:       in.Text,
			TokenCount: EstimateTokens(in.Text),
			SourceRef:  in.SourceRef,
		}
	}
	vectors, err := r.embedder.Embed(ctx, r.model, texts)
	if err != nil {
		return 0, fmt.Errorf("embed ingest for %s: %w", domain, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed ingest for %s: expected %d vectors, got %d", domain, len(chunks), len(vectors))
	}

	ix := NewVectorIndex(domain)
	for i := range cur.chunks {
		if err := ix.Add(cur.chunks[i], cur.vectors[i]); err != nil {
			return 0, fmt.Errorf("ingest %s: %w", domain, err)
		}
	}
	for i := range chunks {
		if err := ix.Add(chunks[i], vectors[i]); err != nil {
			return 0, fmt.Errorf("ingest %s: %w", domain, err)
		}
	}
	if err := r.swap(entry, ix); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// swap publishes a new snapshot for the entry. Callers must hold entry.write.
func (r *Registry) swap(entry *domainEntry, ix *VectorIndex) error {
	kw, err := NewKeywordIndex(ix.Chunks())
	if err != nil {
		return fmt.Errorf("keyword index for %s: %w", entry.name, err)
	}
	prev := entry.snap.Load()
	entry.snap.Store(&Snapshot{
		Domain:  entry.name,
		Version: prev.Version + 1,
		Index:   ix,
		Keyword: kw,
	})
	r.logger.Printf("domain %s now at version %d with %d chunks", entry.name, prev.Version+1, ix.Len())
	return nil
}

// PersistAll writes every domain's index to disk. Failures are logged per
// domain; the first error is returned after all domains were attempted.
func (r *Registry) PersistAll() error {
	var firstErr error
	for _, entry := range r.domains {
		snap := entry.snap.Load()
		if err := snap.Index.Save(r.indexPath(entry.name)); err != nil {
			r.logger.Printf("warn: persist %s failed: %v", entry.name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoadAll restores every domain from disk. Missing files leave the domain
// empty. A corrupt file triggers a rebuild from its salvaged chunk metadata
// instead of failing startup.
func (r *Registry) LoadAll(ctx context.Context) error {
	for _, entry := range r.domains {
		path := r.indexPath(entry.name)
		ix, err := LoadIndex(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			var corrupt *CorruptIndexError
			if errors.As(err, &corrupt) {
				r.logger.Printf("warn: index for %s is corrupt (%s); rebuilding from %d salvaged chunks",
					entry.name, corrupt.Reason, len(corrupt.Chunks))
				if rbErr := r.RebuildDomain(ctx, entry.name, corrupt.Chunks); rbErr != nil {
					return fmt.Errorf("rebuild after corruption for %s: %w", entry.name, rbErr)
				}
				continue
			}
			return fmt.Errorf("load index for %s: %w", entry.name, err)
		}
		entry.write.Lock()
		err = r.swap(entry, ix)
		entry.write.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// StartPersistLoop persists all domains on the given cron schedule until ctx
// is cancelled. A final persist runs on shutdown.
func (r *Registry) StartPersistLoop(ctx context.Context, cronSpec string) error {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return fmt.Errorf("parse persist cron %q: %w", cronSpec, err)
	}
	go func() {
		for {
			next := expr.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				if err := r.PersistAll(); err != nil {
					r.logger.Printf("warn: final persist failed: %v", err)
				}
				return
			case <-timer.C:
				if err := r.PersistAll(); err != nil {
					r.logger.Printf("warn: periodic persist failed: %v", err)
				}
			}
		}
	}()
	return nil
}

func (r *Registry) indexPath(domain string) string {
	return filepath.Join(r.dir, domain+".json")
}

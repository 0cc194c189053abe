package extraction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory table of extraction jobs. It owns all locking:
// the map is guarded by an RWMutex and every record has its own mutex, so
// slow writers on one job never block readers of another.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*storeEntry
	now   func() time.Time
	newID func() string
}

type storeEntry struct {
	mu  sync.Mutex
	job Job
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs:  make(map[string]*storeEntry),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Create inserts a new pending job and returns its snapshot.
func (s *Store) Create(meta SubmissionMeta) Job {
	now := s.now()
	job := Job{
		Status:      StatusPending,
		Progress:    ProgressQueued,
		SourceName:  meta.SourceName,
		ContentType: meta.ContentType,
		SizeBytes:   meta.Size,
		Frames:      []Frame{},
		Items:       []Item{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		job.ID = s.newID()
		if _, exists := s.jobs[job.ID]; !exists {
			break
		}
	}
	s.jobs[job.ID] = &storeEntry{job: job}
	return job.clone()
}

func (s *Store) entry(id string) (*storeEntry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Update applies fn to a working copy of the job and commits it only if fn
// returns nil. Mutations on the same job are serialized.
func (s *Store) Update(id string, fn func(*Job) error) (Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.job.clone()
	if err := fn(&working); err != nil {
		return e.job.clone(), err
	}
	working.ID = e.job.ID
	working.UpdatedAt = s.now()
	e.job = working
	return e.job.clone(), nil
}

// AppendItem appends a single item to the job.
func (s *Store) AppendItem(id string, item Item) (Item, error) {
	added, err := s.AppendItems(id, []Item{item})
	if err != nil {
		return Item{}, err
	}
	return added[0], nil
}

// AppendItems appends items to the job without touching existing entries.
// Items without an ID get one derived from their source and position.
func (s *Store) AppendItems(id string, items []Item) ([]Item, error) {
	var added []Item
	_, err := s.Update(id, func(j *Job) error {
		added = make([]Item, 0, len(items))
		for _, it := range items {
			added = append(added, appendItem(j, it))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Prune removes terminal jobs that finished more than olderThan ago.
// Returns the number of removed jobs.
func (s *Store) Prune(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.jobs {
		e.mu.Lock()
		expired := e.job.Status.IsTerminal() && e.job.FinishedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// appendItem adds it to j, assigning an ID when it has none or its ID is
// already taken.
func appendItem(j *Job, it Item) Item {
	if it.Source == "" {
		it.Source = ItemSourcePipeline
	}
	if it.ID == "" || j.hasItem(it.ID) {
		it.ID = nextItemID(j, it.Source)
	}
	j.Items = append(j.Items, it)
	return it
}

func (j *Job) hasItem(id string) bool {
	for _, it := range j.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func nextItemID(j *Job, source string) string {
	prefix := "item"
	if source == ItemSourceManual {
		prefix = "manual_item"
	}
	n := len(j.Items)
	for {
		id := fmt.Sprintf("%s_%d", prefix, n)
		if !j.hasItem(id) {
			return id
		}
		n++
	}
}

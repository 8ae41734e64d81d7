package store

import (
	"context"
	"sync"
	"time"

	"infosync/internal/information/models"
	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
	"infosync/pkg/platform/sentinel"
)

const (
	numShards              = 128
	defaultMemoryTxTimeout = 5 * time.Second
)

// InMemoryStore keeps everything in maps. Transactions are serialized per
// lock key through a sharded mutex; there is no rollback, so callers check
// before they mutate.
type InMemoryStore struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration

	mu            sync.RWMutex
	persons       map[domain.PersonID]models.Person
	insurers      map[domain.InsurerID]models.Insurer
	records       map[domain.InformationID]models.InformationRecord
	notifications map[domain.NotificationID]models.Notification
	nextID        int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		persons:       make(map[domain.PersonID]models.Person),
		insurers:      make(map[domain.InsurerID]models.Insurer),
		records:       make(map[domain.InformationID]models.InformationRecord),
		notifications: make(map[domain.NotificationID]models.Notification),
	}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultMemoryTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &s.shards[shardFor(lockKeyFrom(ctx))]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(s)
}

// shardFor hashes key with FNV-1a. An empty key maps to shard 0.
func shardFor(key string) int {
	if key == "" {
		return 0
	}
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return int(h % numShards)
}

func (s *InMemoryStore) next() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) CreatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.Origin.IsZero() {
		for _, existing := range s.persons {
			if existing.Origin == p.Origin {
				return sentinel.ErrConflict
			}
		}
	}
	p.ID = domain.PersonID(s.next())
	s.persons[p.ID] = *p
	return nil
}

func (s *InMemoryStore) UpdatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.persons[p.ID] = *p
	return nil
}

func (s *InMemoryStore) FindPerson(_ context.Context, id domain.PersonID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) FindPersonByOrigin(_ context.Context, ref domain.ForeignRef) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.persons {
		if p.Origin == ref {
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) CreateInsurer(_ context.Context, i *models.Insurer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i.ID = domain.InsurerID(s.next())
	s.insurers[i.ID] = *i
	return nil
}

func (s *InMemoryStore) FindInsurer(_ context.Context, id domain.InsurerID) (*models.Insurer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.insurers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &i, nil
}

func (s *InMemoryStore) CreateRecord(_ context.Context, r *models.InformationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[r.PersonID]; !ok {
		return sentinel.ErrNotFound
	}
	if !r.Origin.IsZero() {
		for _, existing := range s.records {
			if existing.Origin == r.Origin {
				return sentinel.ErrConflict
			}
		}
	}
	r.ID = domain.InformationID(s.next())
	s.records[r.ID] = copyRecord(*r)
	return nil
}

func (s *InMemoryStore) UpdateRecord(_ context.Context, r *models.InformationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[r.ID] = copyRecord(*r)
	return nil
}

func (s *InMemoryStore) FindRecord(_ context.Context, id domain.InformationID) (*models.InformationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r = copyRecord(r)
	return &r, nil
}

func (s *InMemoryStore) FindRecordByOrigin(_ context.Context, ref domain.ForeignRef) (*models.InformationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Origin == ref {
			r = copyRecord(r)
			return &r, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[n.InformationID]; !ok {
		return sentinel.ErrNotFound
	}
	n.ID = domain.NotificationID(s.next())
	s.notifications[n.ID] = *n
	return nil
}

func (s *InMemoryStore) FindNotification(_ context.Context, id domain.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &n, nil
}

func (s *InMemoryStore) MarkDelivered(_ context.Context, id domain.NotificationID, sentAt time.Time, delivered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.SentAt = sentAt
	n.Delivered = delivered
	s.notifications[id] = n
	return nil
}

func (s *InMemoryStore) MarkAcknowledged(_ context.Context, id domain.NotificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.Acknowledged = true
	s.notifications[id] = n
	return nil
}

// copyRecord detaches the InsurerID pointer from the caller's value.
func copyRecord(r models.InformationRecord) models.InformationRecord {
	if r.InsurerID != nil {
		id := *r.InsurerID
		r.InsurerID = &id
	}
	return r
}

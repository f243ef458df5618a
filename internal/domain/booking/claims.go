package booking

import (
	"context"
	"sync"
)

// SlotKey identifies one bookable slot of one barber.
type SlotKey struct {
	BarberID string
	Date     string
	Time     string
}

func (k SlotKey) String() string {
	return k.BarberID + ":" + k.Date + ":" + k.Time
}

func KeyFor(req Request) SlotKey {
	return SlotKey{BarberID: req.BarberID, Date: req.Date, Time: req.Time}
}

// SlotClaimer enforces one booking per slot. Claim returns false when
// another owner holds the slot; claiming again as the same owner succeeds.
type SlotClaimer interface {
	Claim(ctx context.Context, key SlotKey, owner string) (bool, error)
	Release(ctx context.Context, key SlotKey, owner string) error
}

// MemoryClaimer keeps claims in process. It is enough for a single
// instance; multi-instance deployments use the redis claimer.
type MemoryClaimer struct {
	mu     sync.Mutex
	owners map[SlotKey]string
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{owners: map[SlotKey]string{}}
}

func (m *MemoryClaimer) Claim(_ context.Context, key SlotKey, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.owners[key]; ok {
		return cur == owner, nil
	}
	m.owners[key] = owner
	return true, nil
}

func (m *MemoryClaimer) Release(_ context.Context, key SlotKey, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[key] == owner {
		delete(m.owners, key)
	}
	return nil
}

var _ SlotClaimer = (*MemoryClaimer)(nil)

package model

// Persistent is embedded by entities that live in the store. Stored and
// loaded entities are frozen; mutating methods panic with a FrozenError
// unless the owner opened an explicit Unfreeze/Freeze window first.
//
// Fields of a frozen entity must not be assigned directly either. The gate
// only protects the mutating methods, so code outside this package goes
// through them.
type Persistent struct {
	frozen bool
}

// Freeze marks the entity read-only.
func (p *Persistent) Freeze() { p.frozen = true }

// Unfreeze opens a mutation window. The caller owns the entity until Freeze.
func (p *Persistent) Unfreeze() { p.frozen = false }

// IsFrozen reports whether the entity is currently read-only.
func (p *Persistent) IsFrozen() bool { return p.frozen }

func (p *Persistent) mustBeMutable(kind, id string) {
	if p.frozen {
		panic(&FrozenError{Kind: kind, ID: id})
	}
}

// Mutable is implemented by every entity embedding Persistent.
type Mutable interface {
	Freeze()
	Unfreeze()
	IsFrozen() bool
}

// Mutate runs fn inside an Unfreeze/Freeze window and restores the previous
// frozen state afterwards, even when fn panics.
func Mutate(m Mutable, fn func()) {
	wasFrozen := m.IsFrozen()
	m.Unfreeze()
	defer func() {
		if wasFrozen {
			m.Freeze()
		}
	}()
	fn()
}

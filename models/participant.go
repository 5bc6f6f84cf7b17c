package models

// A scene participant.
type Participant struct {
	ID uint32

	entityIDs map[uint32]struct{}
}

func (p *Participant) AddEntity(e *Entity) {
	if p.entityIDs == nil {
		p.entityIDs = make(map[uint32]struct{})
	}
	p.entityIDs[e.ID] = struct{}{}
}

func (p *Participant) RemoveEntity(e *Entity) {
	delete(p.entityIDs, e.ID)
}

func (p *Participant) EntityIDs() map[uint32]struct{} {
	return p.entityIDs
}

// Owns reports whether the participant added the entity.
func (p *Participant) Owns(e *Entity) bool {
	return e.ParticipantID == p.ID
}

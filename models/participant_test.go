package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParticipantAddEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	require.Len(t, p.EntityIDs(), 1)
}

func TestParticipantRemoveEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	p.RemoveEntity(e)
	require.Empty(t, p.EntityIDs())
}

func TestParticipantOwns(t *testing.T) {
	p := Participant{ID: 1}

	require.True(t, p.Owns(&Entity{ID: 7, ParticipantID: 1}))
	require.False(t, p.Owns(&Entity{ID: 8, ParticipantID: 2}))
}

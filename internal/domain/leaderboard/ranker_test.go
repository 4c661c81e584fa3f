package leaderboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

var now = time.Date(2024, time.January, 17, 20, 0, 0, 0, time.UTC)

func participant(id string, steps int, at time.Time) *competition.Participant {
	return &competition.Participant{
		ID:      id,
		ScopeID: "guild-1",
		History: []competition.SubmissionRecord{
			{ID: id + "-1", Timestamp: at, StepCount: steps, Source: competition.SourceDeviceAPI},
		},
	}
}

func resolveAll(p *competition.Participant) (Identity, bool) {
	return Identity{ChatIdentity: "chat-" + p.ID, DisplayName: "user " + p.ID}, true
}

func TestRank_TiesGetDistinctRanks(t *testing.T) {
	ranker := NewRanker(nil)

	participants := []*competition.Participant{
		participant("c", 5000, now.Add(-3*time.Hour)),
		participant("b", 8000, now.Add(-1*time.Hour)),
		participant("a", 8000, now.Add(-2*time.Hour)),
	}

	entries := ranker.Rank(participants, nil, now, resolveAll)

	require.Len(t, entries, 3)
	assert.Equal(t, []shared.Rank{1, 2, 3}, []shared.Rank{entries[0].Rank, entries[1].Rank, entries[2].Rank})
	assert.Equal(t, []int{8000, 8000, 5000}, []int{entries[0].Steps, entries[1].Steps, entries[2].Steps})

	// "a" reached 8000 first.
	assert.Equal(t, "a", entries[0].ParticipantID)
	assert.Equal(t, "b", entries[1].ParticipantID)
	assert.True(t, entries[0].IsLeader)
	assert.False(t, entries[1].IsLeader)
	assert.False(t, entries[2].IsLeader)
}

func TestRank_TieBreakUsesTheRecordThatCounted(t *testing.T) {
	ranker := NewRanker(nil)
	anchor := time.Date(2024, time.January, 17, 23, 59, 0, 0, time.UTC)
	cfg := &competition.CompetitionConfig{ScopeID: "guild-1", AnchorStartDate: &anchor}

	// "ann" replaced an early 3000 with 8000 later in the same period; the
	// 8000 is what counts, so her total was reached after "bob"'s.
	ann := &competition.Participant{ID: "ann", ScopeID: "guild-1", History: []competition.SubmissionRecord{
		{ID: "a1", Timestamp: now.Add(-5 * time.Hour), StepCount: 3000, Source: competition.SourceDeviceAPI},
		{ID: "a2", Timestamp: now.Add(2 * time.Hour), StepCount: 8000, Source: competition.SourceDeviceAPI},
	}}
	bob := participant("bob", 8000, now.Add(-3*time.Hour))

	entries := ranker.Rank([]*competition.Participant{ann, bob}, cfg, now, resolveAll)

	require.Len(t, entries, 2)
	assert.Equal(t, []int{8000, 8000}, []int{entries[0].Steps, entries[1].Steps})
	assert.Equal(t, "bob", entries[0].ParticipantID)
	assert.Equal(t, "ann", entries[1].ParticipantID)
	assert.Equal(t, now.Add(2*time.Hour), entries[1].LastSubmissionAt)
}

func TestRank_TieOnTimeFallsBackToID(t *testing.T) {
	ranker := NewRanker(nil)
	at := now.Add(-time.Hour)

	entries := ranker.Rank([]*competition.Participant{
		participant("zed", 100, at),
		participant("amy", 100, at),
		{ID: "new", ScopeID: "guild-1"},
	}, nil, now, resolveAll)

	require.Len(t, entries, 3)
	assert.Equal(t, "amy", entries[0].ParticipantID)
	assert.Equal(t, "zed", entries[1].ParticipantID)
	assert.Equal(t, "new", entries[2].ParticipantID)
	assert.Equal(t, 0, entries[2].Steps)
}

func TestRank_ExcludesUnresolved(t *testing.T) {
	ranker := NewRanker(nil)

	participants := []*competition.Participant{
		participant("linked", 1000, now.Add(-time.Hour)),
		participant("unlinked", 9000, now.Add(-time.Hour)),
		nil,
	}
	resolve := func(p *competition.Participant) (Identity, bool) {
		if p.ID == "unlinked" {
			return Identity{}, false
		}
		return resolveAll(p)
	}

	entries := ranker.Rank(participants, nil, now, resolve)

	require.Len(t, entries, 1)
	assert.Equal(t, "linked", entries[0].ParticipantID)
	assert.Equal(t, shared.Rank(1), entries[0].Rank)
	assert.Equal(t, "user linked", entries[0].DisplayName)
	assert.Equal(t, "chat-linked", entries[0].ChatIdentity)
}

func TestRank_EmptyWhenNobodyResolves(t *testing.T) {
	ranker := NewRanker(nil)
	none := func(*competition.Participant) (Identity, bool) { return Identity{}, false }

	entries := ranker.Rank([]*competition.Participant{participant("a", 1, now)}, nil, now, none)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	board := ranker.Build("guild-1", nil, nil, now, resolveAll)
	assert.True(t, board.IsEmpty())
	_, ok := board.Leader()
	assert.False(t, ok)
}

func TestRank_OutputProperties(t *testing.T) {
	ranker := NewRanker(nil)

	var participants []*competition.Participant
	for i := 0; i < 40; i++ {
		participants = append(participants, participant(fmt.Sprintf("p%02d", i), (i*7919)%5000, now.Add(-time.Duration(i)*time.Minute)))
	}
	resolve := func(p *competition.Participant) (Identity, bool) {
		if p.ID[len(p.ID)-1] == '3' {
			return Identity{}, false
		}
		return resolveAll(p)
	}

	entries := ranker.Rank(participants, nil, now, resolve)

	assert.LessOrEqual(t, len(entries), len(participants))
	for i, e := range entries {
		assert.Equal(t, shared.Rank(i+1), e.Rank)
		assert.GreaterOrEqual(t, e.Steps, 0)
		if i > 0 {
			assert.LessOrEqual(t, e.Steps, entries[i-1].Steps)
		}
	}
}

func TestRank_UsesPeriodTotals(t *testing.T) {
	ranker := NewRanker(nil)
	anchor := time.Date(2024, time.January, 17, 23, 59, 0, 0, time.UTC)
	cfg := &competition.CompetitionConfig{ScopeID: "guild-1", AnchorStartDate: &anchor}

	old := participant("old", 9000, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC))
	fresh := participant("fresh", 1000, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))

	entries := ranker.Rank([]*competition.Participant{old, fresh}, cfg, now, resolveAll)

	require.Len(t, entries, 2)
	assert.Equal(t, "fresh", entries[0].ParticipantID)
	assert.Equal(t, 0, entries[1].Steps, "submissions before the first period do not count")
}

func TestLeaderboard_Helpers(t *testing.T) {
	ranker := NewRanker(nil)
	board := ranker.Build("guild-1", []*competition.Participant{
		participant("a", 10, now.Add(-time.Hour)),
		participant("b", 20, now.Add(-time.Hour)),
	}, nil, now, resolveAll)

	leader, ok := board.Leader()
	require.True(t, ok)
	assert.Equal(t, "b", leader.ParticipantID)

	entry, ok := board.FindByParticipant("a")
	require.True(t, ok)
	assert.Equal(t, shared.Rank(2), entry.Rank)

	assert.Len(t, board.Top(1), 1)
	assert.Len(t, board.Top(10), 2)
	assert.Nil(t, board.Top(0))
}

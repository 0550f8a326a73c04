package leaderboard

import (
	"sync"

	"questkit/core"
)

// Entry represents a score entry.
type Entry struct {
	User  core.UserID
	Score int64
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// ClaimBoard ranks users by the number of quest rewards they have
// claimed. It consumes domain events, so it can be chained into the
// analytics bridge alongside the other hooks.
type ClaimBoard struct {
	mu     sync.Mutex
	claims map[core.UserID]int64
	board  Board
}

func NewClaimBoard() *ClaimBoard {
	return &ClaimBoard{
		claims: map[core.UserID]int64{},
		board:  NewSkipList(),
	}
}

// OnEvent counts quest_claimed events per user.
func (c *ClaimBoard) OnEvent(e core.Event) {
	if e.Type != core.EventQuestClaimed {
		return
	}
	c.mu.Lock()
	c.claims[e.UserID]++
	score := c.claims[e.UserID]
	c.mu.Unlock()
	c.board.Update(e.UserID, score)
}

// TopN returns the highest-ranked claimers, best first.
func (c *ClaimBoard) TopN(n int) []Entry {
	return c.board.TopN(n)
}

// Rank returns a user's claim count, or false if the user has never
// claimed a reward.
func (c *ClaimBoard) Rank(user core.UserID) (Entry, bool) {
	return c.board.Get(user)
}

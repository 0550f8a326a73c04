package leaderboard

import (
	"testing"

	"questkit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID(1), 10)
	s.Update(core.UserID(2), 20)
	s.Update(core.UserID(3), 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != core.UserID(2) || top[1].User != core.UserID(3) || top[2].User != core.UserID(1) {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.UserID(1), 25)
	top = s.TopN(1)
	if top[0].User != core.UserID(1) {
		t.Fatalf("top should be user 1, got %#v", top)
	}
}

func TestSkipListRemove(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID(1), 10)
	s.Update(core.UserID(2), 20)
	s.Remove(core.UserID(2))
	if _, ok := s.Get(core.UserID(2)); ok {
		t.Fatal("user 2 should be gone")
	}
	top := s.TopN(5)
	if len(top) != 1 || top[0].User != core.UserID(1) {
		t.Fatalf("unexpected board: %#v", top)
	}
}

func TestClaimBoardCountsClaims(t *testing.T) {
	b := NewClaimBoard()
	b.OnEvent(core.NewQuestClaimed(1, 1, 1, core.ItemGold, 50))
	b.OnEvent(core.NewQuestClaimed(2, 1, 1, core.ItemGold, 50))
	b.OnEvent(core.NewQuestClaimed(2, 2, 1, core.ItemDiamond, 5))
	b.OnEvent(core.NewProgressAdvanced(3, 1, 1, 1, 3))

	top := b.TopN(3)
	if len(top) != 2 {
		t.Fatalf("expected two claimers, got %#v", top)
	}
	if top[0].User != core.UserID(2) || top[0].Score != 2 {
		t.Fatalf("unexpected leader: %#v", top[0])
	}
	if _, ok := b.Rank(core.UserID(3)); ok {
		t.Fatal("user 3 never claimed")
	}
}

package main

import (
	"log/slog"
	"net/http"
	"os"

	"questkit/api/httpapi"
	"questkit/core"
	"questkit/quests"
	"questkit/realtime"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	catalog := quests.NewStaticCatalog(
		[]core.QuestDefinition{
			{QuestID: 1, Name: "Daily Sign-In", Streak: 3, Duplication: 2, AutoClaim: false, RewardID: 10},
			{QuestID: 2, Name: "First Login", Streak: 1, Duplication: 1, AutoClaim: true, RewardID: 11},
			{QuestID: 3, Name: "Weekly Streak", Streak: 7, Duplication: 4, AutoClaim: false, RewardID: 10},
		},
		[]core.RewardDefinition{
			{RewardID: 10, Name: "Gold Pouch", Item: core.ItemGold, Qty: 50},
			{RewardID: 11, Name: "Starter Diamonds", Item: core.ItemDiamond, Qty: 5},
		},
	)

	hub := realtime.NewHub()
	svc := quests.New(
		quests.WithCatalog(catalog),
		quests.WithWallet(quests.NewMemoryWallet()),
		quests.WithRealtime(hub),
	)

	handler := httpapi.NewMux(svc, hub, httpapi.Options{})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

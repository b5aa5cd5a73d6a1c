package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/database"
	"github.com/hostedid/sendout/internal/model"
	"github.com/hostedid/sendout/internal/repository"
)

var (
	historyLimit int
	historyID    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sendouts and their delivery records",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sendouts to show")
	historyCmd.Flags().StringVar(&historyID, "id", "", "show only the sendout with this ID")
}

type historyEntry struct {
	model.Sendout
	Deliveries []model.DeliveryRecord `json:"deliveries"`
}

// historyReader is the read side of repository.SendoutRepository
type historyReader interface {
	GetByID(ctx context.Context, id string) (*model.Sendout, error)
	ListRecent(ctx context.Context, limit int) ([]model.Sendout, error)
	GetDeliveries(ctx context.Context, sendoutID string) ([]model.StoredDelivery, error)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("sendout history needs database.enabled=true")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	entries, err := loadHistory(cmd.Context(), repository.NewSendoutRepository(db), historyID, historyLimit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// loadHistory returns the sendout with id when id is set, otherwise the
// latest limit sendouts, each with its deliveries.
func loadHistory(ctx context.Context, r historyReader, id string, limit int) ([]historyEntry, error) {
	var sendouts []model.Sendout
	if id != "" {
		s, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("sendout %s: %w", id, err)
		}
		sendouts = []model.Sendout{*s}
	} else {
		var err error
		sendouts, err = r.ListRecent(ctx, limit)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]historyEntry, 0, len(sendouts))
	for _, s := range sendouts {
		stored, err := r.GetDeliveries(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		entry := historyEntry{Sendout: s, Deliveries: make([]model.DeliveryRecord, 0, len(stored))}
		for _, d := range stored {
			entry.Deliveries = append(entry.Deliveries, d.Record)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

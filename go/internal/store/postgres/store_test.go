package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

func TestErrorMapping(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: uniqueViolation})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))

	err := notFound(sql.ErrNoRows, "session %s", "x")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	boom := errors.New("boom")
	assert.Equal(t, boom, notFound(boom, "session"))
}

// openTestStore connects to POKERLEAGUE_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POKERLEAGUE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POKERLEAGUE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLedgerAgainstPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	players := make([]models.Player, 3)
	for i := range players {
		players[i] = models.Player{ID: uuid.New(), Name: fmt.Sprintf("Player %d", i), CreatedAt: now}
		require.NoError(t, s.UpsertPlayer(ctx, &players[i]))
	}
	sess := &models.Session{
		ID: uuid.New(), Name: "integration", Status: models.SessionStatusInProgress,
		TotalPlayers: 2, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	record := func(position int, eliminated models.Player, eliminator *uuid.UUID) *models.EliminationRecord {
		return &models.EliminationRecord{
			ID: uuid.New(), SessionID: sess.ID, Position: position, Points: 1,
			EliminatedPlayerID: eliminated.ID, EliminatorPlayerID: eliminator,
			EliminationTime: now, CreatedAt: now, UpdatedAt: now,
		}
	}

	second := record(2, players[1], &players[0].ID)
	require.NoError(t, s.InsertElimination(ctx, second, 0))
	assert.True(t, errors.Is(s.InsertElimination(ctx, record(2, players[2], nil), 1), apperr.ErrOutOfSequence))

	winner := record(1, players[0], &players[0].ID)
	require.NoError(t, s.InsertElimination(ctx, winner, 1))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WinnerPlayerID)
	assert.Equal(t, players[0].ID, *got.WinnerPlayerID)

	assert.True(t, errors.Is(s.DeleteElimination(ctx, second), apperr.ErrNotMostRecent))
	require.NoError(t, s.DeleteElimination(ctx, winner))

	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.WinnerPlayerID)
}

func TestCheckpointAgainstPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	sess := &models.Session{
		ID: uuid.New(), Name: "timer", Status: models.SessionStatusInProgress,
		TotalPlayers: 9, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	cp := &models.TimerCheckpoint{
		SessionID: sess.ID, Status: models.TimerStatusPaused, CurrentLevel: 1,
		TimeRemaining: 1200, LevelDuration: 1200, LastUpdated: now, Version: 1,
	}
	require.NoError(t, s.SaveCheckpoint(ctx, cp, 0, nil))

	next := *cp
	next.Status = models.TimerStatusActive
	next.StartTime = &now
	next.LevelStartTime = &now
	next.Version = 2
	tr := &models.TimerTransition{
		ID: uuid.New(), SessionID: sess.ID, ActionType: models.TimerActionStart,
		FromLevel: 1, ToLevel: 1, PerformedBy: "director", PerformedAt: now,
		Metadata: []byte(`{"time_remaining":1200}`),
	}
	require.NoError(t, s.SaveCheckpoint(ctx, &next, 1, tr))
	assert.True(t, errors.Is(s.SaveCheckpoint(ctx, &next, 1, nil), apperr.ErrConflict))

	history, err := s.ListTransitions(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.JSONEq(t, `{"time_remaining":1200}`, string(history[0].Metadata))

	require.NoError(t, s.DeleteCheckpoint(ctx, sess.ID))
	_, err = s.GetCheckpoint(ctx, sess.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

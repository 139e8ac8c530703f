package elimination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/notify"
	"github.com/mcdev12/pokerleague/go/internal/store/sqlite"
)

type storeGate struct {
	store *sqlite.Store
}

func (g storeGate) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return g.store.GetSession(ctx, id)
}

func (g storeGate) RequireInProgress(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := g.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionStatusInProgress {
		return nil, apperr.Wrap(apperr.ErrSessionNotActive, "session %s is %s", id, s.Status)
	}
	return s, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []events.Type
}

func (p *recordingPublisher) Publish(_ context.Context, _ uuid.UUID, typ events.Type, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, typ)
	return nil
}

var director = auth.Actor{ID: "director", Roles: []string{"admin"}}

type fixture struct {
	app        *App
	store      *sqlite.Store
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	session    *models.Session
	players    []uuid.UUID // index 0 is unused; players[i] finishes in position i
}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)
	sess := &models.Session{
		ID:           uuid.New(),
		Name:         "March",
		Status:       models.SessionStatusInProgress,
		TotalPlayers: total,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateSession(ctx, sess))

	players := make([]uuid.UUID, total+1)
	for i := 1; i <= total; i++ {
		players[i] = uuid.New()
		require.NoError(t, store.UpsertPlayer(ctx, &models.Player{
			ID:        players[i],
			Name:      fmt.Sprintf("Player %02d", i),
			CreatedAt: now,
		}))
	}

	f := &fixture{
		store:      store,
		dispatcher: &recordingDispatcher{},
		publisher:  &recordingPublisher{},
		session:    sess,
		players:    players,
	}
	f.app = NewApp(store, store, storeGate{store}, f.publisher, f.dispatcher,
		auth.NewRoleChecker([]string{"admin"}), clockwork.NewFakeClockAt(now))
	return f
}

func (f *fixture) register(t *testing.T, position int) *View {
	t.Helper()
	var eliminator *uuid.UUID
	if position > 1 {
		eliminator = &f.players[1]
	}
	v, err := f.app.Register(context.Background(), director, f.session.ID, RegisterRequest{
		Position:           position,
		EliminatedPlayerID: f.players[position],
		EliminatorPlayerID: eliminator,
	})
	require.NoError(t, err)
	return v
}

func TestSeventeenPlayerSession(t *testing.T) {
	f := newFixture(t, 17)
	ctx := context.Background()

	var points []int
	for position := 17; position >= 1; position-- {
		v := f.register(t, position)
		points = append(points, v.Points)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 13, 14, 15, 18, 21, 24}, points)

	sess, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.WinnerPlayerID)
	assert.Equal(t, f.players[1], *sess.WinnerPlayerID)

	standings, err := f.app.Standings(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, standings.PlayersRemaining)
	assert.Equal(t, 0, standings.NextPosition)
	assert.Equal(t, 24, standings.ChampionTierPoints)
	require.Len(t, standings.PointsTable, 17)
	assert.Equal(t, 24, standings.PointsTable[0])
	assert.Equal(t, 1, standings.PointsTable[16])
	require.Len(t, standings.Results, 17)
	assert.Equal(t, "Player 01", standings.Results[0].PlayerName)
	assert.Equal(t, 24, standings.Results[0].Points)

	// the field is complete
	_, err = f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 1, EliminatedPlayerID: f.players[2]})
	assert.True(t, errors.Is(err, apperr.ErrOutOfSequence))
}

func TestRegisterOutOfSequence(t *testing.T) {
	f := newFixture(t, 17)

	_, err := f.app.Register(context.Background(), director, f.session.ID, RegisterRequest{
		Position:           15,
		EliminatedPlayerID: f.players[15],
	})
	assert.True(t, errors.Is(err, apperr.ErrOutOfSequence))

	f.register(t, 17)
	_, err = f.app.Register(context.Background(), director, f.session.ID, RegisterRequest{
		Position:           15,
		EliminatedPlayerID: f.players[15],
	})
	assert.True(t, errors.Is(err, apperr.ErrOutOfSequence))
	f.register(t, 16)
}

func TestRegisterViewAndSideEffects(t *testing.T) {
	f := newFixture(t, 5)

	v := f.register(t, 5)
	assert.Equal(t, models.EliminationKindEliminated, v.Kind)
	assert.Equal(t, "Player 05", v.EliminatedPlayerName)
	assert.Equal(t, "Player 01", v.EliminatorPlayerName)
	assert.Equal(t, 1, v.Points)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, notify.KindPlayerEliminated, f.dispatcher.sent[0].Kind)
	assert.Equal(t, "Player 01", f.dispatcher.sent[0].EliminatorName)
	assert.Equal(t, []events.Type{events.TypeEliminationRecorded}, f.publisher.types)
}

func TestWinnerRecordIsSelfReferential(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.register(t, 2)

	v, err := f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 1, EliminatedPlayerID: f.players[1]})
	require.NoError(t, err)
	assert.Equal(t, models.EliminationKindWon, v.Kind)
	require.NotNil(t, v.EliminatorPlayerID)
	assert.Equal(t, f.players[1], *v.EliminatorPlayerID)
	assert.Equal(t, notify.KindWinnerCrowned, f.dispatcher.sent[1].Kind)
}

func TestWinnerRecordRejectsOtherEliminator(t *testing.T) {
	f := newFixture(t, 2)
	f.register(t, 2)

	_, err := f.app.Register(context.Background(), director, f.session.ID, RegisterRequest{
		Position:           1,
		EliminatedPlayerID: f.players[1],
		EliminatorPlayerID: &f.players[2],
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	f.register(t, 5)

	_, err := f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 4, EliminatedPlayerID: f.players[5]})
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument), "already finished")

	_, err = f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 4, EliminatedPlayerID: f.players[4], EliminatorPlayerID: &f.players[4]})
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument), "self elimination")

	_, err = f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 4, EliminatedPlayerID: uuid.New()})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "unknown player")

	_, err = f.app.Register(ctx, auth.Actor{ID: "p"}, f.session.ID, RegisterRequest{Position: 4, EliminatedPlayerID: f.players[4]})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestRegisterRequiresSessionInProgress(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	f.session.Status = models.SessionStatusCompleted
	require.NoError(t, f.store.UpdateSession(ctx, f.session))

	_, err := f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 5, EliminatedPlayerID: f.players[5]})
	assert.True(t, errors.Is(err, apperr.ErrSessionNotActive))
}

func TestDeleteOnlyMostRecent(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	first := f.register(t, 6)
	f.register(t, 5)
	last := f.register(t, 4)

	err := f.app.Delete(ctx, director, first.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotMostRecent))

	require.NoError(t, f.app.Delete(ctx, director, last.ID))

	// position 4 is open again
	again := f.register(t, 4)
	assert.Equal(t, 4, again.Position)

	err = f.app.Delete(ctx, director, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteWinnerClearsSessionWinner(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.register(t, 3)
	f.register(t, 2)
	winner := f.register(t, 1)

	require.NoError(t, f.app.Delete(ctx, director, winner.ID))

	sess, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Nil(t, sess.WinnerPlayerID)
}

func TestUpdateReassignsPlayersOnly(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	older := f.register(t, 6)
	latest := f.register(t, 5)

	pos := 3
	_, err := f.app.Update(ctx, director, latest.ID, UpdateRequest{Position: &pos})
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
	pts := 99
	_, err = f.app.Update(ctx, director, latest.ID, UpdateRequest{Points: &pts})
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = f.app.Update(ctx, director, older.ID, UpdateRequest{EliminatorPlayerID: &f.players[2]})
	assert.True(t, errors.Is(err, apperr.ErrNotMostRecent))

	v, err := f.app.Update(ctx, director, latest.ID, UpdateRequest{
		EliminatedPlayerID: &f.players[4],
		EliminatorPlayerID: &f.players[2],
	})
	require.NoError(t, err)
	assert.Equal(t, 5, v.Position)
	assert.Equal(t, 2, v.Points)
	assert.Equal(t, "Player 04", v.EliminatedPlayerName)
	assert.Equal(t, "Player 02", v.EliminatorPlayerName)

	stored, err := f.store.GetElimination(ctx, latest.ID)
	require.NoError(t, err)
	assert.Equal(t, f.players[4], stored.EliminatedPlayerID)
	assert.Equal(t, 2, stored.Points)
}

func TestUpdateWinnerMovesSessionWinner(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.register(t, 3)
	f.register(t, 2)
	winner := f.register(t, 1)

	// players[2] already finished second, so swap in an unused player
	late := uuid.New()
	require.NoError(t, f.store.UpsertPlayer(ctx, &models.Player{ID: late, Name: "Late Entry", CreatedAt: time.Now()}))

	v, err := f.app.Update(ctx, director, winner.ID, UpdateRequest{EliminatedPlayerID: &late})
	require.NoError(t, err)
	require.NotNil(t, v.EliminatorPlayerID)
	assert.Equal(t, late, *v.EliminatorPlayerID)

	sess, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.WinnerPlayerID)
	assert.Equal(t, late, *sess.WinnerPlayerID)
}

func TestNotificationFailureDoesNotFailRegister(t *testing.T) {
	f := newFixture(t, 4)
	f.dispatcher.err = errors.New("push service down")

	v := f.register(t, 4)
	assert.Equal(t, 4, v.Position)
}

func TestConcurrentRegisterSamePosition(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(player uuid.UUID) {
			defer wg.Done()
			_, err := f.app.Register(ctx, director, f.session.ID, RegisterRequest{Position: 10, EliminatedPlayerID: player})
			errs <- err
		}(f.players[10-i])
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrOutOfSequence) || errors.Is(err, apperr.ErrInvalidArgument), "got %v", err)
	}
	assert.Equal(t, 1, ok)

	list, err := f.app.List(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spacebook/internal/availability"
	"spacebook/internal/feed"
	"spacebook/internal/grid"
	"spacebook/internal/models"
	"spacebook/internal/selector"
	"spacebook/internal/timezone"
)

type fakeTelegram struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegram) SelfUser() tgbotapi.User {
	return tgbotapi.User{UserName: "spacebook_bot"}
}

func (f *fakeTelegram) last() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTelegram) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type stubSource struct {
	resources    []models.Resource
	week         []models.DayScheduleDefinition
	reservations []models.Reservation
}

func (s *stubSource) Resources(ctx context.Context) ([]models.Resource, error) {
	return s.resources, nil
}

func (s *stubSource) Schedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error) {
	return s.week, nil
}

func (s *stubSource) Reservations(ctx context.Context, resourceID int64, date string) ([]models.Reservation, error) {
	return s.reservations, nil
}

func (s *stubSource) Availability(ctx context.Context, resourceID int64, date string) ([]availability.Entry, error) {
	return nil, nil
}

type mockBooker struct {
	mock.Mock
}

func (m *mockBooker) CreateReservation(ctx context.Context, req feed.CreateReservationRequest) (*models.Reservation, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*models.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

const (
	chatID = int64(100)
	userID = int64(7)
)

func newTestBot(t *testing.T) (*Bot, *fakeTelegram, *mockBooker) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	src := &stubSource{
		resources: []models.Resource{
			{ID: 1, Name: "Sala A", DurationMinutes: 60, IsActive: true},
			{ID: 2, Name: "Sala B", DurationMinutes: 30, IsActive: false},
		},
		week: []models.DayScheduleDefinition{{
			Weekday: time.Monday,
			Enabled: true,
			Turnos:  []models.Turno{{Start: "08:00", End: "12:00"}},
		}},
		reservations: []models.Reservation{{
			ID:         "r1",
			ResourceID: 1,
			Start:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			End:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			Status:     models.StatusConfirmed,
		}},
	}
	tg := &fakeTelegram{updates: make(chan tgbotapi.Update, 4)}
	booker := &mockBooker{}
	zone := timezone.NewWithLocation(time.UTC, timezone.ReferenceLocal)
	b, err := NewWithTelegramClient(tg, src, booker, availability.NewResolver(grid.Default(), zone),
		Options{MaxAdvanceDays: 7, MaxConcurrent: 2}, &logger)
	require.NoError(t, err)
	b.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return b, tg, booker
}

func message(text string) *tgbotapi.Update {
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func press(data string) *tgbotapi.Update {
	return &tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func textOf(c tgbotapi.Chattable) string {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	}
	return ""
}

// buttons flattens an inline keyboard into label -> callback data.
func buttons(t *testing.T, c tgbotapi.Chattable) map[string]string {
	t.Helper()
	var markup *tgbotapi.InlineKeyboardMarkup
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		if km, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			markup = &km
		}
	case tgbotapi.EditMessageTextConfig:
		markup = m.ReplyMarkup
	}
	require.NotNil(t, markup, "expected an inline keyboard")
	out := make(map[string]string)
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			out[btn.Text] = *btn.CallbackData
		}
	}
	return out
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		want    callback
		wantErr bool
	}{
		{"res:3", callback{Kind: "res", ResourceID: 3}, false},
		{"date:2026-03-02", callback{Kind: "date", Date: "2026-03-02"}, false},
		{"slot:12", callback{Kind: "slot", Slot: 12}, false},
		{"back:date", callback{Kind: "back", Target: "date"}, false},
		{"dur", callback{Kind: "dur"}, false},
		{"confirm", callback{Kind: "confirm"}, false},
		{"noop", callback{Kind: "noop"}, false},
		{"res:abc", callback{}, true},
		{"res:0", callback{}, true},
		{"date:02/03/2026", callback{}, true},
		{"slot:-1", callback{}, true},
		{"back:nowhere", callback{}, true},
		{"confirm:1", callback{}, true},
		{"mgr:approve", callback{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlocksKeyboard(t *testing.T) {
	g := grid.Default()
	res := availability.Result{
		Available: []availability.Block{{StartSlot: 0, EndSlot: 2}, {StartSlot: 4, EndSlot: 6}, {StartSlot: 6, EndSlot: 8}},
		Occupied: []availability.Block{
			{StartSlot: 2, EndSlot: 4, Source: availability.SourceReservation, ReservationID: "r1"},
			{StartSlot: 8, EndSlot: 10, Source: availability.SourceElapsed},
		},
	}

	kb := blocksKeyboard(g, res, nil)
	require.Len(t, kb.InlineKeyboard, 3)
	first := kb.InlineKeyboard[0]
	require.Len(t, first, 3)
	assert.Equal(t, "08:00-09:00", first[0].Text)
	assert.Equal(t, "slot:0", *first[0].CallbackData)
	assert.Equal(t, "⛔ 09:00-10:00", first[1].Text)
	assert.Equal(t, "noop", *first[1].CallbackData)
	assert.Len(t, kb.InlineKeyboard[2], 1, "no continue button without a selection")

	selected := res.Available[1]
	kb = blocksKeyboard(g, res, &selected)
	assert.Equal(t, "✅ 10:00-11:00", kb.InlineKeyboard[0][2].Text)
	nav := kb.InlineKeyboard[2]
	require.Len(t, nav, 2)
	assert.Equal(t, "dur", *nav[1].CallbackData)
}

func TestDatesKeyboard(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	kb := datesKeyboard(from, 4)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "Sun 01 Mar", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "date:2026-03-01", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "date:2026-03-04", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "back:res", *kb.InlineKeyboard[2][0].CallbackData)
}

func TestBot_BookingFlow(t *testing.T) {
	b, tg, booker := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, message("/book"))
	assert.Equal(t, map[string]string{"Sala A · 60 min": "res:1"}, buttons(t, tg.last()), "inactive resources are hidden")

	b.handleUpdate(ctx, press("res:1"))
	dates := buttons(t, tg.last())
	assert.Equal(t, "date:2026-03-02", dates["Mon 02 Mar"])
	assert.NotContains(t, dates, "Sun 08 Mar")

	b.handleUpdate(ctx, press("date:2026-03-02"))
	assert.Contains(t, textOf(tg.last()), "Occupancy: 25%")
	assert.Equal(t, map[string]string{
		"08:00-09:00":   "slot:0",
		"⛔ 09:00-10:00": "noop",
		"10:00-11:00":   "slot:4",
		"11:00-12:00":   "slot:6",
		"⬅️ Back":       "back:date",
	}, buttons(t, tg.last()))

	b.handleUpdate(ctx, press("slot:5"))
	edit, ok := tg.last().(tgbotapi.EditMessageTextConfig)
	require.True(t, ok, "selection edits the keyboard in place")
	assert.Equal(t, 42, edit.MessageID)
	assert.Equal(t, "slot:4", buttons(t, edit)["✅ 10:00-11:00"])
	assert.Equal(t, "dur", buttons(t, edit)["Continue ➡️"])

	b.handleUpdate(ctx, press("dur"))
	assert.Equal(t, "Enter your name:", textOf(tg.last()))
	b.handleUpdate(ctx, message("Ana"))
	assert.Equal(t, "Enter your phone number:", textOf(tg.last()))
	b.handleUpdate(ctx, message("call me"))
	assert.Equal(t, "Invalid phone. Example: +54 911 5555-1234", textOf(tg.last()))
	b.handleUpdate(ctx, message("+54 911 5555-1234"))
	assert.Contains(t, textOf(tg.last()), "2026-03-02 10:00-11:00")
	assert.Equal(t, "confirm", buttons(t, tg.last())["✅ Confirm"])

	wantStart := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	booker.On("CreateReservation", mock.Anything, mock.MatchedBy(func(req feed.CreateReservationRequest) bool {
		return req.ResourceID == 1 && req.Start.Equal(wantStart) &&
			req.Customer == models.Customer{Name: "Ana", Phone: "+5491155551234"}
	})).Return(&models.Reservation{ID: "r-9", ResourceID: 1, Status: models.StatusPending}, nil).Once()

	b.handleUpdate(ctx, press("confirm"))
	assert.Equal(t, "Booked Sala A on 2026-03-02, 10:00-11:00.\nReservation: r-9 (pending)", textOf(tg.last()))
	assert.Equal(t, stepNone, b.state.get(userID).Step)
	booker.AssertExpectations(t)
}

func TestBot_ConflictShowsBlocksAgain(t *testing.T) {
	b, tg, booker := newTestBot(t)
	ctx := context.Background()

	for _, u := range []*tgbotapi.Update{
		message("/book"), press("res:1"), press("date:2026-03-02"), press("slot:0"),
		press("dur"), message("Ana"), message("5551234567"),
	} {
		b.handleUpdate(ctx, u)
	}
	booker.On("CreateReservation", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: taken", feed.ErrConflict)).Once()

	before := tg.count()
	b.handleUpdate(ctx, press("confirm"))
	require.Equal(t, before+2, tg.count())

	tg.mu.Lock()
	notice := tg.sent[before]
	tg.mu.Unlock()
	assert.Equal(t, "This time was just booked by someone else. Please pick another block.", textOf(notice))

	kb := buttons(t, tg.last())
	assert.NotContains(t, kb, "Continue ➡️", "selection is cleared after a rejected booking")
	assert.Equal(t, stepBlocks, b.state.get(userID).Step)
	assert.Empty(t, b.cache.Unavailable(1, "2026-03-02"))
}

func TestBot_ConfirmAgainAfterBackendError(t *testing.T) {
	b, tg, booker := newTestBot(t)
	ctx := context.Background()

	for _, u := range []*tgbotapi.Update{
		message("/book"), press("res:1"), press("date:2026-03-02"), press("slot:4"),
		press("dur"), message("Ana"), message("5551234567"),
	} {
		b.handleUpdate(ctx, u)
	}
	booker.On("CreateReservation", mock.Anything, mock.Anything).
		Return(nil, errors.New("network down")).Once()
	booker.On("CreateReservation", mock.Anything, mock.Anything).
		Return(&models.Reservation{ID: "r-10", ResourceID: 1, Status: models.StatusPending}, nil).Once()

	before := tg.count()
	b.handleUpdate(ctx, press("confirm"))
	require.Equal(t, before+2, tg.count())
	tg.mu.Lock()
	notice := tg.sent[before]
	tg.mu.Unlock()
	assert.Equal(t, "Booking failed, please try again later.", textOf(notice))
	assert.Equal(t, "confirm", buttons(t, tg.last())["✅ Confirm"])
	assert.Equal(t, stepConfirm, b.state.get(userID).Step)
	assert.Equal(t, selector.StateFormFilled, b.state.get(userID).selector.State())

	b.handleUpdate(ctx, press("confirm"))
	assert.Equal(t, "Booked Sala A on 2026-03-02, 10:00-11:00.\nReservation: r-10 (pending)", textOf(tg.last()))
	booker.AssertNumberOfCalls(t, "CreateReservation", 2)
}

func TestBot_RejectsDatesOutsideWindow(t *testing.T) {
	b, tg, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, message("/book"))
	b.handleUpdate(ctx, press("res:1"))
	b.handleUpdate(ctx, press("date:2026-02-28"))
	assert.Equal(t, "This date cannot be booked.", textOf(tg.last()))
	b.handleUpdate(ctx, press("date:2026-03-08"))
	assert.Equal(t, "This date cannot be booked.", textOf(tg.last()))
}

func TestBot_CancelResetsFlow(t *testing.T) {
	b, tg, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, message("/book"))
	b.handleUpdate(ctx, press("res:1"))
	b.handleUpdate(ctx, message("/cancel"))
	assert.Equal(t, "Booking cancelled.", textOf(tg.last()))
	assert.Equal(t, stepNone, b.state.get(userID).Step)
	assert.Zero(t, b.state.get(userID).ResourceID)
}

func TestBot_StartStopsWhenUpdatesClose(t *testing.T) {
	b, tg, _ := newTestBot(t)
	tg.updates <- *message("/book")
	close(tg.updates)

	done := make(chan struct{})
	go func() {
		b.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	assert.Equal(t, 1, tg.count())
}

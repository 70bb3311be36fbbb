// Package bot is the Telegram booking view: a user picks a resource and a
// date, taps a free block and submits a booking with name and phone.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spacebook/internal/availability"
	"spacebook/internal/board"
	"spacebook/internal/feed"
	"spacebook/internal/models"
	"spacebook/internal/selector"
	"spacebook/internal/timezone"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Options tune the booking view.
type Options struct {
	// MaxAdvanceDays is how many dates, today included, the date picker offers.
	MaxAdvanceDays int
	MaxConcurrent  int
	Debug          bool
}

// Bot serves the booking flow over Telegram.
type Bot struct {
	tg       telegramClient
	source   board.Source
	booker   selector.Booker
	resolver *availability.Resolver
	cache    *availability.State
	state    *stateStore
	opts     Options
	clock    func() time.Time
	logger   *zerolog.Logger
}

func New(
	token string,
	source board.Source,
	booker selector.Booker,
	resolver *availability.Resolver,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = opts.Debug
	return newBot(&realTelegramClient{api: api}, source, booker, resolver, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	source board.Source,
	booker selector.Booker,
	resolver *availability.Resolver,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, source, booker, resolver, opts, logger)
}

func newBot(
	tg telegramClient,
	source board.Source,
	booker selector.Booker,
	resolver *availability.Resolver,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if source == nil || booker == nil || resolver == nil {
		return nil, fmt.Errorf("source, booker and resolver are required")
	}
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = 14
	}
	b := &Bot{
		tg:       tg,
		source:   source,
		booker:   booker,
		resolver: resolver,
		cache:    availability.NewState(),
		opts:     opts,
		clock:    time.Now,
		logger:   logger,
	}
	b.state = newStateStore(b.newView)
	return b, nil
}

// SetClock replaces the time source of the date picker and elapsed slots.
func (b *Bot) SetClock(clock func() time.Time) {
	b.clock = clock
}

// newView builds the per-user day loader and selector over the shared cache.
func (b *Bot) newView() (*board.Loader, *selector.Selector) {
	loader := board.NewLoader(b.source, b.resolver, b.cache, b.opts.MaxConcurrent, b.logger)
	loader.SetClock(func() time.Time { return b.clock() })
	sel := selector.New(selector.Deps{
		Grid:      b.resolver.Grid(),
		Zone:      b.resolver.Zone(),
		Booker:    b.booker,
		Cache:     b.cache,
		Refresher: loader,
		Logger:    b.logger,
	})
	return loader, sel
}

// Start begins polling updates and blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Booking bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			b.handleUpdate(l.WithContext(ctx), &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil && update.Message.From != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if strings.HasPrefix(text, "/") {
		switch {
		case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/book"):
			b.state.reset(userID)
			b.sendResources(ctx, chatID, userID)
		case strings.HasPrefix(text, "/cancel"):
			b.state.reset(userID)
			b.reply(chatID, "Booking cancelled.")
		default:
			b.reply(chatID, "Commands: /book, /cancel")
		}
		return
	}

	st := b.state.get(userID)
	switch st.Step {
	case stepName:
		if text == "" {
			b.reply(chatID, "Please enter your name:")
			return
		}
		st.Name = text
		st.Step = stepPhone
		b.reply(chatID, "Enter your phone number:")
	case stepPhone:
		err := st.selector.FillForm(models.Customer{Name: st.Name, Phone: text})
		if errors.Is(err, selector.ErrInvalidForm) {
			b.reply(chatID, fmt.Sprintf("%s. Example: +54 911 5555-1234", capitalize(selector.Describe(err))))
			return
		}
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("form rejected")
			b.restart(ctx, chatID, userID)
			return
		}
		st.Step = stepConfirm
		b.sendConfirm(chatID, st)
	default:
		b.reply(chatID, "Send /book to make a booking.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	_ = b.answerCallback(cq.ID)

	cb, err := parseCallback(cq.Data)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("ignoring callback")
		return
	}

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	st := b.state.get(userID)

	switch cb.Kind {
	case "noop":
	case "res":
		b.handleResource(ctx, chatID, st, cb.ResourceID)
	case "date":
		b.handleDate(ctx, chatID, st, cb.Date)
	case "slot":
		b.handleSlot(chatID, messageID, st, cb.Slot)
	case "dur":
		if err := st.selector.ChooseDuration(); err != nil {
			b.reply(chatID, "Pick a block first.")
			return
		}
		st.Step = stepName
		b.reply(chatID, "Enter your name:")
	case "confirm":
		b.handleConfirm(ctx, chatID, userID, st)
	case "cancel":
		b.state.reset(userID)
		b.reply(chatID, "Booking cancelled.")
	case "back":
		b.handleBack(ctx, chatID, userID, st, cb.Target)
	}
}

func (b *Bot) handleResource(ctx context.Context, chatID int64, st *userState, resourceID int64) {
	resources, err := b.activeResources(ctx)
	if err != nil {
		b.reply(chatID, "Resources are unavailable right now, please try again later.")
		return
	}
	for _, r := range resources {
		if r.ID == resourceID {
			st.ResourceID = r.ID
			st.ResourceName = r.Name
			st.Step = stepDate
			b.sendDates(chatID, st)
			return
		}
	}
	b.reply(chatID, "This resource is no longer available.")
}

func (b *Bot) handleDate(ctx context.Context, chatID int64, st *userState, dateStr string) {
	if st.ResourceID == 0 {
		b.reply(chatID, "Send /book to start again.")
		return
	}
	zone := b.resolver.Zone()
	date, err := zone.ParseDate(dateStr)
	if err != nil {
		return
	}
	today := zone.Date(b.clock())
	if date.Before(today) || !date.Before(today.AddDate(0, 0, b.opts.MaxAdvanceDays)) {
		b.reply(chatID, "This date cannot be booked.")
		return
	}

	day, err := st.loader.LoadDay(ctx, date)
	if errors.Is(err, board.ErrStaleView) {
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("date", dateStr).Msg("load day failed")
		b.send(chatID, "Availability could not be loaded.", retryKeyboard(date))
		return
	}
	st.Date = day.Date
	st.selector.SetView(day.Date, day.Blocks())
	st.Step = stepBlocks
	b.renderBlocks(chatID, 0, st, day)
}

func (b *Bot) handleSlot(chatID int64, messageID int, st *userState, slot int) {
	if st.Step != stepBlocks {
		return
	}
	day := st.loader.Current()
	if day == nil {
		return
	}
	st.selector.Click(st.ResourceID, slot)
	b.renderBlocks(chatID, messageID, st, day)
}

func (b *Bot) handleConfirm(ctx context.Context, chatID, userID int64, st *userState) {
	if st.Step != stepConfirm {
		return
	}
	rsv, err := st.selector.Submit(ctx)
	if err != nil {
		b.reply(chatID, selector.Describe(err))
		if errors.Is(err, feed.ErrConflict) || errors.Is(err, feed.ErrNotBookable) {
			b.reloadBlocks(ctx, chatID, st)
			return
		}
		// The selector is back in DurationChosen; refill the form so the
		// same booking can be confirmed again.
		if ferr := st.selector.FillForm(st.selector.Customer()); ferr != nil {
			zerolog.Ctx(ctx).Warn().Err(ferr).Int64("user_id", userID).Msg("cannot restore booking form")
			b.reloadBlocks(ctx, chatID, st)
			return
		}
		b.sendConfirm(chatID, st)
		return
	}

	sel, _ := st.selector.Selection()
	g := b.resolver.Grid()
	text := fmt.Sprintf("Booked %s on %s, %s.\nReservation: %s (%s)",
		st.ResourceName, st.Date.Format(timezone.DateLayout), blockLabel(g, sel.Block), rsv.ID, rsv.Status)
	b.reply(chatID, text)
	zerolog.Ctx(ctx).Info().Int64("user_id", userID).Str("reservation_id", rsv.ID).Msg("booking created")
	b.state.reset(userID)
}

// reloadBlocks refetches the day after a rejected submission and shows it
// again with the selection cleared.
func (b *Bot) reloadBlocks(ctx context.Context, chatID int64, st *userState) {
	if err := st.loader.Refresh(ctx, st.ResourceID, st.Date); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("resource_id", st.ResourceID).Msg("refresh after rejected booking failed")
	}
	st.selector.Reset()
	day := st.loader.Current()
	if day == nil {
		return
	}
	st.selector.SetView(day.Date, day.Blocks())
	st.Step = stepBlocks
	b.renderBlocks(chatID, 0, st, day)
}

func (b *Bot) handleBack(ctx context.Context, chatID, userID int64, st *userState, target string) {
	switch target {
	case "res":
		b.state.reset(userID)
		b.sendResources(ctx, chatID, userID)
	case "date":
		st.selector.Reset()
		st.Step = stepDate
		b.sendDates(chatID, st)
	case "blocks":
		day := st.loader.Current()
		if day == nil {
			b.restart(ctx, chatID, userID)
			return
		}
		st.selector.Reset()
		st.selector.SetView(day.Date, day.Blocks())
		st.Step = stepBlocks
		b.renderBlocks(chatID, 0, st, day)
	}
}

func (b *Bot) sendResources(ctx context.Context, chatID, userID int64) {
	resources, err := b.activeResources(ctx)
	if err != nil {
		b.reply(chatID, "Resources are unavailable right now, please try again later.")
		return
	}
	if len(resources) == 0 {
		b.reply(chatID, "Nothing can be booked at the moment.")
		return
	}
	b.state.get(userID).Step = stepResource
	b.send(chatID, "Choose what to book:", resourcesKeyboard(resources))
}

func (b *Bot) sendDates(chatID int64, st *userState) {
	today := b.resolver.Zone().Date(b.clock())
	b.send(chatID, fmt.Sprintf("%s: choose a date", st.ResourceName), datesKeyboard(today, b.opts.MaxAdvanceDays))
}

func (b *Bot) sendConfirm(chatID int64, st *userState) {
	sel, ok := st.selector.Selection()
	if !ok {
		return
	}
	customer := st.selector.Customer()
	text := fmt.Sprintf("Please confirm:\n%s\n%s %s\n%s, %s",
		st.ResourceName, st.Date.Format(timezone.DateLayout), blockLabel(b.resolver.Grid(), sel.Block),
		customer.Name, customer.Phone)
	b.send(chatID, text, confirmKeyboard())
}

// renderBlocks sends the block keyboard of the user's resource, or edits
// messageID in place when it is set.
func (b *Bot) renderBlocks(chatID int64, messageID int, st *userState, day *board.Day) {
	row, ok := day.Resource(st.ResourceID)
	if !ok {
		b.reply(chatID, "This resource is no longer available.")
		return
	}
	if row.Err != nil {
		b.send(chatID, fmt.Sprintf("%s: availability could not be loaded.", st.ResourceName), retryKeyboard(day.Date))
		return
	}

	var selected *availability.Block
	if sel, ok := st.selector.Selection(); ok && sel.ResourceID == st.ResourceID {
		selected = &sel.Block
	}

	text := fmt.Sprintf("%s · %s\nOccupancy: %.0f%%", st.ResourceName, day.Date.Format("Mon 02 Jan 2006"), day.Occupancy.Percent)
	if len(row.Result.Available) == 0 {
		text += "\nNo free blocks on this date."
	} else {
		text += "\nTap a free block:"
	}
	markup := blocksKeyboard(b.resolver.Grid(), row.Result, selected)

	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
		if _, err := b.tg.Send(edit); err == nil {
			return
		}
	}
	b.send(chatID, text, markup)
}

func (b *Bot) restart(ctx context.Context, chatID, userID int64) {
	b.state.reset(userID)
	b.sendResources(ctx, chatID, userID)
}

func (b *Bot) activeResources(ctx context.Context) ([]models.Resource, error) {
	all, err := b.source.Resources(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list resources failed")
		return nil, err
	}
	active := make([]models.Resource, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (b *Bot) reply(chatID int64, text string) {
	_, _ = b.tg.Send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	_, _ = b.tg.Send(msg)
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

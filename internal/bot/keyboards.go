package bot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"spacebook/internal/availability"
	"spacebook/internal/grid"
	"spacebook/internal/models"
	"spacebook/internal/timezone"
)

const blocksPerRow = 3

// callback is a parsed inline button payload.
type callback struct {
	Kind       string
	ResourceID int64
	Date       string
	Slot       int
	Target     string
}

// parseCallback decodes the payloads produced by the keyboards below:
// res:<id>, date:<YYYY-MM-DD>, slot:<n>, back:<step>, dur, confirm, cancel, noop.
func parseCallback(data string) (callback, error) {
	kind, arg, hasArg := strings.Cut(data, ":")
	cb := callback{Kind: kind}
	switch kind {
	case "noop", "dur", "confirm", "cancel":
		if hasArg {
			return cb, fmt.Errorf("unexpected argument in %q", data)
		}
		return cb, nil
	case "res":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return cb, fmt.Errorf("invalid resource in %q", data)
		}
		cb.ResourceID = id
	case "date":
		if _, err := time.Parse(timezone.DateLayout, arg); err != nil {
			return cb, fmt.Errorf("invalid date in %q", data)
		}
		cb.Date = arg
	case "slot":
		slot, err := strconv.Atoi(arg)
		if err != nil || slot < 0 {
			return cb, fmt.Errorf("invalid slot in %q", data)
		}
		cb.Slot = slot
	case "back":
		if arg != "res" && arg != "date" && arg != "blocks" {
			return cb, fmt.Errorf("invalid back target in %q", data)
		}
		cb.Target = arg
	default:
		return cb, fmt.Errorf("unknown callback %q", data)
	}
	return cb, nil
}

func resourcesKeyboard(resources []models.Resource) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(resources))
	for _, r := range resources {
		label := fmt.Sprintf("%s · %d min", r.Name, r.DurationMinutes)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("res:%d", r.ID)),
		))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// datesKeyboard lists days consecutive dates starting at from.
func datesKeyboard(from time.Time, days int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	row := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		label := d.Format("Mon 02 Jan")
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "date:"+d.Format(timezone.DateLayout)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 3)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back:res"),
	))
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// blocksKeyboard renders the available and reserved blocks of a resource in
// start order. Reserved blocks are shown with ⛔ and do nothing when tapped;
// the selected block is marked and enables the continue button.
func blocksKeyboard(g grid.Grid, res availability.Result, selected *availability.Block) tgbotapi.InlineKeyboardMarkup {
	blocks := append([]availability.Block(nil), res.Available...)
	blocks = append(blocks, res.ReservationBlocks()...)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].StartSlot < blocks[j].StartSlot })

	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	row := make([]tgbotapi.InlineKeyboardButton, 0, blocksPerRow)
	for _, b := range blocks {
		label := blockLabel(g, b)
		data := fmt.Sprintf("slot:%d", b.StartSlot)
		switch {
		case b.Source == availability.SourceReservation:
			label = "⛔ " + label
			data = "noop"
		case selected != nil && selected.StartSlot == b.StartSlot:
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
		if len(row) == blocksPerRow {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, blocksPerRow)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	nav := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back:date"),
	}
	if selected != nil {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Continue ➡️", "dur"))
	}
	rows = append(rows, nav)
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func retryKeyboard(date time.Time) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", "date:"+date.Format(timezone.DateLayout)),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back:date"),
		),
	)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", "confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back:blocks"),
		),
	)
}

// blockLabel formats a block as HH:MM-HH:MM.
func blockLabel(g grid.Grid, b availability.Block) string {
	return fmt.Sprintf("%s-%s", g.SlotToTime(b.StartSlot), grid.FormatClock(g.SlotToMinute(b.EndSlot)))
}

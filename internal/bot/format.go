package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-tracker/internal/model"
	"daily-tracker/internal/service"
)

const (
	cbTogglePrefix    = "toggle:"
	cbRecurringPrefix = "recur:"
	cbDeletePrefix    = "delete:"
	cbConfirmPrefix   = "confirm:"
	cbCancelPrefix    = "cancel:"
)

const (
	btnYes            = "Да"
	btnNo             = "Нет"
	btnCancelDialog   = "⏪ Отменить ввод"
	iconOpen          = "⬜"
	iconDone          = "✅"
	iconRecurring     = "♻️"
	menuLabelNewTask  = "➕ Новая задача"
	menuLabelTasks    = "📋 Задачи"
	menuLabelCalendar = "📅 Календарь"
	menuLabelHelp     = "ℹ️ Помощь"
)

var monthNames = [...]string{
	"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// parseIndex reads a 1-based task number from a command argument.
func parseIndex(args string, count int) (int, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, fmt.Errorf("укажи номер задачи")
	}
	n, err := strconv.Atoi(args)
	if err != nil {
		return 0, fmt.Errorf("номер задачи должен быть числом")
	}
	if n < 1 || n > count {
		return 0, fmt.Errorf("задачи №%d нет в списке", n)
	}
	return n - 1, nil
}

func parseCallback(data, prefix string) (string, bool) {
	if !strings.HasPrefix(data, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, prefix)
	return id, id != ""
}

func bandIcon(b service.Band) string {
	switch b {
	case service.BandLow:
		return "🔴"
	case service.BandMid:
		return "🟡"
	case service.BandFull:
		return "🟢"
	default:
		return "⚪"
	}
}

func formatProgress(stat service.DailyStat) string {
	return fmt.Sprintf("%s %d/%d (%.0f%%)", bandIcon(stat.Band()), stat.CompletedCount, stat.TotalCount, stat.Rate())
}

func formatTask(n int, task model.Task) string {
	icon := iconOpen
	if task.Completed {
		icon = iconDone
	}
	line := fmt.Sprintf("%s <b>%d.</b> %s", icon, n, escape(normalizeTitle(task.Title)))
	if task.Recurring {
		line += " " + iconRecurring
	}
	return line + "\n"
}

// formatTaskList renders the task list with one row of inline buttons per task.
func formatTaskList(tasks []model.Task, today service.DailyStat) (string, [][]tgbotapi.InlineKeyboardButton) {
	if len(tasks) == 0 {
		return "У тебя пока нет задач. Добавь новую через /add или кнопку «" + menuLabelNewTask + "».", nil
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Задачи на сегодня</b>\n")
	builder.WriteString(fmt.Sprintf("Прогресс: %s\n\n", formatProgress(today)))

	buttons := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for i, task := range tasks {
		builder.WriteString(formatTask(i+1, task))

		mark := iconOpen
		if task.Completed {
			mark = iconDone
		}
		recur := "🔁"
		if task.Recurring {
			recur = iconRecurring
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d · %s", mark, i+1, shortTitle(task.Title, 20)), cbTogglePrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData(recur, cbRecurringPrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}
	builder.WriteString("\n♻️ — задача сбрасывается каждый день.")
	return strings.TrimSpace(builder.String()), buttons
}

// formatCalendar renders one month of completion stats, one line per day
// that has data, followed by today's live progress and the legend.
func formatCalendar(year int, month time.Month, stats []service.DailyStat, today service.DailyStat) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📅 <b>%s %d</b>\n\n", monthNames[month], year))

	if len(stats) == 0 {
		builder.WriteString("За этот месяц пока нет данных.\n")
	}
	for _, st := range stats {
		builder.WriteString(fmt.Sprintf("%s  %s\n", st.Date, formatProgress(st)))
	}

	builder.WriteString(fmt.Sprintf("\nСегодня (%s): %s\n\n", today.Date, formatProgress(today)))
	builder.WriteString("⚪ 0%  🔴 до 50%  🟡 до 100%  🟢 100%")
	return builder.String()
}

// formatReport is the periodic progress message.
func formatReport(name string, tasks []model.Task, today service.DailyStat) string {
	var builder strings.Builder
	if name == "" {
		name = "друг"
	}
	builder.WriteString(fmt.Sprintf("🔔 <b>%s, как успехи?</b>\n", escape(name)))
	builder.WriteString(fmt.Sprintf("Сегодня выполнено: %s\n", formatProgress(today)))

	open := 0
	for i, task := range tasks {
		if task.Completed {
			continue
		}
		if open == 0 {
			builder.WriteString("\nОсталось:\n")
		}
		open++
		builder.WriteString(formatTask(i+1, task))
	}
	if open == 0 && len(tasks) > 0 {
		builder.WriteString("\n🎉 Все задачи на сегодня выполнены!")
	}
	return strings.TrimSpace(builder.String())
}

func isCancelDialogInput(text string) bool {
	text = strings.TrimSpace(strings.ToLower(text))
	return text == strings.ToLower(btnCancelDialog) || text == "отмена"
}

func parseYesNo(text string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да", "yes", "y", "+":
		return true, true
	case "нет", "no", "n", "-":
		return false, true
	default:
		return false, false
	}
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelCalendar),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func yesNoKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnYes),
			tgbotapi.NewKeyboardButton(btnNo),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func confirmDeleteKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", cbConfirmPrefix+taskID),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", cbCancelPrefix+taskID),
	))
}

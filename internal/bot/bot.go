package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageRecurring
)

type conversationState struct {
	stage conversationStage
	title string
}

// Bot is the Telegram front end over the per-user sessions.
type Bot struct {
	api       *tgbotapi.BotAPI
	users     *repository.UserRepository
	sessions  *service.SessionManager
	scheduler *service.SchedulerService
	log       *slog.Logger

	mu             sync.Mutex
	conversations  map[int64]*conversationState
	reportInterval time.Duration
	reportJob      cron.EntryID
}

func New(token string, users *repository.UserRepository, sessions *service.SessionManager, scheduler *service.SchedulerService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log := logger.Get().With("component", "bot")
	log.Info("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:           api,
		users:         users,
		sessions:      sessions,
		scheduler:     scheduler,
		log:           log,
		conversations: make(map[int64]*conversationState),
	}, nil
}

// ScheduleReports (re)registers the periodic progress report.
func (b *Bot) ScheduleReports(interval time.Duration) error {
	if b.scheduler == nil {
		return errors.New("no scheduler configured")
	}
	id, err := b.scheduler.ScheduleInterval(interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.SendDailyReports(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Warn("send reports failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reports: %w", err)
	}

	b.mu.Lock()
	prev := b.reportJob
	b.reportJob = id
	b.reportInterval = interval
	b.mu.Unlock()
	if prev != 0 {
		b.scheduler.Remove(prev)
	}
	b.log.Info("reports scheduled", "interval", interval.String())
	return nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warn("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warn("handle message", "error", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	}

	if msg.IsCommand() {
		b.log.Info("command", "telegram_id", msg.From.ID, "command", msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	if b.getConversation(msg.From.ID) != nil {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /add, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "add", "newtask":
		return b.handleAdd(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "done":
		return b.handleByIndex(ctx, msg, "/done 2", func(ctx context.Context, s *service.Session, task model.Task) (string, error) {
			updated, err := s.Toggle(ctx, task.ID)
			if err != nil {
				return "", err
			}
			if updated.Completed {
				return fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(updated.Title))), nil
			}
			return fmt.Sprintf("⬜ Задача «%s» снова открыта.", escape(normalizeTitle(updated.Title))), nil
		})
	case "recurring":
		return b.handleByIndex(ctx, msg, "/recurring 2", func(ctx context.Context, s *service.Session, task model.Task) (string, error) {
			updated, err := s.ToggleRecurring(ctx, task.ID)
			if err != nil {
				return "", err
			}
			if updated.Recurring {
				return fmt.Sprintf("♻️ «%s» будет сбрасываться каждый день.", escape(normalizeTitle(updated.Title))), nil
			}
			return fmt.Sprintf("«%s» больше не повторяется.", escape(normalizeTitle(updated.Title))), nil
		})
	case "delete":
		return b.handleByIndex(ctx, msg, "/delete 2", func(ctx context.Context, s *service.Session, task model.Task) (string, error) {
			if _, err := s.Delete(ctx, task.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("🗑 Задача «%s» удалена.", escape(normalizeTitle(task.Title))), nil
		})
	case "calendar":
		return b.handleCalendar(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "interval":
		return b.handleInterval(msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, _, err := b.open(ctx, msg.From)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}

	name := user.DisplayName()
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я трекер ежедневных задач: каждый день повторяющиеся задачи начинаются заново.</b>\n\n"+
			"Нажми /help, чтобы увидеть команды.",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /add &lt;название&gt; — добавить задачу (без названия спрошу пошагово)\n" +
		"• /tasks — список задач с кнопками\n" +
		"• /done &lt;n&gt; — отметить задачу №n выполненной или снять отметку\n" +
		"• /recurring &lt;n&gt; — включить или выключить ежедневный сброс\n" +
		"• /delete &lt;n&gt; — удалить задачу\n" +
		"• /calendar — календарь выполнения за месяц\n" +
		"• /report — прислать отчёт сейчас\n" +
		"• /interval &lt;часы&gt; — как часто присылать отчёт\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	title := strings.TrimSpace(msg.CommandArguments())
	if title == "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
		return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Как назвать задачу?", cancelKeyboard())
	}
	return b.createTask(ctx, msg.Chat.ID, msg.From, title, true)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым.", cancelKeyboard())
		}
		state.title = text
		state.stage = stageRecurring
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Сбрасывать задачу каждый день?", yesNoKeyboard())
	case stageRecurring:
		recurring, ok := parseYesNo(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Нажми «Да» или «Нет».", yesNoKeyboard())
		}
		b.clearConversation(msg.From.ID)
		return b.createTask(ctx, msg.Chat.ID, msg.From, state.title, recurring)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /add.")
	}
}

func (b *Bot) createTask(ctx context.Context, chatID int64, from *tgbotapi.User, title string, recurring bool) error {
	_, s, err := b.open(ctx, from)
	if err != nil {
		return b.sendFailure(chatID, err)
	}

	task, err := s.Add(ctx, title)
	if err != nil {
		return b.sendFailure(chatID, err)
	}
	if !recurring {
		if task, err = s.Apply(ctx, service.SetRecurring(task.ID, false)); err != nil {
			return b.sendFailure(chatID, err)
		}
	}

	text := fmt.Sprintf("✅ <b>Задача сохранена:</b> %s", escape(normalizeTitle(task.Title)))
	if task.Recurring {
		text += " " + iconRecurring
	}
	if err := b.sendText(chatID, text); err != nil {
		return err
	}
	return b.sendTaskList(chatID, s)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	_, s, err := b.open(ctx, msg.From)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}
	return b.sendTaskList(msg.Chat.ID, s)
}

type taskAction func(ctx context.Context, s *service.Session, task model.Task) (string, error)

func (b *Bot) handleByIndex(ctx context.Context, msg *tgbotapi.Message, example string, action taskAction) error {
	_, s, err := b.open(ctx, msg.From)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}

	tasks := s.Tasks()
	i, err := parseIndex(msg.CommandArguments(), len(tasks))
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s. Например: %s", normalizeTitle(err.Error()), example))
	}

	text, err := action(ctx, s, tasks[i])
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleCalendar(ctx context.Context, msg *tgbotapi.Message) error {
	_, s, err := b.open(ctx, msg.From)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}

	today := s.Today()
	day := today.Date.Time(time.UTC)
	year, month := day.Year(), day.Month()
	if args := strings.Fields(msg.CommandArguments()); len(args) == 1 {
		if parsed, err := time.Parse("2006-01", args[0]); err == nil {
			year, month = parsed.Year(), parsed.Month()
		}
	}

	stats, err := s.Calendar(ctx, year, month)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatCalendar(year, month, stats, today))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, s, err := b.open(ctx, msg.From)
	if err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatReport(user.FirstName, s.Tasks(), s.Today()))
}

func (b *Bot) handleInterval(msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.mu.Lock()
		current := b.reportInterval
		b.mu.Unlock()
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Текущий интервал отчётов: %d ч. Укажи число часов, например: /interval 4", int(current.Hours())))
	}
	hours, err := strconv.Atoi(args)
	if err != nil || hours <= 0 {
		return b.sendText(msg.Chat.ID, "Интервал должен быть положительным числом часов, например /interval 6")
	}
	if err := b.ScheduleReports(time.Duration(hours) * time.Hour); err != nil {
		return b.sendFailure(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Интервал уведомлений обновлён: каждые %d ч.", hours))
}

// SendDailyReports sends a progress summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s, err := b.sessions.Open(ctx, user.ID)
		if err != nil {
			b.log.Warn("open session for report", "user_id", user.ID, "error", err)
			continue
		}
		text := formatReport(user.DisplayName(), s.Tasks(), s.Today())
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.log.Warn("send report", "telegram_id", user.TelegramID, "error", err)
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Debug("callback ack", "error", err)
	}

	chatID := cb.Message.Chat.ID
	b.log.Info("callback", "telegram_id", cb.From.ID, "data", cb.Data)

	if id, ok := parseCallback(cb.Data, cbDeletePrefix); ok {
		return b.sendWithReplyMarkup(chatID, "Удалить задачу?", confirmDeleteKeyboard(id))
	}
	if _, ok := parseCallback(cb.Data, cbCancelPrefix); ok {
		return nil
	}

	_, s, err := b.open(ctx, cb.From)
	if err != nil {
		return b.sendFailure(chatID, err)
	}

	switch {
	case strings.HasPrefix(cb.Data, cbTogglePrefix):
		id, _ := parseCallback(cb.Data, cbTogglePrefix)
		_, err = s.Toggle(ctx, id)
	case strings.HasPrefix(cb.Data, cbRecurringPrefix):
		id, _ := parseCallback(cb.Data, cbRecurringPrefix)
		_, err = s.ToggleRecurring(ctx, id)
	case strings.HasPrefix(cb.Data, cbConfirmPrefix):
		id, _ := parseCallback(cb.Data, cbConfirmPrefix)
		_, err = s.Delete(ctx, id)
	default:
		return nil
	}
	if err != nil {
		return b.sendFailure(chatID, err)
	}
	return b.sendTaskList(chatID, s)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
		return true, b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Как назвать задачу?", cancelKeyboard())
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelCalendar):
		return true, b.handleCalendar(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

// open makes sure the Telegram user is known and returns their session.
func (b *Bot) open(ctx context.Context, from *tgbotapi.User) (*model.User, *service.Session, error) {
	user, err := b.users.Upsert(ctx, model.TelegramProfile{
		TelegramID: from.ID,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Username:   from.UserName,
	})
	if err != nil {
		return nil, nil, err
	}
	s, err := b.sessions.Open(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, s, nil
}

func (b *Bot) sendTaskList(chatID int64, s *service.Session) error {
	text, buttons := formatTaskList(s.Tasks(), s.Today())
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	} else {
		msg.ReplyMarkup = mainMenuKeyboard()
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendFailure(chatID int64, err error) error {
	if service.IsUserError(err) {
		return b.sendText(chatID, fmt.Sprintf("Не получилось: %s", escape(err.Error())))
	}
	b.log.Error("request failed", "chat_id", chatID, "error", err)
	return b.sendText(chatID, "Что-то пошло не так, попробуй ещё раз позже.")
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

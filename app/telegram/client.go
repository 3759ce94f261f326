package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/terabox-relay-bot/pkg/entities"
	"nuclight.org/terabox-relay-bot/pkg/logger"
	"nuclight.org/terabox-relay-bot/pkg/report"
	"nuclight.org/terabox-relay-bot/pkg/serial"
)

type MessageHandler interface {
	HandleStart(ctx context.Context, chatID int64)
	HandleMessage(ctx context.Context, msg e.Message)
}

type Client struct {
	Log        logger.Logger
	APIToken   string
	WorkersNum int
	Handler    MessageHandler

	// TargetChannel receives relayed documents, numeric chat id or @username
	TargetChannel string

	// ConnectRetries is the number of connect attempts, at least one is made
	ConnectRetries int

	// ConnectDelay is the pause between connect attempts
	ConnectDelay time.Duration

	// APIEndpoint overrides tgbotapi.APIEndpoint
	APIEndpoint string

	// HTTPClient is used for all bot api calls, http.DefaultClient if nil
	HTTPClient tgbotapi.HTTPClient

	bot   *tgbotapi.BotAPI
	wg    sync.WaitGroup
	chats serial.Queue
	stop  sync.Once
}

func (c *Client) Start(ctx context.Context) (err error) {
	if c.WorkersNum <= 0 {
		return fmt.Errorf("workers number must be greater than 0")
	}

	if _, err = parseTarget(c.TargetChannel); err != nil {
		return fmt.Errorf("parsing target channel: %w", err)
	}

	log := c.Log

	c.bot, err = c.connect(ctx)
	if err != nil {
		return fmt.Errorf("creating bot api: %w", err)
	}

	log.Info("bot api created", "username", c.bot.Self.UserName)

	updatesConf := tgbotapi.NewUpdate(0)
	updatesConf.Timeout = 60

	updatesChan := c.bot.GetUpdatesChan(updatesConf)

	for i := 0; i < c.WorkersNum; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleUpdatesFromChan(ctx, updatesChan)
		}()
	}

	return nil
}

// Stop stops polling and waits for in-flight updates and queued messages to finish.
func (c *Client) Stop() {
	c.stop.Do(func() {
		if c.bot != nil {
			c.bot.StopReceivingUpdates()
		}
	})
	c.wg.Wait()
	c.chats.Wait()
}

// connect creates the bot api, retrying network and server side failures
// with a fixed delay. Other errors, such as a rejected token, are returned at once.
func (c *Client) connect(ctx context.Context) (*tgbotapi.BotAPI, error) {
	attempts := max(c.ConnectRetries, 1)

	endpoint := c.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	var httpClient tgbotapi.HTTPClient = http.DefaultClient
	if c.HTTPClient != nil {
		httpClient = c.HTTPClient
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		bot, err := tgbotapi.NewBotAPIWithClient(c.APIToken, endpoint, httpClient)
		if err == nil {
			return bot, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}

		if attempt == attempts {
			break
		}

		c.Log.Warn("connecting to telegram failed, retrying",
			"attempt", attempt,
			"of", attempts,
			"delay", c.ConnectDelay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.ConnectDelay):
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests
	}

	return false
}

func (c *Client) handleUpdatesFromChan(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updatesChan:
			if !ok {
				return
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := c.Log.With("tg_update_id", update.UpdateID)

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
			report.Recovered(err)
		}
	}()

	if update.Message == nil {
		log.Debug("update without message")
		return
	}

	if update.Message.From == nil {
		log.Warn("message from is nil")
		return
	}

	if update.Message.Chat == nil {
		log.Warn("message chat is nil")
		return
	}

	log.Info(
		"new message",
		"tg_message_id", update.Message.MessageID,
		"tg_user_id", update.Message.From.ID,
		"tg_user_nick", update.Message.From.UserName,
		"tg_chat_id", update.Message.Chat.ID,
		"text", update.Message.Text,
	)

	chatID := update.Message.Chat.ID

	if update.Message.IsCommand() {
		switch update.Message.Command() {
		case "start", "help":
			c.Handler.HandleStart(ctx, chatID)
		default:
			log.Info("unknown command ignored", "command", update.Message.Command())
		}
		return
	}

	if strings.TrimSpace(update.Message.Text) == "" {
		log.Debug("non-text message ignored")
		return
	}

	msg := e.Message{
		Sender: e.User{
			ID:     update.Message.From.ID,
			Name:   takeUserName(update.Message.From),
			ChatID: chatID,
		},
		ID:   update.Message.MessageID,
		Text: update.Message.Text,
	}

	// the worker only queues the message, a slow transfer holds its chat but no worker
	c.chats.Go(strconv.FormatInt(chatID, 10), func() {
		c.handleMessage(ctx, log, msg)
	})
}

func (c *Client) handleMessage(ctx context.Context, log logger.Logger, msg e.Message) {
	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
			report.Recovered(err)
		}
	}()

	if ctx.Err() != nil {
		log.Warn("message dropped on shutdown", "tg_message_id", msg.ID)
		return
	}

	c.Handler.HandleMessage(ctx, msg)

	log.Info("message handled", "tg_message_id", msg.ID)
}

// Notify sends a plain text message to chatID.
func (c *Client) Notify(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	_, err := c.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	return nil
}

// SendDocument uploads content to the target channel as a document named name.
// The content is streamed, it is never loaded into memory as a whole.
func (c *Client) SendDocument(_ context.Context, name string, content io.Reader) error {
	target, err := parseTarget(c.TargetChannel)
	if err != nil {
		return err
	}

	file := tgbotapi.FileReader{Name: name, Reader: content}

	var doc tgbotapi.DocumentConfig
	if target.username != "" {
		doc = tgbotapi.DocumentConfig{
			BaseFile: tgbotapi.BaseFile{
				BaseChat: tgbotapi.BaseChat{ChannelUsername: target.username},
				File:     file,
			},
		}
	} else {
		doc = tgbotapi.NewDocument(target.chatID, file)
	}

	_, err = c.bot.Send(doc)
	if err != nil {
		return fmt.Errorf("sending document: %w", err)
	}

	return nil
}

type chatTarget struct {
	chatID   int64
	username string
}

func parseTarget(raw string) (chatTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return chatTarget{}, fmt.Errorf("target channel is empty")
	}

	if strings.HasPrefix(raw, "@") {
		if len(raw) == 1 {
			return chatTarget{}, fmt.Errorf("target channel username is empty")
		}
		return chatTarget{username: raw}, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return chatTarget{}, fmt.Errorf("target channel must be @username or chat id: %q", raw)
	}

	return chatTarget{chatID: id}, nil
}

func takeUserName(user *tgbotapi.User) string {
	var sb strings.Builder

	if user.FirstName != "" {
		sb.WriteString(user.FirstName)
	}

	if user.LastName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
		}
		sb.WriteString(user.LastName)
	}

	if user.UserName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
			sb.WriteRune('(')
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
			sb.WriteRune(')')
		} else {
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
		}
	}

	if sb.Len() == 0 {
		return strconv.FormatInt(user.ID, 10)
	}

	return sb.String()
}

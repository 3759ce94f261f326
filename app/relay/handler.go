package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	e "nuclight.org/terabox-relay-bot/pkg/entities"
	"nuclight.org/terabox-relay-bot/pkg/logger"
)

const DefaultPlayerURL = "http://localhost:8000/player.html"

const (
	textProcessing = "🔄 Processing your link..."
	textStarting   = "📥 Starting download and upload to channel..."
	textUploaded   = "✅ File has been uploaded to the channel successfully!"
	textNotUpload  = "❌ Failed to upload file to the channel. Please try again later."
)

// Handler runs one inbound message through validate, resolve and transfer,
// notifying the sender after each step. It keeps no state between messages.
type Handler struct {
	// Log is a logger
	Log logger.Logger

	// Links decides whether a text carries a supported link
	Links LinkValidator

	// Resolver turns a share link into a direct link
	Resolver Resolver

	// Transfer relays a direct link to the target channel
	Transfer Transferer

	// Notifier sends texts back to the originating chat
	Notifier Notifier

	// History stores one record per handled message, optional
	History HistoryStore

	// PlayerURL is the base of the "watch online" link
	PlayerURL string

	// now is replaced in tests
	now func() time.Time
}

// HandleStart greets the user and lists supported domains.
func (h *Handler) HandleStart(ctx context.Context, chatID int64) {
	h.notify(ctx, h.Log, chatID, h.welcomeText())
}

// HandleMessage relays the link contained in msg. Every step runs strictly
// after the previous one, and exactly one final text is sent per message.
func (h *Handler) HandleMessage(ctx context.Context, msg e.Message) {
	rec := e.TransferRecord{
		ID:        uuid.NewString(),
		ChatID:    msg.Sender.ChatID,
		UserID:    msg.Sender.ID,
		Link:      msg.Text,
		CreatedAt: h.clock(),
	}

	log := h.Log.With(
		"transfer_id", rec.ID,
		"tg_chat_id", msg.Sender.ChatID,
		"tg_user_id", msg.Sender.ID,
		"tg_user_name", msg.Sender.Name,
	)

	h.process(ctx, log, msg, &rec)

	rec.FinishedAt = h.clock()
	h.saveHistory(ctx, log, rec)
}

func (h *Handler) process(ctx context.Context, log logger.Logger, msg e.Message, rec *e.TransferRecord) {
	chatID := msg.Sender.ChatID

	if !h.Links.IsValid(msg.Text) {
		log.Info("link rejected", "text", msg.Text)
		rec.Outcome = e.OutcomeRejected
		h.notify(ctx, log, chatID, h.rejectionText())
		return
	}

	h.notify(ctx, log, chatID, textProcessing)

	res := h.Resolver.Resolve(ctx, msg.Text)
	if !res.Success {
		log.Warn("link not resolved", "reason", res.Reason)
		rec.Outcome = e.OutcomeUnresolved
		rec.Reason = res.Reason
		h.notify(ctx, log, chatID, failureText(res.Reason))
		return
	}

	rec.Title = res.Title
	rec.Size = res.Size
	rec.DirectLink = res.DirectLink

	log.Info("link resolved", "title", res.Title, "size", res.Size)

	h.notify(ctx, log, chatID, textStarting)

	uploaded := h.Transfer.Transfer(ctx, res.DirectLink, res.Title)
	if uploaded {
		rec.Outcome = e.OutcomeUploaded
	} else {
		rec.Outcome = e.OutcomeFailed
		rec.Reason = "upload to channel failed"
	}

	log.Info("transfer finished", "uploaded", uploaded)

	h.notify(ctx, log, chatID, h.resultText(res, uploaded))
}

func (h *Handler) notify(ctx context.Context, log logger.Logger, chatID int64, text string) {
	if err := h.Notifier.Notify(ctx, chatID, text); err != nil {
		log.Error("notifying chat", "tg_chat_id", chatID, "error", err)
	}
}

func (h *Handler) saveHistory(ctx context.Context, log logger.Logger, rec e.TransferRecord) {
	if h.History == nil {
		return
	}

	// the record is written even when the handling ctx is already cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := h.History.SaveTransfer(ctx, rec); err != nil {
		log.Error("saving transfer record", "error", err)
	}
}

func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *Handler) welcomeText() string {
	return "Welcome! 👋\n\n" +
		"I can help you generate direct download links from Terabox links.\n" +
		"Just send me a Terabox link and I'll convert it for you.\n\n" +
		"Supported domains:\n" +
		h.Links.SupportedList()
}

func (h *Handler) rejectionText() string {
	return "❌ Please send a valid Terabox link from supported domains:\n" + h.Links.SupportedList()
}

func failureText(reason string) string {
	return fmt.Sprintf("❌ Error: %s\n\nPlease try again later.", reason)
}

func (h *Handler) resultText(res e.Resolution, uploaded bool) string {
	var sb strings.Builder

	sb.WriteString("✅ Successfully processed!\n\n")
	fmt.Fprintf(&sb, "📁 File: %s\n", res.Title)
	fmt.Fprintf(&sb, "📦 Size: %s\n\n", res.Size)
	fmt.Fprintf(&sb, "🔗 Direct Download Link:\n%s\n\n", res.DirectLink)
	fmt.Fprintf(&sb, "🎥 Watch Online:\n%s\n\n", h.playerLink(res.DirectLink, res.Title))

	if uploaded {
		sb.WriteString(textUploaded)
	} else {
		sb.WriteString(textNotUpload)
	}

	return sb.String()
}

// playerLink appends url and title, in that order, to the player address.
func (h *Handler) playerLink(directLink, title string) string {
	base := h.PlayerURL
	if base == "" {
		base = DefaultPlayerURL
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	return base + sep + "url=" + url.QueryEscape(directLink) + "&title=" + url.QueryEscape(title)
}

type LinkValidator interface {
	IsValid(text string) bool
	SupportedList() string
}

type Resolver interface {
	Resolve(ctx context.Context, link string) e.Resolution
}

type Transferer interface {
	Transfer(ctx context.Context, remoteURL, name string) bool
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type HistoryStore interface {
	SaveTransfer(ctx context.Context, rec e.TransferRecord) error
}

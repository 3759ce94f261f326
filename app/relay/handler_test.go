package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	e "nuclight.org/terabox-relay-bot/pkg/entities"
	"nuclight.org/terabox-relay-bot/pkg/links"
	"nuclight.org/terabox-relay-bot/pkg/logger"
)

type sentText struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	sent []sentText
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.sent = append(n.sent, sentText{chatID: chatID, text: text})
	return n.err
}

func (n *fakeNotifier) texts() []string {
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.text)
	}
	return out
}

type fakeResolver struct {
	res   e.Resolution
	links []string
}

func (r *fakeResolver) Resolve(_ context.Context, link string) e.Resolution {
	r.links = append(r.links, link)
	return r.res
}

type transferCall struct {
	url  string
	name string
}

type fakeTransfer struct {
	ok    bool
	calls []transferCall
}

func (t *fakeTransfer) Transfer(_ context.Context, remoteURL, name string) bool {
	t.calls = append(t.calls, transferCall{url: remoteURL, name: name})
	return t.ok
}

type fakeHistory struct {
	records []e.TransferRecord
	err     error
}

func (h *fakeHistory) SaveTransfer(_ context.Context, rec e.TransferRecord) error {
	h.records = append(h.records, rec)
	return h.err
}

type fixture struct {
	handler  *Handler
	notifier *fakeNotifier
	resolver *fakeResolver
	transfer *fakeTransfer
	history  *fakeHistory
}

func newFixture(res e.Resolution, uploaded bool) *fixture {
	f := &fixture{
		notifier: &fakeNotifier{},
		resolver: &fakeResolver{res: res},
		transfer: &fakeTransfer{ok: uploaded},
		history:  &fakeHistory{},
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f.handler = &Handler{
		Log:       logger.Discard(),
		Links:     &links.Validator{Domains: links.DefaultDomains},
		Resolver:  f.resolver,
		Transfer:  f.transfer,
		Notifier:  f.notifier,
		History:   f.history,
		PlayerURL: DefaultPlayerURL,
		now:       func() time.Time { return at },
	}

	return f
}

func message(text string) e.Message {
	return e.Message{
		Sender: e.User{ID: 7, Name: "alice", ChatID: 42},
		ID:     1,
		Text:   text,
	}
}

func TestHandleMessageRejectsUnsupportedText(t *testing.T) {
	f := newFixture(e.Resolution{}, true)

	f.handler.HandleMessage(context.Background(), message("hi"))

	assert.Equal(t, []sentText{{
		chatID: 42,
		text:   "❌ Please send a valid Terabox link from supported domains:\n- teraboxlink.com\n- 1024terabox.com",
	}}, f.notifier.sent)
	assert.Empty(t, f.resolver.links)
	assert.Empty(t, f.transfer.calls)

	require.Len(t, f.history.records, 1)
	assert.Equal(t, e.OutcomeRejected, f.history.records[0].Outcome)
	assert.Equal(t, "hi", f.history.records[0].Link)
}

func TestHandleMessageResolutionFailure(t *testing.T) {
	f := newFixture(e.Unresolved("Failed to extract information"), true)
	link := "https://1024terabox.com/s/1abc"

	f.handler.HandleMessage(context.Background(), message(link))

	assert.Equal(t, []string{
		"🔄 Processing your link...",
		"❌ Error: Failed to extract information\n\nPlease try again later.",
	}, f.notifier.texts())
	assert.Equal(t, []string{link}, f.resolver.links)
	assert.Empty(t, f.transfer.calls)

	require.Len(t, f.history.records, 1)
	rec := f.history.records[0]
	assert.Equal(t, e.OutcomeUnresolved, rec.Outcome)
	assert.Equal(t, "Failed to extract information", rec.Reason)
}

func TestHandleMessageUploaded(t *testing.T) {
	f := newFixture(e.Resolved("Movie.mp4", "700MB", "http://x/file"), true)

	f.handler.HandleMessage(context.Background(), message("https://teraboxlink.com/s/1abc"))

	texts := f.notifier.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "🔄 Processing your link...", texts[0])
	assert.Equal(t, "📥 Starting download and upload to channel...", texts[1])

	assert.Equal(t,
		"✅ Successfully processed!\n\n"+
			"📁 File: Movie.mp4\n"+
			"📦 Size: 700MB\n\n"+
			"🔗 Direct Download Link:\nhttp://x/file\n\n"+
			"🎥 Watch Online:\nhttp://localhost:8000/player.html?url=http%3A%2F%2Fx%2Ffile&title=Movie.mp4\n\n"+
			"✅ File has been uploaded to the channel successfully!",
		texts[2],
	)

	assert.Equal(t, []transferCall{{url: "http://x/file", name: "Movie.mp4"}}, f.transfer.calls)

	require.Len(t, f.history.records, 1)
	rec := f.history.records[0]
	assert.Equal(t, e.OutcomeUploaded, rec.Outcome)
	assert.Equal(t, int64(42), rec.ChatID)
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, "Movie.mp4", rec.Title)
	assert.Equal(t, "700MB", rec.Size)
	assert.Equal(t, "http://x/file", rec.DirectLink)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestHandleMessageUploadFailed(t *testing.T) {
	f := newFixture(e.Resolved("Movie.mp4", "700MB", "http://x/file"), false)

	f.handler.HandleMessage(context.Background(), message("https://teraboxlink.com/s/1abc"))

	texts := f.notifier.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[2], "📁 File: Movie.mp4")
	assert.Contains(t, texts[2], "❌ Failed to upload file to the channel. Please try again later.")
	assert.NotContains(t, texts[2], "uploaded to the channel successfully")

	require.Len(t, f.history.records, 1)
	assert.Equal(t, e.OutcomeFailed, f.history.records[0].Outcome)
}

func TestHandleMessageContinuesWhenNotifyFails(t *testing.T) {
	f := newFixture(e.Resolved("a.zip", "1KB", "http://x/a"), true)
	f.notifier.err = errors.New("chat blocked the bot")
	f.history.err = errors.New("disk full")

	f.handler.HandleMessage(context.Background(), message("teraboxlink.com/s/1"))

	assert.Len(t, f.notifier.sent, 3)
	assert.Len(t, f.transfer.calls, 1)
}

func TestHandleMessageWithoutHistory(t *testing.T) {
	f := newFixture(e.Resolution{}, true)
	f.handler.History = nil

	assert.NotPanics(t, func() {
		f.handler.HandleMessage(context.Background(), message("hello"))
	})
	assert.Len(t, f.notifier.sent, 1)
}

func TestHandleStart(t *testing.T) {
	f := newFixture(e.Resolution{}, true)

	f.handler.HandleStart(context.Background(), 99)

	assert.Equal(t, []sentText{{
		chatID: 99,
		text: "Welcome! 👋\n\n" +
			"I can help you generate direct download links from Terabox links.\n" +
			"Just send me a Terabox link and I'll convert it for you.\n\n" +
			"Supported domains:\n" +
			"- teraboxlink.com\n" +
			"- 1024terabox.com",
	}}, f.notifier.sent)
	assert.Empty(t, f.history.records)
}

func TestPlayerLink(t *testing.T) {
	h := &Handler{}
	assert.Equal(t,
		"http://localhost:8000/player.html?url=http%3A%2F%2Fx%2Ff%3Fa%3D1&title=My+Movie.mp4",
		h.playerLink("http://x/f?a=1", "My Movie.mp4"),
	)

	h.PlayerURL = "https://play.example/watch?v=2"
	assert.Equal(t,
		"https://play.example/watch?v=2&url=u&title=t",
		h.playerLink("u", "t"),
	)
}

func TestHandleMessageLogsSender(t *testing.T) {
	f := newFixture(e.Resolution{}, true)

	var buf bytes.Buffer
	f.handler.Log = slog.New(slog.NewTextHandler(&buf, nil))

	f.handler.HandleMessage(context.Background(), message("hi"))

	assert.Contains(t, buf.String(), "tg_user_name=alice")
	assert.Contains(t, buf.String(), "tg_user_id=7")
}

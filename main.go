package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bosley/medtalk/api"
	"github.com/bosley/medtalk/audio"
	"github.com/bosley/medtalk/chat"
	"github.com/bosley/medtalk/outbox"
	"github.com/bosley/medtalk/push"
	"github.com/bosley/medtalk/viewer"
)

func main() {
	serverURL := flag.String("server", "", "Translation server base URL (default MEDTALK_SERVER or http://localhost:8000)")
	conversationID := flag.String("conversation", "", "Conversation ID to open (a new one is created when empty)")
	role := flag.String("role", string(chat.RoleDoctor), "Initial role (doctor or patient)")
	doctorLang := flag.String("doctor-lang", "en", "Doctor language code")
	patientLang := flag.String("patient-lang", "es", "Patient language code")
	recordingsDir := flag.String("recordings", "recordings", "Directory watched for new recordings")
	viewerAddr := flag.String("viewer", "", "Serve a local read-only JSON view on this address (e.g. :8099)")
	playFile := flag.String("play", "", "Play audio file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", 0, "Audio input device ID to use")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *playFile != "" {
		if err := audio.Play(*playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
		}
		return
	}

	if *listDevices {
		devices, err := audio.ListInputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	if *serverURL == "" {
		*serverURL = os.Getenv("MEDTALK_SERVER")
	}
	if *serverURL == "" {
		*serverURL = "http://localhost:8000"
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	client := api.NewClient(*serverURL)
	rec := chat.NewReconciler()

	display := newRenderer(os.Stdout)
	rec.OnChange(display.render)

	openChannel := func(ctx context.Context, conversationID string) (chat.EventSource, error) {
		return push.Open(ctx, *serverURL, conversationID)
	}
	session := chat.NewSession(client, client, openChannel, rec)
	defer session.Deactivate()

	if *conversationID == "" {
		conv, err := client.CreateConversation(ctx)
		if err != nil {
			slog.Error("Failed to create conversation", "error", err)
			os.Exit(1)
		}
		*conversationID = conv.ID
		fmt.Printf("Created conversation %s\n", conv.ID)
	}

	if err := session.Activate(ctx, *conversationID); err != nil {
		slog.Error("Failed to activate conversation", "error", err)
		os.Exit(1)
	}

	watcher, err := outbox.New(*recordingsDir)
	if err != nil {
		slog.Error("Failed to set up recordings watcher", "error", err)
		os.Exit(1)
	}
	go watcher.Run(ctx)

	if *viewerAddr != "" {
		v := viewer.New(*viewerAddr, rec, session)
		go func() {
			if err := v.Run(ctx); err != nil {
				slog.Error("Viewer shutdown error", "error", err)
			}
		}()
	}

	app := &chatApp{
		client:        client,
		session:       session,
		role:          chat.Role(*role),
		doctorLang:    *doctorLang,
		patientLang:   *patientLang,
		recordingsDir: *recordingsDir,
		deviceID:      *deviceID,
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Printf("Connected to %s as %s. Type a message, or /help for commands.\n", *serverURL, app.role)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Program exiting")
			return

		case path, ok := <-watcher.Recordings():
			if !ok {
				continue
			}
			app.attach(path)

		case line, ok := <-lines:
			if !ok {
				cancel()
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := app.handleCommand(ctx, line); quit {
					cancel()
					return
				}
				continue
			}
			app.send(ctx, line)
		}
	}
}

// chatApp holds the interactive loop's composer state: the active role, the
// language pair and any recording waiting to ride along with the next send.
type chatApp struct {
	client        *api.Client
	session       *chat.Session
	role          chat.Role
	doctorLang    string
	patientLang   string
	recordingsDir string
	deviceID      int

	pendingAudio string
}

func (a *chatApp) draft(text string) chat.Draft {
	source, target := a.doctorLang, a.patientLang
	if a.role == chat.RolePatient {
		source, target = a.patientLang, a.doctorLang
	}
	return chat.Draft{
		Role:           a.role,
		Text:           text,
		SourceLanguage: source,
		TargetLanguage: target,
		AudioPath:      a.pendingAudio,
	}
}

func (a *chatApp) send(ctx context.Context, text string) {
	if _, err := a.session.Submit(ctx, a.draft(text)); err != nil {
		slog.Debug("Submission failed", "error", err)
		fmt.Println("Failed to send message. Please try again.")
		return
	}
	a.pendingAudio = ""
}

func (a *chatApp) attach(path string) {
	info, err := audio.Probe(path)
	if err != nil {
		slog.Warn("Ignoring unreadable recording", "error", err, "file", path)
		return
	}
	a.pendingAudio = path
	fmt.Printf("Recording attached (%.1fs). It will be sent with your next message, or send it alone with /send-audio.\n",
		info.Duration.Seconds())
}

func (a *chatApp) handleCommand(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		fmt.Println(`Commands:
  /role [doctor|patient]     show or switch the speaking role
  /lang <doctor|patient> <c> set a language code
  /languages                 list supported languages
  /record <seconds>          record from the microphone
  /attach <file>             attach an existing WAV file
  /send-audio                send the attached recording without text
  /summary                   generate a conversation summary
  /conversations             list conversations
  /new                       create and switch to a new conversation
  /switch <id>               switch conversation
  /delete <id>               delete a conversation
  /status                    show connection status
  /quit                      exit`)

	case "/role":
		if len(args) == 0 {
			fmt.Printf("Speaking as %s\n", a.role)
			break
		}
		switch chat.Role(args[0]) {
		case chat.RoleDoctor, chat.RolePatient:
			a.role = chat.Role(args[0])
			fmt.Printf("Now speaking as %s\n", a.role)
		default:
			fmt.Println("Role must be doctor or patient")
		}

	case "/lang":
		if len(args) != 2 {
			fmt.Println("Usage: /lang <doctor|patient> <code>")
			break
		}
		switch args[0] {
		case "doctor":
			a.doctorLang = args[1]
			fmt.Printf("Languages: doctor=%s patient=%s\n", a.doctorLang, a.patientLang)
		case "patient":
			a.patientLang = args[1]
			fmt.Printf("Languages: doctor=%s patient=%s\n", a.doctorLang, a.patientLang)
		default:
			fmt.Println("Usage: /lang <doctor|patient> <code>")
		}

	case "/languages":
		languages, err := a.client.Languages(ctx)
		if err != nil {
			fmt.Printf("Failed to fetch languages: %v\n", err)
			break
		}
		for _, l := range languages {
			fmt.Printf("  %s  %s\n", l.Code, l.Name)
		}

	case "/record":
		seconds := 5
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				fmt.Println("Usage: /record <seconds>")
				break
			}
			seconds = n
		}
		path := filepath.Join(a.recordingsDir, fmt.Sprintf("msg_%s.wav", time.Now().Format("150405")))
		fmt.Printf("Recording %ds...\n", seconds)
		tmp := path + ".tmp"
		if err := audio.Record(ctx, tmp, time.Duration(seconds)*time.Second, a.deviceID); err != nil {
			fmt.Printf("Recording failed: %v\n", err)
			break
		}
		// The rename makes the watcher see a complete file.
		if err := os.Rename(tmp, path); err != nil {
			fmt.Printf("Recording failed: %v\n", err)
		}

	case "/attach":
		if len(args) != 1 {
			fmt.Println("Usage: /attach <file>")
			break
		}
		a.attach(args[0])

	case "/send-audio":
		if a.pendingAudio == "" {
			fmt.Println("No recording attached")
			break
		}
		a.send(ctx, "")

	case "/summary":
		summary, err := a.client.Summary(ctx, a.session.Active())
		if err != nil {
			fmt.Printf("Failed to generate summary: %v\n", err)
			break
		}
		fmt.Printf("--- Summary ---\n%s\n---------------\n", summary.Text)

	case "/conversations":
		conversations, err := a.client.Conversations(ctx)
		if err != nil {
			fmt.Printf("Failed to list conversations: %v\n", err)
			break
		}
		for _, conv := range conversations {
			marker := " "
			if conv.ID == a.session.Active() {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  %d messages\n", marker, conv.ID,
				conv.CreatedAt.Format("2006-01-02 15:04"), conv.MessageCount)
		}

	case "/new":
		conv, err := a.client.CreateConversation(ctx)
		if err != nil {
			fmt.Printf("Failed to create conversation: %v\n", err)
			break
		}
		if err := a.session.Activate(ctx, conv.ID); err != nil {
			fmt.Printf("Failed to switch conversation: %v\n", err)
			break
		}
		fmt.Printf("Switched to new conversation %s\n", conv.ID)

	case "/switch":
		if len(args) != 1 {
			fmt.Println("Usage: /switch <id>")
			break
		}
		if err := a.session.Activate(ctx, args[0]); err != nil {
			fmt.Printf("Failed to switch conversation: %v\n", err)
			break
		}
		fmt.Printf("Switched to conversation %s\n", args[0])

	case "/delete":
		if len(args) != 1 {
			fmt.Println("Usage: /delete <id>")
			break
		}
		if err := a.client.DeleteConversation(ctx, args[0]); err != nil {
			fmt.Printf("Failed to delete conversation: %v\n", err)
			break
		}
		if args[0] == a.session.Active() {
			a.session.Deactivate()
		}
		fmt.Printf("Deleted conversation %s\n", args[0])

	case "/status":
		fmt.Printf("Conversation: %s  Channel: %s\n", a.session.Active(), a.session.ChannelStatus())

	case "/quit", "/exit":
		return true

	default:
		fmt.Printf("Unknown command %s (try /help)\n", cmd)
	}
	return false
}

// renderer prints messages as the reconciler's view evolves: each message
// once when it first appears, and once more when a pending entry settles
// with its translation.
type renderer struct {
	mu   sync.Mutex
	out  *os.File
	seen map[string]chat.Status
}

func newRenderer(out *os.File) *renderer {
	return &renderer{
		out:  out,
		seen: make(map[string]chat.Status),
	}
}

func (r *renderer) render(messages []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range messages {
		key := m.LocalKey
		if key == "" {
			key = m.ID
		}
		if key == "" {
			continue
		}

		prev, known := r.seen[key]
		switch {
		case !known:
			r.print(m)
		case prev == chat.StatusPending && m.Status == chat.StatusConfirmed:
			r.print(m)
		}
		r.seen[key] = m.Status
	}
}

func (r *renderer) print(m chat.Message) {
	text := m.OriginalText
	if text == "" && m.AudioPath != "" {
		text = "(audio)"
	}
	switch {
	case m.Status == chat.StatusPending:
		fmt.Fprintf(r.out, "[%s] %s  (translating...)\n", m.Role, text)
	case m.TranslatedText != "":
		fmt.Fprintf(r.out, "[%s] %s  ->  %s\n", m.Role, text, m.TranslatedText)
	default:
		fmt.Fprintf(r.out, "[%s] %s\n", m.Role, text)
	}
}

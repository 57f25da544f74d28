package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sitegen/internal/bootstrap"
	"sitegen/internal/domain"
	"sitegen/internal/preview"
	"sitegen/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

const helpText = `Commands:
  describe <text>   replace the website description
  append <text>     append text to the description
  attach <path>     attach an inspiration image
  clear-images      remove all attached images
  voice             start or stop dictation
  generate          generate a website from the description
  title <text>      set the title used when saving
  save [title]      save the generated website
  preview           open the generated website in the browser
  list              show saved websites
  open <n>          open saved website n in the browser
  status            show session status
  help              show this help
  quit              exit`

type options struct {
	noVoice   bool
	noPreview bool
	logOutput io.Writer
}

// App is the terminal front end. It implements ports.EventSink.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	in    io.Reader
	out   io.Writer
	outMu sync.Mutex

	generation   *usecase.GenerationSession
	catalog      *usecase.Catalog
	preview      *preview.Server
	voice        *usecase.VoiceSession
	publicOrigin string
	bootErr      error

	inflight sync.WaitGroup
}

func NewApp(in io.Reader, out io.Writer) *App {
	return &App{in: in, out: out}
}

// Run starts the runtime graph and processes commands until quit, end of
// input or ctx cancellation.
func (a *App) Run(ctx context.Context, opts options) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.shutdown()

	a.startup(opts)
	if a.bootErr != nil {
		return a.bootErr
	}
	a.println(helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-a.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if a.handle(line) {
				return nil
			}
		}
	}
}

func (a *App) startup(opts options) {
	logOutput := opts.logOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}

	services, err := bootstrap.Build(a, logOutput)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.generation = services.Generation
	a.catalog = services.Catalog
	a.preview = services.Preview
	a.publicOrigin = services.Config.API.PublicOrigin
	a.GenerationStateChanged(domain.GenerationIdle, domain.ReasonSessionStarted)

	if !opts.noPreview {
		if err := a.preview.Start(services.Config.Preview.Addr); err != nil {
			a.SessionError(domain.ErrorCodePreview, err.Error())
		}
	}
	a.background(func(ctx context.Context) {
		a.catalog.Refresh(ctx)
	})
	if !opts.noVoice {
		a.voice = services.MountVoice(a.ctx)
	}
}

func (a *App) shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.inflight.Wait()

	if a.voice != nil {
		a.voice.Unmount()
	}
	if a.preview != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.preview.Shutdown(ctx); err != nil {
			a.printf("preview shutdown: %v\n", err)
		}
	}
}

// handle runs one command line and reports whether the app should exit.
func (a *App) handle(line string) bool {
	cmd, arg := splitCommand(line)
	if cmd == "" {
		return false
	}
	if cmd == "quit" || cmd == "exit" {
		return true
	}
	if cmd == "help" {
		a.println(helpText)
		return false
	}
	if err := a.requireReady(); err != nil {
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return false
	}

	switch cmd {
	case "describe":
		a.reportCompose(a.generation.SetDescription(arg))
	case "append":
		a.generation.AppendTranscription(arg)
	case "attach":
		a.attach(arg)
	case "clear-images":
		a.reportCompose(a.generation.ClearImages())
	case "voice":
		a.toggleVoice()
	case "generate":
		a.background(func(ctx context.Context) {
			_ = a.generation.Submit(ctx)
		})
	case "title":
		a.generation.SetTitle(arg)
		a.printf("Title: %s\n", arg)
	case "save":
		title := arg
		if title == "" {
			title = a.generation.Title()
		}
		a.background(func(ctx context.Context) {
			_, _ = a.generation.Save(ctx, title)
		})
	case "preview":
		if err := a.preview.Open(); err != nil {
			a.SessionError(domain.ErrorCodePreview, err.Error())
		}
	case "list":
		a.printCatalog()
	case "open":
		a.openSaved(arg)
	case "status":
		a.printStatus()
	default:
		a.printf("Unknown command %q. Type 'help' for a list of commands.\n", cmd)
	}
	return false
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.generation == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) background(fn func(ctx context.Context)) {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		fn(ctx)
	}()
}

func (a *App) reportCompose(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrConflict) {
		a.SessionError(domain.ErrorCodeConflict, err.Error())
		return
	}
	a.SessionError(domain.ErrorCodeValidation, err.Error())
}

func (a *App) attach(path string) {
	if path == "" {
		a.SessionError(domain.ErrorCodeValidation, "usage: attach <path>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		a.SessionError(domain.ErrorCodeValidation, err.Error())
		return
	}
	if err := a.generation.AttachImage(domain.Image{Name: filepath.Base(path), Data: data}); err != nil {
		a.reportCompose(err)
		return
	}
	a.printf("Attached %s (%d bytes)\n", filepath.Base(path), len(data))
}

func (a *App) toggleVoice() {
	if a.voice == nil {
		a.println("Voice input is disabled")
		return
	}
	// Errors are already reported through the event sink.
	_ = a.voice.Toggle(a.ctx)
}

func (a *App) openSaved(arg string) {
	sites := a.catalog.List()
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(sites) {
		a.SessionError(domain.ErrorCodeValidation, fmt.Sprintf("choose a website between 1 and %d", len(sites)))
		return
	}
	link := usecase.ShareURL(a.publicOrigin, sites[n-1].PermanentURL)
	if err := a.preview.OpenURL(link); err != nil {
		a.SessionError(domain.ErrorCodePreview, err.Error())
	}
}

func (a *App) printCatalog() {
	sites := a.catalog.List()
	if len(sites) == 0 {
		a.println("No saved websites yet")
		return
	}
	var b strings.Builder
	b.WriteString("Saved websites:\n")
	for i, site := range sites {
		fmt.Fprintf(&b, "  %d. %s  %s\n", i+1, site.Title, usecase.ShareURL(a.publicOrigin, site.PermanentURL))
	}
	a.printf("%s", b.String())
}

func (a *App) printStatus() {
	status := a.generation.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", status.State)
	fmt.Fprintf(&b, "Description: %s\n", status.Description)
	fmt.Fprintf(&b, "Images: %d\n", status.Images)
	if status.HasResult {
		fmt.Fprintf(&b, "Title: %s\n", status.Title)
		if u := a.preview.URL(); u != "" {
			fmt.Fprintf(&b, "Preview: %s\n", u)
		}
	}
	if status.Message != "" {
		fmt.Fprintf(&b, "Last error: %s\n", status.Message)
	}
	if a.voice != nil {
		b.WriteString(formatVoice(a.voice.Status()))
	}
	a.printf("%s", b.String())
}

// GenerationStateChanged prints generation lifecycle updates.
func (a *App) GenerationStateChanged(state domain.GenerationState, reason domain.GenerationReason) {
	message := generationReasonMessage(reason)
	if message == "" {
		return
	}
	a.printf("[%s] %s\n", state, message)
}

func (a *App) DescriptionChanged(description string) {
	a.printf("Description: %s\n", description)
}

func (a *App) VoiceStateChanged(status domain.VoiceStatus) {
	a.printf("%s", formatVoice(status))
}

func (a *App) CatalogRefreshed(sites []domain.SavedWebsite) {
	a.printf("Saved websites: %d\n", len(sites))
}

func (a *App) WebsiteSaved(site domain.SavedWebsite, shareURL string) {
	a.printf("Saved %q: %s\n", site.Title, shareURL)
}

// SessionError prints a readable error.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	message := errorMessage(code, detail)
	if detail != "" && detail != message {
		a.printf("Error: %s (%s)\n", message, detail)
		return
	}
	a.printf("Error: %s\n", message)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(text string) {
	a.printf("%s\n", text)
}

func formatVoice(status domain.VoiceStatus) string {
	line := fmt.Sprintf("Voice: connection=%s recording=%s", status.Connection, status.Recording)
	if status.PendingErrorMessage != "" {
		line += " (" + status.PendingErrorMessage + ")"
	}
	return line + "\n"
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func generationReasonMessage(reason domain.GenerationReason) string {
	switch reason {
	case domain.ReasonSessionStarted:
		return "Describe your website to get started"
	case domain.ReasonGenerating:
		return "Generating website..."
	case domain.ReasonWebsiteGenerated:
		return "Website generated. Use 'preview' to view it or 'save' to keep it"
	case domain.ReasonGenerationFailed:
		return "Website generation failed"
	case domain.ReasonMalformedResponse:
		return "No HTML content received from server"
	case domain.ReasonSaving:
		return "Saving website..."
	case domain.ReasonWebsiteSaved:
		return "Website saved successfully"
	case domain.ReasonSaveFailed:
		return "Failed to save website"
	case domain.ReasonReadyForSave:
		return "Ready"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeConflict:
		return "A generation or save is already in progress"
	case domain.ErrorCodeGeneration:
		return "Failed to generate website"
	case domain.ErrorCodeSave:
		return "Failed to save website"
	case domain.ErrorCodeMicrophone:
		return usecase.MicrophoneAccessMessage
	case domain.ErrorCodeConnection:
		return usecase.ConnectionErrorMessage
	case domain.ErrorCodePreview:
		return "Preview unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

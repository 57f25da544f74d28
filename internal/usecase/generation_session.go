package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
)

const defaultTitleWords = 3

// GenerationSession drives compose → submit → preview → save for one user.
type GenerationSession struct {
	id           string
	generator    ports.Generator
	catalog      *Catalog
	events       ports.EventSink
	logger       *slog.Logger
	publicOrigin string

	mu        sync.Mutex
	state     domain.GenerationState
	pending   domain.GenerationRequest
	result    *domain.GenerationResult
	generated domain.GenerationRequest
	title     string
	message   string
}

func NewGenerationSession(
	generator ports.Generator,
	catalog *Catalog,
	events ports.EventSink,
	publicOrigin string,
	logger *slog.Logger,
) *GenerationSession {
	id := uuid.NewString()
	return &GenerationSession{
		id:           id,
		generator:    generator,
		catalog:      catalog,
		events:       events,
		logger:       logging.OrDiscard(logger).With("generation_session", id),
		publicOrigin: publicOrigin,
		state:        domain.GenerationIdle,
	}
}

// Compose replaces the pending description and images. Validation is left
// to Submit.
func (s *GenerationSession) Compose(description string, images []domain.Image) error {
	return s.mutate(func(req *domain.GenerationRequest) {
		*req = domain.GenerationRequest{Description: description, Images: images}.Clone()
	})
}

// SetDescription replaces the description and keeps the attached images.
func (s *GenerationSession) SetDescription(description string) error {
	return s.mutate(func(req *domain.GenerationRequest) {
		req.Description = description
	})
}

// AttachImage adds one inspiration image to the pending request.
func (s *GenerationSession) AttachImage(img domain.Image) error {
	return s.mutate(func(req *domain.GenerationRequest) {
		req.Images = append(req.Images, domain.Image{Name: img.Name, Data: append([]byte(nil), img.Data...)})
	})
}

// ClearImages drops every attached image.
func (s *GenerationSession) ClearImages() error {
	return s.mutate(func(req *domain.GenerationRequest) {
		req.Images = nil
	})
}

// mutate applies fn to the pending request in one critical section so
// concurrent dictation is never overwritten.
func (s *GenerationSession) mutate(fn func(req *domain.GenerationRequest)) error {
	s.mu.Lock()
	if s.inFlightLocked() {
		state := s.state
		s.mu.Unlock()
		return domain.Conflict(string(state))
	}
	fn(&s.pending)
	description := s.pending.Description
	s.mu.Unlock()

	s.events.DescriptionChanged(description)
	return nil
}

// AppendTranscription appends dictated text to the pending description. An
// in-flight submit works from its own snapshot, so this is allowed in every
// state.
func (s *GenerationSession) AppendTranscription(text string) {
	s.mu.Lock()
	s.pending.Description = appendText(s.pending.Description, text)
	description := s.pending.Description
	s.mu.Unlock()

	s.events.DescriptionChanged(description)
}

// Submit sends the pending request to the generator and blocks until it
// answers. Callers that must stay responsive run it on their own goroutine.
// A concurrent Submit or Save is rejected with domain.ErrConflict.
func (s *GenerationSession) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlightLocked() {
		state := s.state
		s.mu.Unlock()
		s.events.SessionError(domain.ErrorCodeConflict, "generation or save already in progress")
		return domain.Conflict(string(state))
	}
	if strings.TrimSpace(s.pending.Description) == "" {
		s.mu.Unlock()
		s.events.SessionError(domain.ErrorCodeValidation, "Please describe your website")
		return domain.Validation("description is required")
	}
	req := s.pending.Clone()
	s.state = domain.GenerationSubmitting
	s.message = ""
	s.mu.Unlock()

	s.events.GenerationStateChanged(domain.GenerationSubmitting, domain.ReasonGenerating)
	s.logger.Info("submitting generation", "description_len", len(req.Description), "images", len(req.Images))

	result, err := s.generator.Generate(ctx, req)
	if err != nil {
		reason := domain.ReasonGenerationFailed
		if errors.Is(err, domain.ErrMalformedResponse) {
			reason = domain.ReasonMalformedResponse
		}

		s.mu.Lock()
		s.state = domain.GenerationFailed
		s.message = "Failed to generate website: " + err.Error()
		message := s.message
		s.mu.Unlock()

		s.logger.Warn("generation failed", "error", err)
		s.events.SessionError(domain.ErrorCodeGeneration, message)
		s.events.GenerationStateChanged(domain.GenerationFailed, reason)
		return err
	}

	s.mu.Lock()
	s.result = &domain.GenerationResult{HTML: result.HTML}
	s.generated = req
	s.title = DefaultTitle(req.Description)
	s.state = domain.GenerationReady
	s.mu.Unlock()

	s.logger.Info("generation ready", "html_len", len(result.HTML))
	s.events.GenerationStateChanged(domain.GenerationReady, domain.ReasonWebsiteGenerated)
	return nil
}

// SetTitle replaces the title used by the next save.
func (s *GenerationSession) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Save stores the current result under title, then refreshes the catalog.
// It blocks until both finish, so interactive callers run it on their own
// goroutine. The result is kept whether or not the save succeeds.
func (s *GenerationSession) Save(ctx context.Context, title string) (domain.SavedWebsite, error) {
	s.mu.Lock()
	if s.inFlightLocked() {
		state := s.state
		s.mu.Unlock()
		s.events.SessionError(domain.ErrorCodeConflict, "generation or save already in progress")
		return domain.SavedWebsite{}, domain.Conflict(string(state))
	}
	if s.state != domain.GenerationReady || s.result == nil {
		s.mu.Unlock()
		s.events.SessionError(domain.ErrorCodeValidation, "Generate a website before saving")
		return domain.SavedWebsite{}, domain.Validation("no generated website to save")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		s.mu.Unlock()
		s.events.SessionError(domain.ErrorCodeValidation, "Please enter a title for your website")
		return domain.SavedWebsite{}, domain.Validation("title is required")
	}

	draft := domain.WebsiteDraft{
		Title:       title,
		Description: s.generated.Description,
		HTMLContent: s.result.HTML,
	}
	s.title = title
	s.state = domain.GenerationSaving
	s.message = ""
	s.mu.Unlock()

	s.events.GenerationStateChanged(domain.GenerationSaving, domain.ReasonSaving)
	s.logger.Info("saving website", "title", title)

	site, err := s.catalog.Save(ctx, draft)
	if err != nil {
		s.mu.Lock()
		s.state = domain.GenerationReady
		s.message = "Failed to save website: " + err.Error()
		message := s.message
		s.mu.Unlock()

		s.logger.Warn("save failed", "error", err)
		s.events.GenerationStateChanged(domain.GenerationSaveFailed, domain.ReasonSaveFailed)
		s.events.SessionError(domain.ErrorCodeSave, message)
		s.events.GenerationStateChanged(domain.GenerationReady, domain.ReasonReadyForSave)
		return domain.SavedWebsite{}, err
	}

	s.events.GenerationStateChanged(domain.GenerationSaved, domain.ReasonWebsiteSaved)
	s.events.WebsiteSaved(site, ShareURL(s.publicOrigin, site.PermanentURL))
	s.catalog.Refresh(ctx)

	s.mu.Lock()
	s.state = domain.GenerationReady
	s.mu.Unlock()

	s.events.GenerationStateChanged(domain.GenerationReady, domain.ReasonReadyForSave)
	return site, nil
}

// State returns the current lifecycle state.
func (s *GenerationSession) State() domain.GenerationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request returns a copy of the pending request.
func (s *GenerationSession) Request() domain.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Clone()
}

// Result returns the current generation result, if any.
func (s *GenerationSession) Result() (domain.GenerationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.GenerationResult{}, false
	}
	return *s.result, true
}

// Title returns the title the next save will default to.
func (s *GenerationSession) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Status summarizes the session for display.
func (s *GenerationSession) Status() domain.GenerationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.GenerationStatus{
		State:       s.state,
		Description: s.pending.Description,
		Images:      len(s.pending.Images),
		Title:       s.title,
		HasResult:   s.result != nil,
		Message:     s.message,
	}
}

func (s *GenerationSession) inFlightLocked() bool {
	return s.state == domain.GenerationSubmitting || s.state == domain.GenerationSaving
}

// DefaultTitle is the first three words of description.
func DefaultTitle(description string) string {
	words := strings.Fields(description)
	if len(words) > defaultTitleWords {
		words = words[:defaultTitleWords]
	}
	return strings.Join(words, " ")
}

// ShareURL resolves a catalog permanent URL against the public origin.
func ShareURL(origin, permanent string) string {
	if permanent == "" {
		return ""
	}
	ref, err := url.Parse(permanent)
	if err != nil || ref.IsAbs() {
		return permanent
	}
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || base.Host == "" {
		return permanent
	}
	return base.ResolveReference(ref).String()
}

package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"sitegen/internal/domain"
	"sitegen/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	err      error
	acquires int
	device   *fakeAudioDevice
}

func (f *fakeAudioCapture) Acquire(_ context.Context, _ ports.AudioConfig) (ports.AudioDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.err != nil {
		return nil, f.err
	}
	if f.device == nil {
		f.device = &fakeAudioDevice{}
	}
	return f.device, nil
}

func (f *fakeAudioCapture) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeAudioCapture) acquireCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

type fakeAudioDevice struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	released int
}

func (f *fakeAudioDevice) Record(_ context.Context) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeAudioSession()
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeAudioDevice) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func (f *fakeAudioDevice) current() *fakeAudioSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeAudioDevice) releaseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// fakeAudioSession blocks in Read until a chunk is pushed or Stop is called.
type fakeAudioSession struct {
	chunks  chan []byte
	stopped chan struct{}
	once    sync.Once
}

func newFakeAudioSession() *fakeAudioSession {
	return &fakeAudioSession{
		chunks:  make(chan []byte, 16),
		stopped: make(chan struct{}),
	}
}

func (f *fakeAudioSession) push(chunk []byte) {
	f.chunks <- chunk
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	select {
	case chunk := <-f.chunks:
		return copy(p, chunk), nil
	case <-f.stopped:
		select {
		case chunk := <-f.chunks:
			return copy(p, chunk), nil
		default:
			return 0, io.EOF
		}
	}
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.once.Do(func() { close(f.stopped) })
	return nil
}

type fakeFrameSink struct {
	mu     sync.Mutex
	frames []domain.AudioFrame
	err    error
}

func (f *fakeFrameSink) Send(frame domain.AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append(domain.AudioFrame(nil), frame...))
	return f.err
}

func (f *fakeFrameSink) sends() []domain.AudioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AudioFrame(nil), f.frames...)
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// tick blocks until the pipeline has received the tick.
func (m *manualTicker) tick() {
	m.c <- time.Now()
}

type fakeChannel struct {
	fakeFrameSink

	mu       sync.Mutex
	listener ports.ChannelListener
	state    domain.ConnectionState
	closes   int
}

func (f *fakeChannel) State() domain.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.state = domain.ConnectionClosed
	return nil
}

func (f *fakeChannel) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeDialer struct {
	channel *fakeChannel
}

func (f *fakeDialer) Open(_ context.Context, listener ports.ChannelListener) ports.TranscriptionChannel {
	f.channel = &fakeChannel{listener: listener, state: domain.ConnectionConnecting}
	return f.channel
}

type fakeRules struct {
	replace map[string]string
	err     error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type fakeTarget struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTarget) AppendTranscription(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeTarget) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []domain.GenerationRequest
	result  domain.GenerationResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Clone())
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.GenerationResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeGenerator) requests() []domain.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.GenerationRequest(nil), f.calls...)
}

// fakeStore is an in-memory catalog service.
type fakeStore struct {
	mu        sync.Mutex
	sites     []domain.SavedWebsite
	drafts    []domain.WebsiteDraft
	createErr error
	listErr   error
	lists     int
}

func (f *fakeStore) List(_ context.Context) ([]domain.SavedWebsite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.SavedWebsite(nil), f.sites...), nil
}

func (f *fakeStore) Create(_ context.Context, draft domain.WebsiteDraft) (domain.SavedWebsite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	if f.createErr != nil {
		return domain.SavedWebsite{}, f.createErr
	}
	slug := slugFor(draft.Title)
	site := domain.SavedWebsite{
		Title:        draft.Title,
		Description:  draft.Description,
		URLSlug:      slug,
		PermanentURL: "/sites/" + slug,
	}
	f.sites = append(f.sites, site)
	return site, nil
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func slugFor(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

type fakeEventSink struct {
	mu sync.Mutex

	states       []stateEvent
	descriptions []string
	voice        []domain.VoiceStatus
	catalogs     [][]domain.SavedWebsite
	saved        []savedEvent
	errors       []errEvent
}

type stateEvent struct {
	state  domain.GenerationState
	reason domain.GenerationReason
}

type savedEvent struct {
	site     domain.SavedWebsite
	shareURL string
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) GenerationStateChanged(state domain.GenerationState, reason domain.GenerationReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) DescriptionChanged(description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptions = append(f.descriptions, description)
}

func (f *fakeEventSink) VoiceStateChanged(status domain.VoiceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = append(f.voice, status)
}

func (f *fakeEventSink) CatalogRefreshed(sites []domain.SavedWebsite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogs = append(f.catalogs, sites)
}

func (f *fakeEventSink) WebsiteSaved(site domain.SavedWebsite, shareURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedEvent{site: site, shareURL: shareURL})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotVoice() []domain.VoiceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.VoiceStatus(nil), f.voice...)
}

func (f *fakeEventSink) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states) + len(f.descriptions) + len(f.voice) + len(f.catalogs) + len(f.saved) + len(f.errors)
}

var errFake = errors.New("fake failure")

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

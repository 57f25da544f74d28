package domain

// ConnectionState models the transcription channel lifecycle.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClosed     ConnectionState = "closed"
	ConnectionErrored    ConnectionState = "errored"
)

// RecordingState models the microphone recorder lifecycle.
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingRecording RecordingState = "recording"
)

// GenerationState models the compose/submit/save lifecycle.
type GenerationState string

const (
	GenerationIdle       GenerationState = "idle"
	GenerationSubmitting GenerationState = "submitting"
	GenerationReady      GenerationState = "ready"
	GenerationFailed     GenerationState = "failed"
	GenerationSaving     GenerationState = "saving"
	GenerationSaved      GenerationState = "saved"
	GenerationSaveFailed GenerationState = "save_failed"
)

// GenerationReason provides a structured reason for generation state transitions.
type GenerationReason string

const (
	ReasonSessionStarted    GenerationReason = "session_started"
	ReasonGenerating        GenerationReason = "generating"
	ReasonWebsiteGenerated  GenerationReason = "website_generated"
	ReasonGenerationFailed  GenerationReason = "generation_failed"
	ReasonMalformedResponse GenerationReason = "malformed_response"
	ReasonSaving            GenerationReason = "saving"
	ReasonWebsiteSaved      GenerationReason = "website_saved"
	ReasonSaveFailed        GenerationReason = "save_failed"
	ReasonReadyForSave      GenerationReason = "ready_for_save"
)

// ErrorCode identifies user-facing errors reported through the event sink.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeValidation ErrorCode = "validation"
	ErrorCodeConflict   ErrorCode = "conflict"
	ErrorCodeGeneration ErrorCode = "generation"
	ErrorCodeSave       ErrorCode = "save"
	ErrorCodeMicrophone ErrorCode = "microphone"
	ErrorCodeConnection ErrorCode = "connection"
	ErrorCodePreview    ErrorCode = "preview"
)

// Image is one inspiration image attached to a generation request.
type Image struct {
	Name string
	Data []byte
}

// GenerationRequest is the pending description plus attachments.
type GenerationRequest struct {
	Description string
	Images      []Image
}

// Clone returns a deep copy so an in-flight request cannot be mutated.
func (r GenerationRequest) Clone() GenerationRequest {
	out := GenerationRequest{Description: r.Description}
	if len(r.Images) > 0 {
		out.Images = make([]Image, len(r.Images))
		for i, img := range r.Images {
			out.Images[i] = Image{Name: img.Name, Data: append([]byte(nil), img.Data...)}
		}
	}
	return out
}

// GenerationResult is the HTML returned by the generation collaborator.
type GenerationResult struct {
	HTML string `json:"html"`
}

// WebsiteDraft is what gets submitted to the catalog on save.
type WebsiteDraft struct {
	Title       string
	Description string
	HTMLContent string
}

// SavedWebsite is an immutable snapshot stored by the catalog service.
type SavedWebsite struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	HTMLContent  string `json:"html_content,omitempty"`
	URLSlug      string `json:"url_slug"`
	PermanentURL string `json:"permanent_url"`
}

// AudioFrame is one chunk of encoded audio handed from capture to the channel.
type AudioFrame []byte

// TranscriptionEvent carries transcribed text received on the channel.
type TranscriptionEvent struct {
	Text string `json:"transcription"`
}

// VoiceStatus summarizes one voice session.
type VoiceStatus struct {
	Connection          ConnectionState `json:"connectionState"`
	Recording           RecordingState  `json:"recordingState"`
	PendingErrorMessage string          `json:"pendingErrorMessage,omitempty"`
}

// GenerationStatus summarizes one generation session.
type GenerationStatus struct {
	State       GenerationState `json:"state"`
	Description string          `json:"description"`
	Images      int             `json:"images"`
	Title       string          `json:"title,omitempty"`
	HasResult   bool            `json:"hasResult"`
	Message     string          `json:"message,omitempty"`
}

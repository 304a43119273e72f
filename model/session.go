package model

import "time"

// Step identifies a position in the visualization flow. The forward chain is
// upload → select_product → configure → simulate → result; admin sits to the
// side and is reachable from any non-loading step.
type Step string

const (
	StepUpload        Step = "upload"
	StepSelectProduct Step = "select_product"
	StepConfigure     Step = "configure"
	StepSimulate      Step = "simulate"
	StepResult        Step = "result"
	StepAdmin         Step = "admin"
)

// SimulationMode selects between explicit catalog configuration and an
// AI-suggested styling.
type SimulationMode string

const (
	ModeManual    SimulationMode = "manual"
	ModeAutomatic SimulationMode = "automatic"
)

// ResultView is the day/night toggle on the result screen.
type ResultView string

const (
	ResultViewDay   ResultView = "day"
	ResultViewNight ResultView = "night"
)

// ManualSelection is a cursor into the catalog: a root-to-leaf path of
// company, product, and color IDs for the session's current product type.
// A nil selection means the catalog bucket for that product type is empty.
type ManualSelection struct {
	CompanyID string `json:"company_id"`
	ProductID string `json:"product_id"`
	ColorID   string `json:"color_id"`
}

// UploadedImage is the user's window photo. It lives for one session and is
// discarded on reset.
type UploadedImage struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
	Filename string `json:"filename"`
}

// SimulationResult holds the outputs of a completed run. Absent image fields
// mean the frontend falls back to showing the original upload.
type SimulationResult struct {
	DayImage           []byte `json:"day_image,omitempty"`
	NightImage         []byte `json:"night_image,omitempty"`
	RecommendationText string `json:"recommendation_text,omitempty"`
}

// Session is the single mutable aggregate for one user's flow through the
// app. It is owned by the session engine; all mutation goes through engine
// methods so the single-writer property holds.
type Session struct {
	ID           string            `json:"id"`
	Step         Step              `json:"step"`
	ProductType  ProductType       `json:"product_type,omitempty"`
	CurtainStyle CurtainStyle      `json:"curtain_style,omitempty"`
	Mode         SimulationMode    `json:"mode,omitempty"`
	Selection    *ManualSelection  `json:"selection,omitempty"`
	Image        *UploadedImage    `json:"image,omitempty"`
	Result       *SimulationResult `json:"result,omitempty"`
	ResultView   ResultView        `json:"result_view,omitempty"`

	Loading      bool   `json:"loading"`
	StageLabel   string `json:"stage_label,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionEvent is one entry in a session's audit trail.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Step      Step      `json:"step"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionDescriptor is the transport-facing view of a session. Image and
// result payloads are summarized as presence flags so the descriptor stays
// small; the frontend fetches image bytes separately.
type SessionDescriptor struct {
	ID           string           `json:"id"`
	Step         Step             `json:"step"`
	ProductType  ProductType      `json:"product_type,omitempty"`
	CurtainStyle CurtainStyle     `json:"curtain_style,omitempty"`
	Mode         SimulationMode   `json:"mode,omitempty"`
	Selection    *ManualSelection `json:"selection,omitempty"`
	HasImage     bool             `json:"has_image"`
	HasResult    bool             `json:"has_result"`
	HasDayImage  bool             `json:"has_day_image"`
	HasNightImage bool            `json:"has_night_image"`
	Recommendation string         `json:"recommendation,omitempty"`
	ResultView   ResultView       `json:"result_view,omitempty"`
	Loading      bool             `json:"loading"`
	StageLabel   string           `json:"stage_label,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	History      []HistoryEntry   `json:"history,omitempty"`
}

// HistoryEntry is one audit event rendered for the frontend.
type HistoryEntry struct {
	Step      Step   `json:"step"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Profile is the cached identity of the logged-in user
type Profile struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       Role      `json:"role,omitempty"`
	Language   string    `json:"language,omitempty"`
	Location   *Location `json:"location,omitempty"`
	Settings   *Settings `json:"settings,omitempty"`
	IsActive   bool      `json:"is_active,omitempty"`
	IsVerified bool      `json:"is_verified,omitempty"`
	CreatedAt  Timestamp `json:"created_at,omitempty"`
}

// Role is the account role assigned by the backend
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// Location is a free-form farm address with optional coordinates
type Location struct {
	Address   string  `json:"address,omitempty"`
	Village   string  `json:"village,omitempty"`
	District  string  `json:"district,omitempty"`
	State     string  `json:"state,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
}

// Settings holds per-user preferences stored server-side
type Settings struct {
	Notifications *NotificationSettings `json:"notifications,omitempty"`
}

// NotificationSettings toggles the notification channels
type NotificationSettings struct {
	Push         bool `json:"push"`
	WeeklyReport bool `json:"weeklyReport"`
	Email        bool `json:"email"`
}

// DefaultNotificationSettings mirrors the backend defaults for new accounts
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{Push: true, WeeklyReport: false, Email: true}
}

// AuthResponse is returned by login, register, federated login and refresh
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Profile extracts the identity fields carried alongside the token
func (a *AuthResponse) Profile() *Profile {
	return &Profile{
		ID:       a.UserID,
		Name:     a.Name,
		Email:    a.Email,
		Phone:    a.Phone,
		Role:     a.Role,
		Language: a.Language,
	}
}

// Registration is the payload of POST /auth/register.
// Email carries the identifier, which may be an email or a phone number.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Language string `json:"language,omitempty"`
}

// Validate checks the fields the backend rejects outright
func (r *Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Email == "" {
		return fmt.Errorf("email or phone is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// ProfileUpdate is a partial profile for PUT /users/me.
// Nil fields are omitted from the request and left untouched server-side.
type ProfileUpdate struct {
	Name     *string        `json:"name,omitempty"`
	Phone    *string        `json:"phone,omitempty"`
	Language *string        `json:"language,omitempty"`
	Password *string        `json:"password,omitempty"`
	Location *Location      `json:"location,omitempty"`
	Settings *Settings      `json:"settings,omitempty"`
	Extra    map[string]any `json:"-"`
}

// MarshalJSON flattens Extra next to the typed fields
func (u ProfileUpdate) MarshalJSON() ([]byte, error) {
	type plain ProfileUpdate
	data, err := json.Marshal(plain(u))
	if err != nil || len(u.Extra) == 0 {
		return data, err
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range u.Extra {
		if _, typed := fields[k]; !typed {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// IsEmpty reports whether the update carries no fields
func (u *ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.Language == nil && u.Password == nil &&
		u.Location == nil && u.Settings == nil && len(u.Extra) == 0
}

// MergeProfile shallow-merges the top-level keys present in patch over prev.
// Keys absent from patch keep their previous values.
func MergeProfile(prev *Profile, patch []byte) (*Profile, error) {
	base := make(map[string]json.RawMessage)
	if prev != nil {
		data, err := json.Marshal(prev)
		if err != nil {
			return nil, fmt.Errorf("failed to encode profile: %w", err)
		}
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("failed to decode profile update: %w", err)
	}
	for k, v := range overlay {
		base[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged profile: %w", err)
	}
	var merged Profile
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode merged profile: %w", err)
	}
	return &merged, nil
}

// AnalyticsSnapshot is the read-only aggregate behind the analytics view.
// Each fetch replaces the previous snapshot entirely.
type AnalyticsSnapshot struct {
	SoilTrends     []SoilTrend    `json:"soil_trends"`
	DiseaseStats   []DiseaseStat  `json:"disease_stats"`
	RecentActivity []ActivityItem `json:"recent_activity"`
}

// SoilTrend is one point of the nutrient trend chart
type SoilTrend struct {
	Date       string  `json:"date"`
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
	PH         float64 `json:"ph"`
}

// DiseaseStat counts leaf scans per detected disease
type DiseaseStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ActivityItem is one entry of the recent activity feed
type ActivityItem struct {
	Type       string    `json:"type"`
	Date       Timestamp `json:"date"`
	Crop       string    `json:"crop"`
	Result     string    `json:"result"`
	Confidence string    `json:"confidence"`
	Status     string    `json:"status"`
	Image      string    `json:"image,omitempty"`
}

// SoilReading is the latest sample reported by a field sensor node
type SoilReading struct {
	ID          string    `json:"id,omitempty"`
	NodeID      string    `json:"node_id"`
	Timestamp   Timestamp `json:"timestamp"`
	Nitrogen    int       `json:"nitrogen"`
	Phosphorus  int       `json:"phosphorus"`
	Potassium   int       `json:"potassium"`
	PH          float64   `json:"ph"`
	Moisture    float64   `json:"moisture"`
	Temperature float64   `json:"temperature"`
	EC          float64   `json:"ec"`
}

// Sample converts a sensor reading into an analysis input.
// Sensors do not measure rainfall, so the default is used.
func (r *SoilReading) Sample() SoilSample {
	return SoilSample{
		Nitrogen:    r.Nitrogen,
		Phosphorus:  r.Phosphorus,
		Potassium:   r.Potassium,
		PH:          r.PH,
		Moisture:    r.Moisture,
		Temperature: r.Temperature,
		Rainfall:    DefaultSensorRainfall,
	}
}

// DefaultSensorRainfall is assumed when a sample comes from a sensor
const DefaultSensorRainfall = 100.0

// SoilSample is the payload of POST /analysis/soil/analyze
type SoilSample struct {
	Nitrogen    int     `json:"nitrogen"`
	Phosphorus  int     `json:"phosphorus"`
	Potassium   int     `json:"potassium"`
	PH          float64 `json:"ph"`
	Moisture    float64 `json:"moisture"`
	Temperature float64 `json:"temperature"`
	Rainfall    float64 `json:"rainfall"`
}

// Validate rejects readings outside the physical range of the sensors
func (s *SoilSample) Validate() error {
	if s.Nitrogen < 0 || s.Phosphorus < 0 || s.Potassium < 0 {
		return fmt.Errorf("nutrient values must be non-negative")
	}
	if s.PH < 0 || s.PH > 14 {
		return fmt.Errorf("ph must be between 0 and 14, got %.1f", s.PH)
	}
	if s.Moisture < 0 || s.Moisture > 100 {
		return fmt.Errorf("moisture must be between 0 and 100, got %.1f", s.Moisture)
	}
	if s.Rainfall < 0 {
		return fmt.Errorf("rainfall must be non-negative")
	}
	return nil
}

// SoilAnalysis is the health assessment returned for a soil sample
type SoilAnalysis struct {
	HealthStatus    string     `json:"health_status"`
	HealthScore     float64    `json:"health_score"`
	RecommendedCrop string     `json:"recommended_crop"`
	Recommendations []string   `json:"recommendations"`
	InputData       SoilSample `json:"input_data"`
}

// DiseaseResult is the outcome of a leaf image analysis
type DiseaseResult struct {
	Disease    string         `json:"disease"`
	Confidence float64        `json:"confidence"`
	Severity   string         `json:"severity"`
	Treatment  map[string]any `json:"treatment"`
	ReportID   string         `json:"report_id,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
}

// Healthy reports whether the detected class is a healthy leaf
func (d *DiseaseResult) Healthy() bool {
	return containsFold(d.Disease, "healthy")
}

// RootDiagnosis is the outcome of a root image analysis
type RootDiagnosis struct {
	Status         string `json:"status"`
	Diagnosis      string `json:"diagnosis"`
	Recommendation string `json:"recommendation"`
}

// AnalysisRecord is one entry of the scan history
type AnalysisRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Result     string         `json:"result"`
	Status     string         `json:"status"`
	Date       Timestamp      `json:"date"`
	Image      string         `json:"image,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Treatment  map[string]any `json:"treatment,omitempty"`
}

// SimilarCase is a nearby scan with the same detected disease
type SimilarCase struct {
	ID       string    `json:"id"`
	Disease  string    `json:"disease"`
	Location string    `json:"location"`
	Image    string    `json:"image"`
	Date     Timestamp `json:"date"`
}

// ChatRole identifies the author of a chat message
type ChatRole string

const (
	ChatRoleUser ChatRole = "user"
	ChatRoleBot  ChatRole = "bot"
)

// ChatMessage is one turn of the assistant conversation
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      ChatRole  `json:"role"`
	Message   string    `json:"message"`
	CreatedAt Timestamp `json:"created_at,omitempty"`
}

// ChatReply is the assistant answer to a single message
type ChatReply struct {
	Reply    string `json:"reply"`
	Language string `json:"language"`
}

// PaymentMethod selects how a soil test booking is paid
type PaymentMethod string

const (
	PaymentPayLater PaymentMethod = "pay_later"
	PaymentUPI      PaymentMethod = "upi"
)

// Booking is the payload of POST /appointments/book_direct
type Booking struct {
	Name          string        `json:"name"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	Date          string        `json:"date"` // ISO-8601, parsed server-side
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// Validate checks required contact fields and the date format
func (b *Booking) Validate() error {
	if b.Name == "" || b.Phone == "" || b.Address == "" {
		return fmt.Errorf("name, phone and address are required")
	}
	if _, err := ParseBookingDate(b.Date); err != nil {
		return err
	}
	switch b.PaymentMethod {
	case PaymentPayLater, PaymentUPI:
	default:
		return fmt.Errorf("unsupported payment method: %q", b.PaymentMethod)
	}
	return nil
}

// ParseBookingDate accepts a date or a full timestamp
func ParseBookingDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid booking date %q, expected YYYY-MM-DD", s)
}

// BookingResult acknowledges a created appointment
type BookingResult struct {
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id"`
}

// AppointmentStatus is the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked soil test visit
type Appointment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Phone     string            `json:"phone"`
	Address   string            `json:"address"`
	Date      Timestamp         `json:"date"`
	Amount    float64           `json:"amount"`
	PaymentID string            `json:"payment_id,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt Timestamp         `json:"created_at"`
}

// PaymentConfig carries the public key of the payment provider
type PaymentConfig struct {
	Key string `json:"key"`
}

// Order is a payment order created by the backend on the provider
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// PaymentVerification confirms a completed provider checkout
type PaymentVerification struct {
	OrderID            string  `json:"razorpay_order_id"`
	PaymentID          string  `json:"razorpay_payment_id"`
	Signature          string  `json:"razorpay_signature"`
	AppointmentDetails Booking `json:"appointment_details"`
}

// SupportTicket is the payload of POST /support/ticket
type SupportTicket struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// TicketResult acknowledges a submitted support ticket
type TicketResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
}

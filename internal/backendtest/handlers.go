package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/agrilo/pkg/types"
)

func (s *Server) authResponse(w http.ResponseWriter, acct *Account) {
	s.mu.Lock()
	access := s.issueAccessLocked(acct.Profile.Email)
	refresh := s.issueRefreshLocked(acct.Profile.Email)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, types.AuthResponse{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      acct.Profile.ID,
		Name:        acct.Profile.Name,
		Email:       acct.Profile.Email,
		Phone:       acct.Profile.Phone,
		Role:        acct.Profile.Role,
		Language:    acct.Profile.Language,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.PostForm.Get("username")))

	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()

	if !ok || acct.Password != r.PostForm.Get("password") {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	s.authResponse(w, acct)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg types.Registration
	if err := decode(r, &reg); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(reg.Email))

	s.mu.Lock()
	_, exists := s.accounts[email]
	s.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	s.AddAccount(email, reg.Password, reg.Name)
	s.mu.Lock()
	acct := s.accounts[email]
	acct.Profile.Phone = reg.Phone
	if reg.Language != "" {
		acct.Profile.Language = reg.Language
	}
	s.mu.Unlock()

	s.authResponse(w, acct)
}

func (s *Server) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := decode(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	acct := s.accounts[s.federated[body.IDToken]]
	s.mu.Unlock()
	if acct == nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid Firebase token")
		return
	}
	s.authResponse(w, acct)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay, fail := s.refreshDelay, s.failRefresh
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Refresh token missing")
		return
	}

	s.mu.Lock()
	email, ok := s.refresh[cookie.Value]
	acct := s.accounts[email]
	s.mu.Unlock()

	if fail || !ok || acct == nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mu.Lock()
	access := s.issueAccessLocked(email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, types.AuthResponse{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      acct.Profile.ID,
		Name:        acct.Profile.Name,
		Email:       acct.Profile.Email,
		Role:        acct.Profile.Role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refresh, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct := s.currentAccount(r)
	s.mu.Lock()
	profile := acct.Profile
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	delete(fields, "password")

	acct := s.currentAccount(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := types.MergeProfile(&acct.Profile, data)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	acct.Profile = *merged

	if s.partialUpdates {
		writeJSON(w, http.StatusOK, fields)
		return
	}
	writeJSON(w, http.StatusOK, acct.Profile)
}

func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func (s *Server) handleAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 10)
	s.mu.Lock()
	out := make([]types.AnalysisRecord, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	disease := r.URL.Query().Get("disease")
	s.mu.Lock()
	out := make([]types.SimilarCase, 0)
	for _, c := range s.similar {
		if c.Disease == disease {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	return data, header.Header.Get("Content-Type"), err
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "file"}, "msg": "Field required", "type": "missing"}},
		})
		return
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("scan-%d", s.seq)
	s.history = append(s.history, types.AnalysisRecord{
		ID:     id,
		Type:   "leaf",
		Title:  "Leaf Analysis",
		Result: "Tomato Early Blight",
		Status: "warning",
		Date:   types.Timestamp{Time: time.Now().UTC()},
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": types.DiseaseResult{
			Disease:    "Tomato Early Blight",
			Confidence: 91.5,
			Severity:   "Medium",
			Treatment:  map[string]any{"bytes": len(data), "content_type": contentType},
			ReportID:   id,
		},
	})
}

func (s *Server) handleRootAnalyze(w http.ResponseWriter, r *http.Request) {
	if _, _, err := readUpload(r); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.RootDiagnosis{
		Status:         "success",
		Diagnosis:      "Root Rot",
		Recommendation: "Improve drainage and reduce irrigation",
	})
}

func (s *Server) handleSoilAnalyze(w http.ResponseWriter, r *http.Request) {
	var sample types.SoilSample
	if err := decode(r, &sample); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	status, score := "Good", 85.0
	var recs []string
	if sample.Nitrogen < 50 {
		status, score = "Needs Attention", 60
		recs = append(recs, "Nitrogen is low. Add Urea or compost.")
	}
	if sample.PH < 6.0 {
		recs = append(recs, "Soil is acidic. Add lime.")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": types.SoilAnalysis{
			HealthStatus:    status,
			HealthScore:     score,
			RecommendedCrop: "rice",
			Recommendations: recs,
			InputData:       sample,
		},
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook := s.analyticsHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	snapshot := s.analytics
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSoilLatest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.soil) == 0 {
		writeDetail(w, http.StatusNotFound, "No sensor data found")
		return
	}
	writeJSON(w, http.StatusOK, s.soil[len(s.soil)-1])
}

func (s *Server) handleSoilHistory(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20)
	s.mu.Lock()
	out := make([]types.SoilReading, 0, limit)
	for i := len(s.soil) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.soil[i])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message  string `json:"message"`
		Language string `json:"language"`
	}
	if err := decode(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	reply := "Water early in the morning."
	if body.Language == "hi" {
		reply = "सुबह जल्दी पानी दें।"
	}

	now := types.Timestamp{Time: time.Now().UTC()}
	s.mu.Lock()
	s.chat = append(s.chat,
		types.ChatMessage{Role: types.ChatRoleUser, Message: body.Message, CreatedAt: now},
		types.ChatMessage{Role: types.ChatRoleBot, Message: reply, CreatedAt: now},
	)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, types.ChatReply{Reply: reply, Language: body.Language})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]types.ChatMessage{}, s.chat...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePaymentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.PaymentConfig{Key: "rzp_test_key"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	if err := decode(r, &body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("order_%d", s.seq)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, types.Order{
		ID:       id,
		Amount:   int64(body.Amount * 100),
		Currency: body.Currency,
		Status:   "created",
	})
}

func (s *Server) book(w http.ResponseWriter, booking types.Booking, amount float64, orderID, paymentID string, status types.AppointmentStatus) {
	date, err := types.ParseBookingDate(booking.Date)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.seq++
	appt := types.Appointment{
		ID:        fmt.Sprintf("appt-%d", s.seq),
		Name:      booking.Name,
		Phone:     booking.Phone,
		Address:   booking.Address,
		Date:      types.Timestamp{Time: date},
		Amount:    amount,
		OrderID:   orderID,
		PaymentID: paymentID,
		Status:    status,
		CreatedAt: types.Timestamp{Time: time.Now().UTC()},
	}
	s.appointments = append(s.appointments, appt)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, types.BookingResult{Status: "success", AppointmentID: appt.ID})
}

func (s *Server) handleBookDirect(w http.ResponseWriter, r *http.Request) {
	var booking types.Booking
	if err := decode(r, &booking); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.book(w, booking, 199, "pay_later", "pay_later", types.AppointmentPending)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var v types.PaymentVerification
	if err := decode(r, &v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if v.Signature != "valid" {
		writeDetail(w, http.StatusBadRequest, "Payment verification failed")
		return
	}
	s.book(w, v.AppointmentDetails, 199, v.OrderID, v.PaymentID, types.AppointmentConfirmed)
}

func (s *Server) handleMyAppointments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]types.Appointment, 0, len(s.appointments))
	for i := len(s.appointments) - 1; i >= 0; i-- {
		out = append(out, s.appointments[i])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	var ticket types.SupportTicket
	if err := decode(r, &ticket); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	s.tickets = append(s.tickets, ticket)
	s.seq++
	id := fmt.Sprintf("ticket-%d", s.seq)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, types.TicketResult{
		Status:   "success",
		Message:  "Ticket submitted successfully",
		TicketID: id,
	})
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/septivank/solar-dashboard/internal/auth"
	"github.com/septivank/solar-dashboard/internal/customers"
	"github.com/septivank/solar-dashboard/internal/logging"
	"github.com/septivank/solar-dashboard/internal/metrics"
	"github.com/septivank/solar-dashboard/internal/readings"
	"go.uber.org/zap"
)

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Solar Dashboard - Login</title></head>
<body>
<form method="post" action="/login">
<label>Username <input type="text" name="username" autofocus></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Log in</button>
</form>
</body>
</html>
`

func (s *Server) log(r *http.Request) *zap.Logger {
	return logging.FromContext(r.Context(), s.logger)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, auth.LoginPath, http.StatusFound)
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Authenticate(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(loginPage))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		metrics.AuthFailures.WithLabelValues("throttled").Inc()
		http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	username := r.PostForm.Get("username")
	if !s.credentials.Verify(username, r.PostForm.Get("password")) {
		metrics.AuthFailures.WithLabelValues("credentials").Inc()
		s.log(r).Warn("Login failed", zap.String("username", username))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := s.sessions.Login(w, r, username); err != nil {
		s.log(r).Error("Failed to issue session", zap.Error(err))
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	s.log(r).Info("Login succeeded", zap.String("username", username))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, auth.LoginPath, http.StatusFound)
}

type dashboardResponse struct {
	User        string `json:"user"`
	Customers   int    `json:"customers"`
	NewThisWeek int    `json:"new_this_week"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.PrincipalFromContext(r.Context())

	list, err := s.customers.List(r.Context())
	if err != nil {
		s.log(r).Error("Failed to list customers", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Failed to load dashboard.")
		return
	}

	fresh, err := s.customers.CountNewThisWeek(r.Context())
	if err != nil {
		s.log(r).Error("Failed to count new customers", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Failed to load dashboard.")
		return
	}

	s.writeJSON(w, r, http.StatusOK, dashboardResponse{
		User:        user,
		Customers:   len(list),
		NewThisWeek: fresh,
	})
}

func (s *Server) listCustomerIdentifiers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.identifiers.Identifiers(r.Context())
	if err != nil {
		s.log(r).Error("Failed to list customer identifiers", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch customers from database.")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, r, http.StatusOK, ids)
}

func (s *Server) listCustomerSummaries(w http.ResponseWriter, r *http.Request) {
	list, err := s.customers.ListSummaries(r.Context())
	if err != nil {
		s.log(r).Error("Failed to list customers", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch customers from database.")
		return
	}
	s.writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) registerCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := r.PostForm
	in := customers.NewCustomer{
		Code:    form.Get("code"),
		Name:    form.Get("name"),
		Address: form.Get("address"),
		Brand:   form.Get("brand"),
		Email:   form.Get("email"),
		Phone:   form.Get("phone"),
		Status:  form.Get("status"),
	}

	if raw := strings.TrimSpace(form.Get("capacity")); raw != "" {
		capacity, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "capacity: must be a number", http.StatusBadRequest)
			return
		}
		in.CapacityKW = &capacity
	}

	created, err := s.customers.Create(r.Context(), in)
	if err != nil {
		var verr *customers.ValidationError
		switch {
		case errors.As(err, &verr):
			http.Error(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, customers.ErrDuplicateCode):
			http.Error(w, "Customer code already exists", http.StatusConflict)
		default:
			s.log(r).Error("Failed to register customer", zap.Error(err))
			http.Error(w, "Failed to register customer", http.StatusInternalServerError)
		}
		return
	}

	s.log(r).Info("Customer registered via dashboard",
		zap.Int64("customer_id", created.ID),
		zap.String("code", created.Code),
	)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) dailyReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customer := q.Get("customer_id")
	if customer == "" {
		customer = q.Get("customer_code")
	}
	rawYear, rawMonth := q.Get("year"), q.Get("month")

	if customer == "" || rawYear == "" || rawMonth == "" {
		s.writeError(w, r, http.StatusBadRequest, "Missing required parameters.")
		return
	}

	year, yerr := strconv.Atoi(rawYear)
	month, merr := strconv.Atoi(rawMonth)
	if yerr != nil || merr != nil || !readings.ValidPeriod(year, month) {
		s.writeError(w, r, http.StatusBadRequest, "Invalid year or month.")
		return
	}

	daily, err := s.readings.DailyFirst(r.Context(), customer, year, month)
	if err != nil {
		if errors.Is(err, readings.ErrInvalidPeriod) {
			s.writeError(w, r, http.StatusBadRequest, "Invalid year or month.")
			return
		}
		s.log(r).Error("Failed to fetch daily readings",
			zap.String("customer", customer),
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Error(err),
		)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to fetch daily readings from database.")
		return
	}

	s.writeJSON(w, r, http.StatusOK, daily)
}

func (s *Server) testDB(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.store.Ping(r.Context()); err != nil {
		s.log(r).Error("Database connectivity check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Database failed to connect."))
		return
	}
	w.Write([]byte("Database connected successfully."))
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log(r).Warn("Health check failed", zap.Error(err))
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

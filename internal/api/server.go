package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-igu/event-trading-website/internal/auth"
	"github.com/aman-igu/event-trading-website/internal/config"
	"github.com/aman-igu/event-trading-website/internal/exchange"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Team   string
	Role   string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	tokens   *auth.Manager
	exchange *exchange.Service
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, tokens *auth.Manager, exchangeSvc *exchange.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		tokens:   tokens,
		exchange: exchangeSvc,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/auth/me", s.handleMe)

			r.Route("/trading", func(r chi.Router) {
				r.Get("/stocks", s.handleStocksList)
				r.Post("/buy", s.handleBuy)
				r.Post("/sell", s.handleSell)
				r.Get("/portfolio", s.handlePortfolio)
				r.Get("/history", s.handleTradeHistory)
				r.Get("/settings", s.handleSettings)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireRole(exchange.RoleAdmin))
				r.Get("/dashboard", s.handleDashboard)

				r.Get("/teams", s.handleTeamsList)
				r.Post("/teams", s.handleCreateTeam)
				r.Post("/teams/members", s.handleAddTeamMember)
				r.Post("/teams/allocate", s.handleAllocate)

				r.Get("/users", s.handleUsersList)
				r.Put("/users/{userID}/balance", s.handleSetBalance)

				r.Post("/stocks", s.handleCreateStock)
				r.Put("/stocks/{stockID}/price", s.handleUpdateStockPrice)
				r.Delete("/stocks/{stockID}", s.handleDelistStock)

				r.Get("/cards", s.handleCardsList)
				r.Post("/cards", s.handleCreateCard)
				r.Post("/cards/{cardID}/activate", s.handleActivateCard)
				r.Delete("/cards/{cardID}", s.handleDeleteCard)

				r.Get("/trades", s.handleAllTrades)
				r.Put("/settings", s.handleUpdateSettings)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
			Team:   claims.Team,
			Role:   claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if user.Role != role {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Team     string `json:"team"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Team = strings.TrimSpace(in.Team)
	if in.Username == "" || in.Email == "" || in.Password == "" || in.Team == "" {
		writeError(w, http.StatusBadRequest, "username, email, password and team are required")
		return
	}
	if len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password")
		return
	}
	acct, err := s.exchange.CreateAccount(r.Context(), exchange.SignupInput{
		Username: in.Username,
		Email:    in.Email,
		Team:     in.Team,
		Role:     in.Role,
	}, hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := s.tokens.Issue(acct.ID, acct.Email, acct.Team, acct.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  acct.View(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := s.exchange.AccountByEmail(r.Context(), strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, exchange.ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !auth.CheckPassword(acct.PasswordHash, in.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, err := s.tokens.Issue(acct.ID, acct.Email, acct.Team, acct.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.exchange.RecordLogin(r.Context(), acct.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  acct.View(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	acct, err := s.exchange.AccountByID(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct.View()})
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	includeDelisted := r.URL.Query().Get("all") == "1"
	out, err := s.exchange.ListStocks(r.Context(), includeDelisted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stocks": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		StockID  int64 `json:"stockId"`
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.Buy(r.Context(), exchange.TradeInput{
		AccountID: user.UserID,
		StockID:   in.StockID,
		Quantity:  in.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		StockID  int64 `json:"stockId"`
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.Sell(r.Context(), exchange.TradeInput{
		AccountID: user.UserID,
		StockID:   in.StockID,
		Quantity:  in.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.exchange.Portfolio(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.exchange.TradeHistory(r.Context(), user.UserID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	out, err := s.exchange.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BuyEnabled  *bool `json:"buyEnabled"`
		SellEnabled *bool `json:"sellEnabled"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.UpdateSettings(r.Context(), in.BuyEnabled, in.SellEnabled)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.exchange.DashboardStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTeamsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.exchange.ListTeams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": out})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamName string `json:"teamName"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(in.TeamName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "teamName is required")
		return
	}
	exists, err := s.exchange.TeamExists(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "team already exists")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"teamName": name,
		"members":  []exchange.AccountView{},
	})
}

func (s *Server) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   string `json:"userId"`
		TeamName string `json:"teamName"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := s.exchange.AssignTeam(r.Context(), in.UserID, in.TeamName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct.View()})
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		TeamName         string          `json:"teamName"`
		TotalAmount      decimal.Decimal `json:"totalAmount"`
		DistributionType string          `json:"distributionType"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.AllocateTeamMoney(r.Context(), exchange.AllocateInput{
		TeamName:         in.TeamName,
		TotalAmount:      in.TotalAmount,
		DistributionType: in.DistributionType,
		ActorID:          user.UserID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	out, err := s.exchange.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := s.exchange.SetAccountBalance(r.Context(), chi.URLParam(r, "userID"), in.Balance)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct.View()})
}

func (s *Server) handleCreateStock(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Symbol      string          `json:"symbol"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"currentPrice"`
		Category    string          `json:"category"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.CreateStock(r.Context(), exchange.CreateStockInput{
		Symbol:      in.Symbol,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		CreatedBy:   user.UserID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stock": out})
}

func (s *Server) handleUpdateStockPrice(w http.ResponseWriter, r *http.Request) {
	stockID, err := strconv.ParseInt(chi.URLParam(r, "stockID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	var in struct {
		Price decimal.Decimal `json:"currentPrice"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.exchange.UpdateStockPrice(r.Context(), stockID, in.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": out})
}

func (s *Server) handleDelistStock(w http.ResponseWriter, r *http.Request) {
	stockID, err := strconv.ParseInt(chi.URLParam(r, "stockID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	if err := s.exchange.DelistStock(r.Context(), stockID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCardsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.exchange.ListCards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": out})
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		CardType    string `json:"cardType"`
		Modifiers   []struct {
			StockID       int64           `json:"stockId"`
			ChangeType    string          `json:"changeType"`
			ChangePercent decimal.Decimal `json:"changePercent"`
		} `json:"priceModifiers"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	modifiers := make([]exchange.CardModifierInput, 0, len(in.Modifiers))
	for _, m := range in.Modifiers {
		modifiers = append(modifiers, exchange.CardModifierInput{
			StockID:       m.StockID,
			ChangeType:    m.ChangeType,
			ChangePercent: m.ChangePercent,
		})
	}
	out, err := s.exchange.CreateCard(r.Context(), exchange.CreateCardInput{
		Name:        in.Name,
		Description: in.Description,
		CardType:    in.CardType,
		Modifiers:   modifiers,
		CreatedBy:   user.UserID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"card": out})
}

func (s *Server) handleActivateCard(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	cardID, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	out, err := s.exchange.ActivateCard(r.Context(), cardID, user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	if err := s.exchange.DeleteCard(r.Context(), cardID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAllTrades(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.exchange.AllTrades(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var fundsErr *exchange.InsufficientFundsError
	if errors.As(err, &fundsErr) {
		required, _ := fundsErr.Required.Round(2).Float64()
		available, _ := fundsErr.Available.Round(2).Float64()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     fundsErr.Error(),
			"required":  required,
			"available": available,
		})
		return
	}
	var sharesErr *exchange.InsufficientSharesError
	if errors.As(err, &sharesErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     sharesErr.Error(),
			"available": sharesErr.Available,
		})
		return
	}

	switch {
	case errors.Is(err, exchange.ErrInvalidInput),
		errors.Is(err, exchange.ErrStockUnavailable),
		errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrInsufficientShares):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exchange.ErrBuyingDisabled),
		errors.Is(err, exchange.ErrSellingDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, exchange.ErrAccountNotFound),
		errors.Is(err, exchange.ErrStockNotFound),
		errors.Is(err, exchange.ErrCardNotFound),
		errors.Is(err, exchange.ErrTeamEmpty):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exchange.ErrSymbolExists),
		errors.Is(err, exchange.ErrEmailExists),
		errors.Is(err, exchange.ErrCardAlreadyActive),
		errors.Is(err, exchange.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dkovalev/molotok/internal/adapters/cache"
	"github.com/dkovalev/molotok/internal/domain/auction"
	"github.com/dkovalev/molotok/pkg/auth"
)

// Handler exposes the engine over JSON/HTTP. It is a thin adapter: all
// rules live in the domain service; this layer maps identities, payloads
// and error taxonomy.
type Handler struct {
	service    *auction.Service
	livePrices *cache.LivePriceCache
	adminAuth  *auth.AdminAuthenticator
	logger     *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(service *auction.Service, livePrices *cache.LivePriceCache, adminAuth *auth.AdminAuthenticator, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		livePrices: livePrices,
		adminAuth:  adminAuth,
		logger:     logger,
	}
}

// Register mounts all routes. Bidder routes sit behind the token
// middleware; admin routes additionally require the admin role.
func (h *Handler) Register(mux *http.ServeMux, signer *auth.Signer) {
	authed := auth.Middleware(signer)

	mux.HandleFunc("POST /v1/auth/login", h.adminLogin)

	mux.Handle("GET /v1/auction", authed(http.HandlerFunc(h.getActiveAuction)))
	mux.Handle("GET /v1/auctions/{id}/bids", authed(http.HandlerFunc(h.listTopBids)))
	mux.Handle("POST /v1/auctions/{id}/bids", authed(http.HandlerFunc(h.placeBid)))
	mux.Handle("POST /v1/auctions/{id}/blitz", authed(http.HandlerFunc(h.buyBlitz)))

	admin := func(fn http.HandlerFunc) http.Handler {
		return authed(auth.RequireAdmin(fn))
	}
	mux.Handle("POST /v1/admin/auctions", admin(h.createAuction))
	mux.Handle("POST /v1/admin/auctions/{id}/close", admin(h.forceClose))
	mux.Handle("POST /v1/admin/auctions/{id}/winner", admin(h.selectWinner))
	mux.Handle("POST /v1/admin/auctions/{id}/cancel", admin(h.cancel))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, ttl, err := h.adminAuth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.writeErrorMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("Admin login failed", "error", err)
		h.writeErrorMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		ExpiresIn:   int64(ttl / time.Second),
	})
}

type auctionResponse struct {
	ID                   uuid.UUID `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	PhotoRef             string    `json:"photo_ref,omitempty"`
	StartPrice           int64     `json:"start_price"`
	MinStep              int64     `json:"min_step"`
	BlitzPrice           *int64    `json:"blitz_price,omitempty"`
	EndTime              time.Time `json:"end_time"`
	CooldownSeconds      int64     `json:"cooldown_seconds"`
	CooldownOffSeconds   int64     `json:"cooldown_off_before_end_seconds"`
	Status               string    `json:"status"`
	WinnerID             *int64    `json:"winner_id,omitempty"`
	FinalPrice           *int64    `json:"final_price,omitempty"`
	CurrentPrice         *int64    `json:"current_price,omitempty"`
	CurrentLeader        *int64    `json:"current_leader,omitempty"`
}

func toAuctionResponse(a *auction.Auction) auctionResponse {
	return auctionResponse{
		ID:                 a.ID,
		Title:              a.Title,
		Description:        a.Description,
		PhotoRef:           a.PhotoRef,
		StartPrice:         a.StartPrice,
		MinStep:            a.MinStep,
		BlitzPrice:         a.BlitzPrice,
		EndTime:            a.EndTime,
		CooldownSeconds:    int64(a.Cooldown / time.Second),
		CooldownOffSeconds: int64(a.CooldownOffBeforeEnd / time.Second),
		Status:             string(a.Status),
		WinnerID:           a.WinnerID,
		FinalPrice:         a.FinalPrice,
	}
}

func (h *Handler) getActiveAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetActiveAuction(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := toAuctionResponse(a)

	// Best-effort price snapshot; a miss just means the ledger has the
	// last word and the client sees start_price until the next bid.
	if snapshot, cacheErr := h.livePrices.Get(r.Context(), a.ID); cacheErr != nil {
		h.logger.Warn("Live price lookup failed", "error", cacheErr)
	} else if snapshot != nil {
		resp.CurrentPrice = &snapshot.CurrentPrice
		resp.CurrentLeader = snapshot.Leader
		resp.EndTime = snapshot.EndTime
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type bidResponse struct {
	BidID          uuid.UUID `json:"bid_id"`
	Amount         int64     `json:"amount"`
	CurrentPrice   int64     `json:"current_price"`
	PreviousLeader *int64    `json:"previous_leader,omitempty"`
	EndTime        time.Time `json:"end_time"`
	Extended       bool      `json:"extended"`
	Blitz          bool      `json:"blitz"`
}

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.PlaceBid(r.Context(), auction.PlaceBidCommand{
		AuctionID: auctionID,
		UserID:    auth.MustGetUserID(r.Context()),
		Amount:    req.Amount,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.refreshLivePrice(r, auctionID, result)
	h.writeJSON(w, http.StatusCreated, toBidResponse(result))
}

func (h *Handler) buyBlitz(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.BuyBlitz(r.Context(), auction.BlitzBuyCommand{
		AuctionID: auctionID,
		UserID:    auth.MustGetUserID(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.refreshLivePrice(r, auctionID, result)
	h.writeJSON(w, http.StatusCreated, toBidResponse(result))
}

func toBidResponse(result *auction.PlaceBidResult) bidResponse {
	return bidResponse{
		BidID:          result.Bid.ID,
		Amount:         result.Bid.Amount,
		CurrentPrice:   result.CurrentPrice,
		PreviousLeader: result.PreviousLeader,
		EndTime:        result.EndTime,
		Extended:       result.Extended,
		Blitz:          result.Blitz,
	}
}

func (h *Handler) listTopBids(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			h.writeErrorMessage(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = parsed
	}

	bids, err := h.service.ListTopBids(r.Context(), auctionID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type bidEntry struct {
		BidID    uuid.UUID `json:"bid_id"`
		UserID   int64     `json:"user_id"`
		Amount   int64     `json:"amount"`
		PlacedAt time.Time `json:"placed_at"`
	}
	entries := make([]bidEntry, 0, len(bids))
	for _, b := range bids {
		entries = append(entries, bidEntry{
			BidID:    b.ID,
			UserID:   b.UserID,
			Amount:   b.Amount,
			PlacedAt: b.PlacedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"bids": entries})
}

type createAuctionRequest struct {
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	PhotoRef           string    `json:"photo_ref"`
	StartPrice         int64     `json:"start_price"`
	MinStep            int64     `json:"min_step"`
	BlitzPrice         *int64    `json:"blitz_price,omitempty"`
	EndTime            time.Time `json:"end_time"`
	CooldownSeconds    int64     `json:"cooldown_seconds"`
	CooldownOffSeconds int64     `json:"cooldown_off_before_end_seconds"`
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.service.CreateAuction(r.Context(), auction.CreateAuctionCommand{
		Title:                req.Title,
		Description:          req.Description,
		PhotoRef:             req.PhotoRef,
		StartPrice:           req.StartPrice,
		MinStep:              req.MinStep,
		BlitzPrice:           req.BlitzPrice,
		EndTime:              req.EndTime,
		Cooldown:             time.Duration(req.CooldownSeconds) * time.Second,
		CooldownOffBeforeEnd: time.Duration(req.CooldownOffSeconds) * time.Second,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

type outcomeResponse struct {
	Won        bool   `json:"won"`
	WinnerID   *int64 `json:"winner_id,omitempty"`
	FinalPrice *int64 `json:"final_price,omitempty"`
}

func toOutcomeResponse(outcome auction.Outcome) outcomeResponse {
	resp := outcomeResponse{Won: outcome.Won}
	if outcome.Won {
		resp.WinnerID = &outcome.WinnerID
		resp.FinalPrice = &outcome.FinalPrice
	}
	return resp
}

func (h *Handler) forceClose(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	outcome, err := h.service.ForceClose(r.Context(), auctionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.invalidateLivePrice(r, auctionID)
	h.writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

type selectWinnerRequest struct {
	BidID uuid.UUID `json:"bid_id"`
}

func (h *Handler) selectWinner(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req selectWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.service.SelectWinnerManually(r.Context(), auctionID, req.BidID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.invalidateLivePrice(r, auctionID)
	h.writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), auctionID); err != nil {
		h.writeError(w, err)
		return
	}

	h.invalidateLivePrice(r, auctionID)
	w.WriteHeader(http.StatusNoContent)
}

// refreshLivePrice pushes the post-bid snapshot into Redis. Failures are
// logged, not surfaced: the bid is already committed.
func (h *Handler) refreshLivePrice(r *http.Request, auctionID uuid.UUID, result *auction.PlaceBidResult) {
	if result.Blitz {
		h.invalidateLivePrice(r, auctionID)
		return
	}
	leader := result.Bid.UserID
	snapshot := cache.LivePrice{
		AuctionID:    auctionID,
		CurrentPrice: result.CurrentPrice,
		Leader:       &leader,
		EndTime:      result.EndTime,
	}
	if err := h.livePrices.Set(r.Context(), snapshot); err != nil {
		h.logger.Warn("Live price update failed", "error", err)
	}
}

func (h *Handler) invalidateLivePrice(r *http.Request, auctionID uuid.UUID) {
	if err := h.livePrices.Invalidate(r.Context(), auctionID); err != nil {
		h.logger.Warn("Live price invalidation failed", "error", err)
	}
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

type errorResponse struct {
	Error             string `json:"error"`
	MinimumRequired   *int64 `json:"minimum_required,omitempty"`
	RetryAfterSeconds *int64 `json:"retry_after_seconds,omitempty"`
}

// writeError maps the domain taxonomy onto HTTP status codes. Every
// domain error is an expected outcome; only unknown errors become 500s.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var tooLow *auction.BidTooLowError
	if errors.As(err, &tooLow) {
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:           tooLow.Error(),
			MinimumRequired: &tooLow.MinimumRequired,
		})
		return
	}

	var cooldown *auction.CooldownActiveError
	if errors.As(err, &cooldown) {
		retryAfter := int64(cooldown.RetryAfter / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		h.writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:             cooldown.Error(),
			RetryAfterSeconds: &retryAfter,
		})
		return
	}

	switch {
	case errors.Is(err, auction.ErrAuctionNotActive),
		errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, auction.ErrBidNotFound):
		h.writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auction.ErrAuctionExpired),
		errors.Is(err, auction.ErrAlreadyFinished),
		errors.Is(err, auction.ErrActiveAuctionExists),
		errors.Is(err, auction.ErrBlitzUnavailable),
		errors.Is(err, auction.ErrBidAuctionMismatch):
		h.writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, auction.ErrInvalidBidAmount),
		errors.Is(err, auction.ErrInvalidStartPrice),
		errors.Is(err, auction.ErrInvalidMinStep),
		errors.Is(err, auction.ErrInvalidCooldown),
		errors.Is(err, auction.ErrInvalidBlitzPrice),
		errors.Is(err, auction.ErrEndTimeTooSoon):
		h.writeErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", "error", err)
		h.writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

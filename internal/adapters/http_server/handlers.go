package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"review_ledger/internal/app"
	"review_ledger/internal/domain"
)

type Handlers struct {
	L *app.LedgerService
	Q *app.QueryService
	v *validator.Validate
}

func NewHandlers(l *app.LedgerService, q *app.QueryService) *Handlers {
	return &Handlers{L: l, Q: q, v: validator.New(validator.WithRequiredStructEnabled())}
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// result is the envelope for every ledger transition: value carries the new
// id, true, a rejection code, or false.
type result struct {
	OK    bool `json:"ok"`
	Value any  `json:"value"`
}

// Numeric fields decode as json.Number so negative, fractional or oversized
// values reach the ledger's gates instead of failing the decode.
type submitRequest struct {
	LocationID *json.Number `json:"location_id" validate:"required"`
	Text       *string      `json:"text" validate:"required"`
	Rating     *json.Number `json:"rating" validate:"required"`
}

type updateRequest struct {
	Text   *string      `json:"text" validate:"required"`
	Rating *json.Number `json:"rating" validate:"required"`
}

type authorityRequest struct {
	Authority *string `json:"authority" validate:"required"`
}

type cooldownRequest struct {
	Period *json.Number `json:"period" validate:"required"`
}

type countResponse struct {
	Count uint64 `json:"count"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/reviews/count", h.getReviewCount)
		r.Get("/reviews/{id}", h.getReview)
		r.Get("/users/{author}/locations/{location}/review", h.getUserReview)

		r.Group(func(r chi.Router) {
			r.Use(BodyLimit(maxBodyBytes))
			r.Use(s.RequireCaller)
			r.Post("/reviews", h.submitReview)
			r.Put("/reviews/{id}", h.updateReview)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Put("/authority", h.setAuthority)
				r.Put("/cooldown", h.setCooldown)
				r.Get("/config", h.getConfig)
			})
		})
	})
}

/********** response helpers **********/

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCached serves v with a weak ETag, answering 304 when the client has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write cached body")
	}
}

// StatusOf maps a submission rejection code to its HTTP status.
func StatusOf(c domain.Code) int {
	switch c {
	case domain.CodeInvalidLocation, domain.CodeInvalidReviewText, domain.CodeInvalidRating, domain.CodeInvalidTimestamp:
		return http.StatusBadRequest
	case domain.CodeUserNotFound, domain.CodeLocationNotFound:
		return http.StatusNotFound
	case domain.CodeReviewAlreadyExists:
		return http.StatusConflict
	case domain.CodeNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeTransitionError renders rejections as result envelopes and anything
// else as a 500 problem.
func writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	if c, ok := domain.CodeOf(err); ok {
		writeJSON(w, StatusOf(c), result{OK: false, Value: uint32(c)})
		return
	}
	if errors.Is(err, domain.ErrUpdateRejected) || errors.Is(err, domain.ErrConfigRejected) {
		writeJSON(w, http.StatusUnprocessableEntity, result{OK: false, Value: false})
		return
	}
	log.Error().Err(err).Str("route", routeOf(r)).Msg("ledger transition failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "ledger unavailable")
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return false
	}
	if err := h.v.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return false
	}
	return true
}

// uintOrZero reads n as an integer in [0, limit]. Anything else reads as 0,
// which the ledger rejects for every numeric field.
func uintOrZero(n json.Number, limit uint64) uint64 {
	if v, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		if v > limit {
			return 0
		}
		return v
	}
	f, err := n.Float64()
	if err != nil || f < 1 || f != math.Trunc(f) || f >= float64(limit) {
		return 0
	}
	return uint64(f)
}

func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid "+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

/********** transitions **********/

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	loc := uintOrZero(*req.LocationID, math.MaxUint64)
	rating := uint32(uintOrZero(*req.Rating, math.MaxUint32))
	id, err := h.L.SubmitReview(r.Context(), caller, loc, *req.Text, rating)
	if err != nil {
		writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Value: id})
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	rating := uint32(uintOrZero(*req.Rating, math.MaxUint32))
	if err := h.L.UpdateReview(r.Context(), caller, id, *req.Text, rating); err != nil {
		writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Value: true})
}

func (h *Handlers) setAuthority(w http.ResponseWriter, r *http.Request) {
	var req authorityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.L.SetAuthorityContract(r.Context(), domain.Identity(*req.Authority)); err != nil {
		writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Value: true})
}

func (h *Handlers) setCooldown(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req cooldownRequest
	if !h.decode(w, r, &req) {
		return
	}
	period := int64(uintOrZero(*req.Period, math.MaxInt64))
	if err := h.L.SetCooldownPeriod(r.Context(), caller, period); err != nil {
		writeTransitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Value: true})
}

/********** queries **********/

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	rv, err := h.Q.GetReview(r.Context(), id)
	if err != nil {
		h.queryError(w, r, err, "review not found")
		return
	}
	writeCached(w, r, rv)
}

func (h *Handlers) getUserReview(w http.ResponseWriter, r *http.Request) {
	loc, ok := pathUint(w, r, "location")
	if !ok {
		return
	}
	ur, err := h.Q.GetUserReview(r.Context(), domain.Identity(chi.URLParam(r, "author")), loc)
	if err != nil {
		h.queryError(w, r, err, "no review for this user and location")
		return
	}
	writeCached(w, r, ur)
}

func (h *Handlers) getReviewCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Q.GetReviewCount(r.Context())
	if err != nil {
		h.queryError(w, r, err, "")
		return
	}
	writeCached(w, r, countResponse{Count: n})
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.L.Config())
}

func (h *Handlers) queryError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if app.IsNotFound(err) {
		writeProblem(w, http.StatusNotFound, "Not Found", notFound)
		return
	}
	log.Error().Err(err).Str("route", routeOf(r)).Msg("query failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "lookup failed")
}

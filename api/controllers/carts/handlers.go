package carts

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cartrecovery/api/responses"
	"github.com/angelmondragon/cartrecovery/api/validators"
	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartrecovery/pkg/errors"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

// Service is the subset of carts.Service the HTTP layer drives.
type Service interface {
	Track(ctx context.Context, in carts.TrackInput) (carts.UpsertResult, error)
	Update(ctx context.Context, in carts.UpdateInput) (carts.UpsertResult, error)
	MarkRecovered(ctx context.Context, identity string) (carts.RecoveryResult, error)
	Get(ctx context.Context, identity string) (*carts.CartSession, error)
	Remove(ctx context.Context, identity string) (bool, error)
	Sweep(ctx context.Context) ([]carts.Transition, error)
	Stats(ctx context.Context) (carts.Stats, error)
}

// Submit handles the action-tagged cart endpoint: track, update and recovered.
func Submit(svc Service, currencyCode string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		action, err := enums.ParseCartAction(payload.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action").
				WithDetails(map[string]string{"action": "must be one of track update recovered"}))
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "cart_action", string(action))
		}

		switch action {
		case enums.CartActionRecovered:
			res, err := svc.MarkRecovered(ctx, payload.Email)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, newRecoveryResponse(string(action), res, currencyCode))
			return
		case enums.CartActionTrack, enums.CartActionUpdate:
			if payload.Items == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
					WithDetails(map[string]string{"items": "is required"}))
				return
			}
		}

		var res carts.UpsertResult
		if action == enums.CartActionTrack {
			res, err = svc.Track(ctx, carts.TrackInput{Identity: payload.Email, DisplayName: payload.Name, Items: payload.rawItems()})
		} else {
			res, err = svc.Update(ctx, carts.UpdateInput{Identity: payload.Email, DisplayName: payload.Name, Items: payload.rawItems()})
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newUpsertResponse(string(action), res, currencyCode))
	}
}

// Show returns the live session for the email, or the latest closed one.
func Show(svc Service, currencyCode string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, err := emailParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Get(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(*session, currencyCode))
	}
}

func Remove(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, err := emailParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		removed, err := svc.Remove(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, removeResponse{Email: email, Removed: removed})
	}
}

func Stats(svc Service, currencyCode string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStatsResponse(stats, currencyCode))
	}
}

// Sweep runs the time-based transitions on demand.
func Sweep(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitions, err := svc.Sweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sweepResponse{Transitions: newTransitionResponses(transitions)})
	}
}

func emailParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid email path parameter")
	}
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	return email, nil
}

package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/gridview/internal/session"
	"github.com/pitabwire/gridview/model"
)

const maxEventsBody = 1 << 20

func handleOpenView(views *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		// The body is optional; when present it carries initial events.
		body, err := decodeEvents(w, r, true)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		desc, err := views.Open(r.Context(), caps, rctx.Owner(), chi.URLParam(r, "tableId"), body.Events)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		w.Header().Set("Location", "/ui/views/"+desc.ID)
		WriteJSON(w, http.StatusCreated, desc)
	}
}

func handleGetView(views *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		desc, err := views.Get(r.Context(), caps, rctx.Owner(), chi.URLParam(r, "viewId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleViewEvents(views *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		body, err := decodeEvents(w, r, false)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		desc, err := views.Apply(r.Context(), caps, rctx.Owner(), chi.URLParam(r, "viewId"), body.Events)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleCloseView(views *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := views.Close(r.Context(), rctx.Owner(), chi.URLParam(r, "viewId")); err != nil {
			WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeEvents reads a ViewEventsRequest body. An empty body is accepted
// only when optional is set.
func decodeEvents(w http.ResponseWriter, r *http.Request, optional bool) (model.ViewEventsRequest, error) {
	var body model.ViewEventsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return model.ViewEventsRequest{}, nil
		}
		return model.ViewEventsRequest{}, model.NewBadRequestError("invalid JSON body")
	}
	return body, nil
}

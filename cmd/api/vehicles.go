package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/store"
)

// editor applies catalog edits and keeps the embedding index in step.
type editor interface {
	Update(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	Remove(ctx context.Context, id int64) error
}

func vehicleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return 0, false
	}
	return id, true
}

func writeStoreFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "vehicle not found")
	case errors.Is(err, store.ErrDuplicateVIN):
		writeError(w, http.StatusConflict, "duplicate VIN")
	default:
		writeFailure(w, r, logger, err)
	}
}

func handleGetVehicle(st catalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := vehicleID(w, r)
		if !ok {
			return
		}
		v, err := st.Get(r.Context(), id)
		if err != nil {
			writeStoreFailure(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handlePatchVehicle(st catalog, ed editor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := vehicleID(w, r)
		if !ok {
			return
		}
		var patch domain.VehiclePatch
		if !decode(w, r, &patch) {
			return
		}
		if patch.IsEmpty() {
			writeError(w, http.StatusBadRequest, "nothing to update")
			return
		}
		v, err := st.Get(r.Context(), id)
		if err != nil {
			writeStoreFailure(w, r, logger, err)
			return
		}
		v, err = ed.Update(r.Context(), patch.Apply(v))
		if err != nil {
			writeStoreFailure(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteVehicle(ed editor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := vehicleID(w, r)
		if !ok {
			return
		}
		if err := ed.Remove(r.Context(), id); err != nil {
			writeStoreFailure(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Hussein-Mazeh/SolarDashboard/auth"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/service"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/vault"
)

// unlockFailedMsg is deliberately identical for a wrong passphrase and a
// corrupted vault so the API cannot be used as an oracle for either.
const unlockFailedMsg = "unable to unlock vault with the given passphrase"

type setupRequest struct {
	Username         string `json:"username" validate:"required"`
	Password         string `json:"password" validate:"required"`
	PortalURL        string `json:"portal_url" validate:"required,url"`
	MasterPassphrase string `json:"master_passphrase" validate:"required,min=8"`
}

type unlockRequest struct {
	MasterPassphrase string `json:"master_passphrase" validate:"required"`
}

func (s *Server) passphraseOptions() auth.ValidateOptions {
	opts := auth.DefaultValidateOptions()
	opts.HIBP = s.hibp
	return opts
}

// handleStatus reports the lifecycle state for the calling session and
// whether a legacy plaintext config block is waiting for migration.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.vault.Status(sessionID(r))
	if err != nil {
		s.log.Error("vault status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "unable to read vault status")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleSetup performs first-time vault creation and immediately unlocks the
// new vault for the calling session, matching the original first-run flow.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	if err := auth.ValidateMasterPassphrase(r.Context(), req.MasterPassphrase, s.passphraseOptions()); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := vault.CredentialRecord{
		Username:  req.Username,
		Password:  req.Password,
		PortalURL: req.PortalURL,
	}

	if err := s.vault.Setup(rec, req.MasterPassphrase); err != nil {
		if errors.Is(err, vault.ErrAlreadyInitialized) {
			s.writeError(w, http.StatusConflict, "vault already exists; reset it first")
			return
		}
		s.log.Error("vault setup", "error", err)
		s.writeError(w, http.StatusInternalServerError, "unable to save credentials")
		return
	}

	// Chain straight to unlocked for the session that just set up.
	id := s.ensureSession(w, r)
	if _, err := s.vault.Unlock(id, req.MasterPassphrase, s.sessionTTL); err != nil {
		s.log.Error("post-setup unlock", "error", err)
		s.writeError(w, http.StatusInternalServerError, "vault saved but could not be unlocked")
		return
	}

	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// handleUnlock decrypts the stored credentials for the calling session. When
// the vault is uninitialized but a legacy plaintext config block exists, the
// submitted passphrase first drives the explicit migration and the unlock
// proceeds against the freshly created vault.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "master passphrase required")
		return
	}

	st, err := s.vault.Status(sessionID(r))
	if err != nil {
		s.log.Error("vault status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "unable to read vault status")
		return
	}

	if st.State == service.StateUninitialized {
		if !st.MigrationAvailable {
			s.writeError(w, http.StatusNotFound, "no vault found; set up credentials first")
			return
		}
		if err := auth.ValidateMasterPassphrase(r.Context(), req.MasterPassphrase, s.passphraseOptions()); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.vault.Migrate(req.MasterPassphrase); err != nil {
			s.log.Error("legacy migration", "error", err)
			s.writeError(w, http.StatusInternalServerError, "unable to migrate legacy credentials")
			return
		}
	}

	id := s.ensureSession(w, r)
	if _, err := s.vault.Unlock(id, req.MasterPassphrase, s.sessionTTL); err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidPassphrase):
			s.writeError(w, http.StatusUnauthorized, unlockFailedMsg)
		case errors.Is(err, vault.ErrStoreCorrupted):
			s.writeError(w, http.StatusInternalServerError, unlockFailedMsg)
		case errors.Is(err, vault.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "no vault found; set up credentials first")
		default:
			s.log.Error("vault unlock", "error", err)
			s.writeError(w, http.StatusInternalServerError, unlockFailedMsg)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// handleReset deletes the vault and every cached session. Irreversible.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Reset(); err != nil {
		s.log.Error("vault reset", "error", err)
		s.writeError(w, http.StatusInternalServerError, "unable to reset vault")
		return
	}

	s.dropAllClients()
	s.clearSession(w, sessionID(r))
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// handleLogout ends the calling session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w, sessionID(r))
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

package http

import (
	"net/http"

	"financas/internal/core"
)

type goalList struct {
	Goals []core.GoalSummary `json:"goals"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, userID string) {
	goals, err := s.ledger.ListGoals(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]core.GoalSummary, len(goals))
	for i, g := range goals {
		out[i] = core.SummarizeGoal(g)
	}
	writeJSON(w, http.StatusOK, goalList{Goals: out})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, userID string) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateGoal(r.Context(), userID, core.GoalInput{
		Name:   req.Name,
		Target: *req.Target,
		Color:  req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.Header().Set("Location", "/api/goals/"+g.ID)
	writeJSON(w, http.StatusCreated, core.SummarizeGoal(g))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request, userID string) {
	g, err := s.ledger.GetGoal(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, core.SummarizeGoal(g))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request, userID string) {
	var patch goalPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.UpdateGoal(r.Context(), userID, r.PathValue("id"), core.GoalChanges{
		Name:   patch.Name,
		Target: patch.Target,
		Color:  patch.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, core.SummarizeGoal(g))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.ledger.DeleteGoal(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request, userID string) {
	s.handleMovement(w, r, userID, false)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, userID string) {
	s.handleMovement(w, r, userID, true)
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request, userID string, withdraw bool) {
	var req movementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := req.movement()
	if err != nil {
		writeError(w, r, err)
		return
	}

	goalID := r.PathValue("id")
	var t core.Transaction
	if withdraw {
		t, err = s.ledger.Withdraw(r.Context(), userID, goalID, m)
	} else {
		t, err = s.ledger.Contribute(r.Context(), userID, goalID, m)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)

	g, err := s.ledger.GetGoal(r.Context(), userID, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementResponse{
		Transaction: t,
		Goal:        core.SummarizeGoal(g),
	})
}

type movementResponse struct {
	Transaction core.Transaction `json:"transaction"`
	Goal        core.GoalSummary `json:"goal"`
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dosada05/league-standings/services"
)

const defaultLeaderboardSize = 10

type StandingsHandler struct {
	standingsService services.StandingsService
}

func NewStandingsHandler(ss services.StandingsService) *StandingsHandler {
	return &StandingsHandler{
		standingsService: ss,
	}
}

// CreateTable godoc
// @Summary Create a standings table
// @Tags standings
// @Description Creates a table for a division season, a tournament or a cup, optionally seeded with zeroed team entries.
// @Accept json
// @Produce json
// @Param body body services.CreateStandingsTableInput true "Scope and optional team names"
// @Success 201 {object} map[string]interface{} "Table created"
// @Failure 400 {object} map[string]string "Invalid scope or team list"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 409 {object} map[string]string "A table already exists for this scope"
// @Security BearerAuth
// @Router /api/standings [post]
func (h *StandingsHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var input services.CreateStandingsTableInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.standingsService.CreateTable(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	logAction(r, "Standings table created", slog.String("table_id", table.ID))

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTables godoc
// @Summary List standings tables
// @Tags standings
// @Produce json
// @Param division_id query string false "Division ID"
// @Param season query string false "Season"
// @Param tournament_id query string false "Tournament ID"
// @Param cup_id query string false "Cup ID"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{} "Tables"
// @Failure 400 {object} map[string]string "Invalid query parameter"
// @Router /api/standings [get]
func (h *StandingsHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	filter := services.ListStandingsTablesFilter{
		DivisionID:   getStringQuery(r, "division_id"),
		Season:       getStringQuery(r, "season"),
		TournamentID: getStringQuery(r, "tournament_id"),
		CupID:        getStringQuery(r, "cup_id"),
	}

	limit, err := getIntQuery(r, "limit", 0)
	if err != nil || limit < 0 {
		badRequestResponse(w, r, errors.New("invalid limit query parameter"))
		return
	}
	offset, err := getIntQuery(r, "offset", 0)
	if err != nil || offset < 0 {
		badRequestResponse(w, r, errors.New("invalid offset query parameter"))
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	tables, err := h.standingsService.ListTables(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tables": tables}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetTable godoc
// @Summary Get a standings table
// @Tags standings
// @Produce json
// @Param tableID path string true "Table ID"
// @Success 200 {object} map[string]interface{} "Table"
// @Failure 404 {object} map[string]string "Table not found"
// @Router /api/standings/{tableID} [get]
func (h *StandingsHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.standingsService.GetTable(r.Context(), tableID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetLeaderboard godoc
// @Summary Top N of a standings table
// @Tags standings
// @Produce json
// @Param tableID path string true "Table ID"
// @Param top query int false "Number of entries (default 10); zero or negative returns an empty list"
// @Success 200 {object} map[string]interface{} "Leaderboard"
// @Failure 400 {object} map[string]string "Invalid top parameter"
// @Failure 404 {object} map[string]string "Table not found"
// @Router /api/standings/{tableID}/leaderboard [get]
func (h *StandingsHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	top, err := getIntQuery(r, "top", defaultLeaderboardSize)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	leaderboard, err := h.standingsService.GetLeaderboard(r.Context(), tableID, top)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": leaderboard}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetTeamStanding godoc
// @Summary Standing of one team
// @Tags standings
// @Produce json
// @Param tableID path string true "Table ID"
// @Param teamName path string true "Team name (case-insensitive)"
// @Success 200 {object} map[string]interface{} "Standing entry"
// @Failure 404 {object} map[string]string "Table or team not found"
// @Router /api/standings/{tableID}/teams/{teamName} [get]
func (h *StandingsHandler) GetTeamStanding(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	teamName, err := getPathParam(r, "teamName")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.standingsService.GetStanding(r.Context(), tableID, teamName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standing": entry}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatchResults godoc
// @Summary Applied match results of a table
// @Tags standings
// @Produce json
// @Param tableID path string true "Table ID"
// @Success 200 {object} map[string]interface{} "Results in the order they were applied"
// @Failure 404 {object} map[string]string "Table not found"
// @Router /api/standings/{tableID}/results [get]
func (h *StandingsHandler) ListMatchResults(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	results, err := h.standingsService.ListMatchResults(r.Context(), tableID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RecordMatchResult godoc
// @Summary Apply a completed match to a table
// @Tags standings
// @Description Counts the result once per match_id and returns the re-sorted table.
// @Accept json
// @Produce json
// @Param tableID path string true "Table ID"
// @Param body body services.RecordMatchResultInput true "Completed match"
// @Success 200 {object} map[string]interface{} "Updated table"
// @Failure 400 {object} map[string]string "Invalid result"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Table not found"
// @Failure 409 {object} map[string]string "Match already applied"
// @Security BearerAuth
// @Router /api/standings/{tableID}/results [post]
func (h *StandingsHandler) RecordMatchResult(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RecordMatchResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.standingsService.RecordMatchResult(r.Context(), tableID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	logAction(r, "Match result recorded", slog.String("table_id", tableID), slog.String("match_id", input.MatchID))

	if err := writeJSON(w, http.StatusOK, jsonResponse{"table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RemoveTeam godoc
// @Summary Remove a team from a table
// @Tags standings
// @Description Opponents keep the results of matches played against the removed team.
// @Produce json
// @Param tableID path string true "Table ID"
// @Param teamName path string true "Team name (case-insensitive)"
// @Success 200 {object} map[string]bool "removed is false when the team was not in the table"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Table not found"
// @Security BearerAuth
// @Router /api/standings/{tableID}/teams/{teamName} [delete]
func (h *StandingsHandler) RemoveTeam(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	teamName, err := getPathParam(r, "teamName")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	removed, err := h.standingsService.RemoveTeam(r.Context(), tableID, teamName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if removed {
		logAction(r, "Team removed from standings table", slog.String("table_id", tableID), slog.String("team", teamName))
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"removed": removed}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteTable godoc
// @Summary Retire a standings table
// @Tags standings
// @Param tableID path string true "Table ID"
// @Success 204 "Deleted"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Table not found"
// @Security BearerAuth
// @Router /api/standings/{tableID} [delete]
func (h *StandingsHandler) DeleteTable(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.standingsService.DeleteTable(r.Context(), tableID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	logAction(r, "Standings table deleted", slog.String("table_id", tableID))

	w.WriteHeader(http.StatusNoContent)
}

// PublishSnapshot godoc
// @Summary Publish a public snapshot of a table
// @Tags standings
// @Produce json
// @Param tableID path string true "Table ID"
// @Success 200 {object} map[string]interface{} "Table with snapshot_url"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Table not found"
// @Failure 503 {object} map[string]string "Object storage not configured"
// @Security BearerAuth
// @Router /api/standings/{tableID}/snapshot [post]
func (h *StandingsHandler) PublishSnapshot(w http.ResponseWriter, r *http.Request) {
	tableID, err := getPathParam(r, "tableID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	table, err := h.standingsService.PublishSnapshot(r.Context(), tableID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	logAction(r, "Standings snapshot published", slog.String("table_id", tableID))

	if err := writeJSON(w, http.StatusOK, jsonResponse{"table": table}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

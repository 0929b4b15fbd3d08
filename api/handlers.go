package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voting-ledger/identity"
	"voting-ledger/models"
	"voting-ledger/service"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type CastVoteRequest struct {
	CandidateID  string `json:"candidateId"`
	VoterAddress string `json:"voterAddress"`
}

type CastVoteResponse struct {
	Success         bool        `json:"success"`
	TransactionHash string      `json:"transactionHash"`
	BlockNumber     uint64      `json:"blockNumber"`
	GasUsed         string      `json:"gasUsed"`
	Vote            models.Vote `json:"vote"`
}

type CandidatesResponse struct {
	Success       bool                 `json:"success"`
	Candidates    []models.Candidate   `json:"candidates"`
	VotingSession models.VotingSession `json:"votingSession"`
}

type ResultsResponse struct {
	Success       bool                 `json:"success"`
	Results       []models.Candidate   `json:"results"`
	TotalVotes    int                  `json:"totalVotes"`
	VotingSession models.VotingSession `json:"votingSession"`
}

type HistoryResponse struct {
	Success bool          `json:"success"`
	History []models.Vote `json:"history"`
}

type StatusResponse struct {
	Success    bool                 `json:"success"`
	Session    models.VotingSession `json:"session"`
	IsActive   bool                 `json:"isActive"`
	TotalVotes int                  `json:"totalVotes"`
}

type VerifyResponse struct {
	Success  bool               `json:"success"`
	Verified bool               `json:"verified"`
	VoteID   string             `json:"voteId"`
	Proof    *service.VoteProof `json:"proof,omitempty"`
}

type LedgerResponse struct {
	Success         bool            `json:"success"`
	BlockCount      int             `json:"blockCount"`
	Valid           bool            `json:"valid"`
	ValidationError string          `json:"validationError,omitempty"`
	Blocks          []*models.Block `json:"blocks"`
}

type EndSessionResponse struct {
	Success    bool                 `json:"success"`
	Ended      bool                 `json:"ended"`
	Session    models.VotingSession `json:"session"`
	ExportPath string               `json:"exportPath,omitempty"`
}

type WalletInfo struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
	Balance   string `json:"balance"`
	Network   string `json:"network"`
}

type WalletResponse struct {
	Success bool       `json:"success"`
	Wallet  WalletInfo `json:"wallet"`
}

type PingResponse struct {
	Message string `json:"message"`
}

// handlePing handles GET /api/ping
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, &PingResponse{Message: s.cfg.PingMessage})
}

// handleGetCandidates handles GET /api/voting/candidates
func (s *Server) handleGetCandidates(w http.ResponseWriter, r *http.Request) {
	session := s.ledger.GetSession()
	s.sendJSON(w, http.StatusOK, &CandidatesResponse{
		Success:       true,
		Candidates:    session.Candidates,
		VotingSession: session,
	})
}

// handleCastVote handles POST /api/voting/vote
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if s.cfg.CastDelay > 0 {
		timer := time.NewTimer(s.cfg.CastDelay)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			s.logger.Debug("vote cast abandoned during simulated confirmation", "voter", req.VoterAddress)
			return
		}
	}

	receipt, err := s.ledger.CastVote(req.CandidateID, req.VoterAddress)
	if err != nil {
		s.sendServiceError(w, err, "Failed to cast vote")
		return
	}

	s.sendJSON(w, http.StatusOK, &CastVoteResponse{
		Success:         true,
		TransactionHash: receipt.TransactionHash,
		BlockNumber:     receipt.BlockNumber,
		GasUsed:         receipt.GasUsed,
		Vote:            receipt.Vote,
	})
}

// handleGetResults handles GET /api/voting/results
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	tally, session := s.counter.Summary()
	s.sendJSON(w, http.StatusOK, &ResultsResponse{
		Success:       true,
		Results:       tally.Results,
		TotalVotes:    tally.TotalVotes,
		VotingSession: session,
	})
}

// handleGetVoterHistory handles GET /api/voting/voter/{address}
func (s *Server) handleGetVoterHistory(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if strings.TrimSpace(address) == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_ADDRESS", "Voter address is required")
		return
	}
	s.sendJSON(w, http.StatusOK, &HistoryResponse{
		Success: true,
		History: s.ledger.GetHistory(address),
	})
}

// handleGetStatus handles GET /api/voting/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	session := s.ledger.GetSession()
	s.sendJSON(w, http.StatusOK, &StatusResponse{
		Success:    true,
		Session:    session,
		IsActive:   s.ledger.IsVotingOpen(),
		TotalVotes: session.TotalVotes,
	})
}

// handleVerifyVote handles GET and POST /api/voting/verify/{voteId}
func (s *Server) handleVerifyVote(w http.ResponseWriter, r *http.Request) {
	voteID := r.PathValue("voteId")
	if strings.TrimSpace(voteID) == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_VOTE_ID", "Vote ID is required")
		return
	}

	resp := &VerifyResponse{
		Success:  true,
		Verified: s.verifier.Verify(voteID),
		VoteID:   voteID,
	}
	proof, found, err := s.verifier.Proof(voteID)
	switch {
	case err != nil:
		s.logger.Error("audit proof failed", "voteID", voteID, "err", err)
	case found:
		resp.Proof = proof
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleGetLedger handles GET /api/voting/ledger
func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	blocks := s.ledger.Chain()
	resp := &LedgerResponse{
		Success:    true,
		BlockCount: len(blocks),
		Valid:      true,
		Blocks:     blocks,
	}
	if err := models.ValidateChain(blocks); err != nil {
		resp.Valid = false
		resp.ValidationError = err.Error()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleEndSession handles POST /api/voting/session/end
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(r) {
		s.sendError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Admin token required")
		return
	}

	ended := s.ledger.EndSession()
	resp := &EndSessionResponse{
		Success: true,
		Ended:   ended,
		Session: s.ledger.GetSession(),
	}
	if ended {
		s.logger.Info("voting session ended", "session", resp.Session.ID, "totalVotes", resp.Session.TotalVotes)
		path, err := s.ExportChain()
		if err != nil {
			s.logger.Error("failed to export audit chain", "err", err)
		}
		resp.ExportPath = path
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// authorizeAdmin accepts either "Authorization: Bearer <token>" or
// "X-Admin-Token: <token>". Without a configured token every caller passes.
func (s *Server) authorizeAdmin(r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		return true
	}
	token := r.Header.Get("X-Admin-Token")
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = bearer
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) == 1
}

// handleConnectWallet handles POST /api/voting/wallet/connect
func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := identity.NewMockWallet()
	if err != nil {
		s.logger.Error("failed to generate wallet", "err", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to connect wallet")
		return
	}
	s.sendJSON(w, http.StatusOK, &WalletResponse{
		Success: true,
		Wallet: WalletInfo{
			Address:   wallet.Address.Hex(),
			Connected: true,
			Balance:   "1.234 ETH",
			Network:   "Ethereum Mainnet (Mock)",
		},
	})
}

// handlePlaceholder handles GET /api/placeholder/{candidateId}
func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	candidateID := r.PathValue("candidateId")
	label := "Candidate"
	if candidate, ok := s.ledger.Registry().Candidate(candidateID); ok {
		label = candidate.Name
	}
	// Stable per-candidate colour from the id hash
	sum := identity.Keccak256([]byte(candidateID))
	fill := fmt.Sprintf("#%02x%02x%02x", sum[0]/2+64, sum[1]/2+64, sum[2]/2+64)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	fmt.Fprintf(w, `<svg width="200" height="200" xmlns="http://www.w3.org/2000/svg">
  <rect width="200" height="200" fill="%s"/>
  <text x="100" y="100" text-anchor="middle" dy=".3em" fill="white" font-family="Arial" font-size="16">%s</text>
</svg>`, fill, html.EscapeString(label))
}

// handleAPINotFound answers every unmatched /api/ path
func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	s.sendError(w, http.StatusNotFound, "NOT_FOUND", "API endpoint not found")
}

// handleStatic serves the optional single page app. Unknown paths fall back to
// index.html so client-side routing works.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.cfg.StaticDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.NotFound(w, r)
		return
	}
	clean := filepath.Clean("/" + r.URL.Path)
	path := filepath.Join(s.cfg.StaticDir, filepath.FromSlash(clean))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.StaticDir, "index.html"))
}

func (s *Server) sendServiceError(w http.ResponseWriter, err error, fallback string) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
		message = fallback
	}
	s.sendError(w, status, code, message)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, service.ErrElectionClosed):
		return http.StatusForbidden, "ELECTION_CLOSED"
	case errors.Is(err, service.ErrCandidateNotFound):
		return http.StatusNotFound, "CANDIDATE_NOT_FOUND"
	case errors.Is(err, service.ErrDuplicateVoter):
		return http.StatusConflict, "DUPLICATE_VOTER"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, &ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

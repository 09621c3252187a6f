// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/conscience/pkg/validation"
	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/pipeline"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateGenesisRequest is the body of POST /v1/genesis.
type CreateGenesisRequest struct {
	Initiator string       `json:"initiator" binding:"required,max=128,printascii"`
	Request   string       `json:"request" binding:"required"`
	Tier      *ledger.Tier `json:"tier"`
	ParentID  string       `json:"parent_id"`
	IsMine    bool         `json:"is_mine"`
}

// ConfirmGenesisRequest is the body of POST /v1/genesis/:id/confirm.
type ConfirmGenesisRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// GateCheckRequest is the body of POST /v1/gate/check.
type GateCheckRequest struct {
	Action    string `json:"action" binding:"required"`
	GenesisID string `json:"genesis_id"`
}

// GateCheckResponse reports the gate decision for an action.
type GateCheckResponse struct {
	Required     bool                      `json:"required"`
	MatchedTerms []string                  `json:"matched_terms"`
	Confirmation *gate.ConfirmationRequest `json:"confirmation,omitempty"`
}

// DeliberateRequest is the body of POST /v1/council/deliberate.
type DeliberateRequest struct {
	Action  string         `json:"action" binding:"required"`
	Context map[string]any `json:"context"`
}

// AuditRequest is the body of POST /v1/audit. An empty action is valid and
// audits as ungrounded or neutral depending on the fragments.
type AuditRequest struct {
	Action    string      `json:"action"`
	Fragments []string    `json:"fragments"`
	Basis     string      `json:"basis"`
	Layer     audit.Layer `json:"layer" binding:"omitempty,oneof=operational semantic metaphor"`
}

// ProcessActionRequest is the body of POST /v1/actions. Approve answers
// every confirmation the run asks for; without it any confirmation
// cancels the run.
type ProcessActionRequest struct {
	Initiator string         `json:"initiator" binding:"required,max=128,printascii"`
	Action    string         `json:"action" binding:"required"`
	Tier      *ledger.Tier   `json:"tier"`
	ParentID  string         `json:"parent_id"`
	IsMine    bool           `json:"is_mine"`
	Context   map[string]any `json:"context"`
	Output    string         `json:"output"`
	Fragments []string       `json:"fragments"`
	Basis     string         `json:"basis"`
	Layer     audit.Layer    `json:"layer" binding:"omitempty,oneof=operational semantic metaphor"`
	Approve   bool           `json:"approve"`
	Note      string         `json:"note"`
}

func tierOrUser(t *ledger.Tier) ledger.Tier {
	if t == nil {
		return ledger.TierUser
	}
	return *t
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
}

// genesisIDParam returns the validated :id path parameter, answering 400
// when it is malformed.
func genesisIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validation.ValidateGenesisID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid genesis id", "details": err.Error()})
		return "", false
	}
	return id, true
}

// validateOrigin checks the initiator and optional parent of a new record.
func validateOrigin(initiator, parentID string) error {
	if err := validation.ValidateInitiator(initiator); err != nil {
		return err
	}
	if parentID != "" {
		return validation.ValidateGenesisID(parentID)
	}
	return nil
}

// =============================================================================
// Genesis
// =============================================================================

func (s *Server) handleCreateGenesis() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGenesisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := validateOrigin(req.Initiator, req.ParentID); err != nil {
			badRequest(c, err)
			return
		}

		rec, err := s.ledger.Create(c.Request.Context(), ledger.CreateRequest{
			Initiator: req.Initiator,
			Request:   req.Request,
			Tier:      tierOrUser(req.Tier),
			ParentID:  req.ParentID,
			IsMine:    req.IsMine,
		})
		if err != nil {
			s.logger.Error("create genesis failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record genesis"})
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func (s *Server) handleGetGenesis() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := genesisIDParam(c)
		if !ok {
			return
		}
		rec, err := s.ledger.Get(c.Request.Context(), id)
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "genesis not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleConfirmGenesis() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := genesisIDParam(c)
		if !ok {
			return
		}
		var req ConfirmGenesisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		ok, err := s.ledger.Confirm(c.Request.Context(), id, req.Reason)
		if err != nil {
			s.logger.Error("confirm genesis failed", "genesis_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record confirmation"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "genesis not found"})
			return
		}

		rec, err := s.ledger.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleGetChain() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := genesisIDParam(c)
		if !ok {
			return
		}
		chain, err := s.ledger.GetChain(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if chain == nil {
			chain = []*ledger.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"chain": chain, "depth": len(chain)})
	}
}

// =============================================================================
// Gate
// =============================================================================

func (s *Server) handleGateCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GateCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		var rec *ledger.Record
		if req.GenesisID != "" {
			found, err := s.ledger.Get(c.Request.Context(), req.GenesisID)
			if errors.Is(err, ledger.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "genesis not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			rec = found
		}

		required := s.gate.RequiresConfirmation(req.Action, rec)
		s.metrics.GateDecisionsTotal.WithLabelValues(strconv.FormatBool(required)).Inc()

		resp := GateCheckResponse{
			Required:     required,
			MatchedTerms: s.gate.MatchedTerms(req.Action),
		}
		if resp.MatchedTerms == nil {
			resp.MatchedTerms = []string{}
		}
		if required {
			cr := gate.FormatConfirmationRequest(req.Action, rec, s.gate.Reason(req.Action, rec))
			resp.Confirmation = &cr
		}
		c.JSON(http.StatusOK, resp)
	}
}

// =============================================================================
// Council
// =============================================================================

func (s *Server) handleDeliberate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.council == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "council not configured"})
			return
		}

		var req DeliberateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		verdict, err := s.council.Deliberate(c.Request.Context(), req.Action, req.Context)
		if err != nil {
			s.logger.Warn("deliberation failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, verdict)
	}
}

func (s *Server) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.council == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "council not configured"})
			return
		}
		history := s.council.History()
		c.JSON(http.StatusOK, gin.H{"verdicts": history, "count": len(history)})
	}
}

// =============================================================================
// Audit
// =============================================================================

func (s *Server) handleAudit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		var opts []audit.AuditOption
		if req.Basis != "" {
			opts = append(opts, audit.WithBasis(req.Basis))
		}
		if req.Layer != "" {
			opts = append(opts, audit.WithLayer(req.Layer))
		}
		c.JSON(http.StatusOK, s.filter.Audit(c.Request.Context(), req.Action, req.Fragments, opts...))
	}
}

// =============================================================================
// Pipeline
// =============================================================================

func (s *Server) handleProcessAction() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProcessActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := validateOrigin(req.Initiator, req.ParentID); err != nil {
			badRequest(c, err)
			return
		}

		note := req.Note
		if note == "" {
			note = "approved by http client " + req.Initiator
		}
		out, err := s.pipelineFor(req.Approve, note).Process(c.Request.Context(), pipeline.ActionRequest{
			Initiator: req.Initiator,
			Action:    req.Action,
			Tier:      tierOrUser(req.Tier),
			ParentID:  req.ParentID,
			IsMine:    req.IsMine,
			Context:   req.Context,
			Output:    req.Output,
			Fragments: req.Fragments,
			Basis:     req.Basis,
			Layer:     req.Layer,
		})
		if err != nil {
			s.logger.Warn("action processing failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

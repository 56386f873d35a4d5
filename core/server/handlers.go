package server

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/adalundhe/rebound/core/circuit"
	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/history"
	"github.com/adalundhe/rebound/core/pattern"
)

type decideRequest struct {
	TaskID            string            `json:"task_id"`
	Message           string            `json:"message"`
	KindHint          string            `json:"error_kind_hint"`
	AttemptCount      int               `json:"attempt_count"`
	ResourceClass     string            `json:"resource_class"`
	StatusCode        int               `json:"status_code"`
	RetryAfterSeconds float64           `json:"retry_after_seconds"`
	Metadata          map[string]string `json:"metadata"`

	// History overrides the stored history summary.
	History *failure.History `json:"history"`

	// Record appends the decision to the history store. Defaults to true
	// when a store is configured.
	Record *bool `json:"record"`
}

func (r decideRequest) signal(now time.Time) failure.Signal {
	return failure.Signal{
		RawMessage:    r.Message,
		KindHint:      r.KindHint,
		TaskID:        r.TaskID,
		AttemptCount:  r.AttemptCount,
		ResourceClass: r.ResourceClass,
		ObservedAt:    now,
		RetryAfter:    time.Duration(r.RetryAfterSeconds * float64(time.Second)),
		StatusCode:    r.StatusCode,
		Metadata:      r.Metadata,
	}
}

type decisionResponse struct {
	failure.Decision
	DelaySeconds float64 `json:"delay_seconds"`
	AttemptID    string  `json:"attempt_id,omitempty"`
}

func (s *Server) decide(c *fiber.Ctx) error {
	var req decideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "task_id is required")
	}
	if r := req.RetryAfterSeconds; math.IsNaN(r) || r < 0 || r > failure.MaxRetryAfter.Seconds() {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("retry_after_seconds must be between 0 and %.0f", failure.MaxRetryAfter.Seconds()))
	}

	ctx := c.UserContext()
	sig := req.signal(s.now())

	hist := req.History
	if hist == nil && s.history != nil {
		summary, err := s.history.Summary(ctx, sig.TaskID, sig.Attempt())
		if err != nil {
			s.logger.Warn("history summary unavailable, deciding without it",
				"task_id", sig.TaskID, "error", err)
		} else {
			hist = summary
		}
	}

	d := s.engine.Decide(ctx, sig, hist)
	resp := decisionResponse{Decision: d, DelaySeconds: d.Delay.Seconds()}

	if s.history != nil && (req.Record == nil || *req.Record) {
		a, err := s.history.Append(ctx, failure.AttemptFromDecision("", sig, d))
		if err != nil {
			return err
		}
		resp.AttemptID = a.ID
	}
	return c.JSON(resp)
}

type outcomeRequest struct {
	AttemptID     string `json:"attempt_id"`
	ResourceClass string `json:"resource_class"`
	Succeeded     bool   `json:"succeeded"`
}

type outcomeResponse struct {
	Circuit circuit.State `json:"circuit"`
}

// outcome feeds a retry result into the circuit tracker and, when an attempt
// id is given, resolves the stored attempt. The resource class defaults to
// the stored attempt's class.
func (s *Server) outcome(c *fiber.Ctx) error {
	var req outcomeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	ctx := c.UserContext()
	class := req.ResourceClass
	if req.AttemptID != "" {
		if s.history == nil {
			return fiber.NewError(fiber.StatusBadRequest, "attempt_id given but no history store is configured")
		}
		result := failure.OutcomeFailed
		if req.Succeeded {
			result = failure.OutcomeSucceeded
		}
		switch err := s.history.RecordOutcome(ctx, req.AttemptID, result); {
		case errors.Is(err, history.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "attempt not found")
		case errors.Is(err, history.ErrResolved):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return err
		}
		if class == "" {
			a, err := s.history.Get(ctx, req.AttemptID)
			if err != nil {
				return err
			}
			class = a.ResourceClass
		}
	}
	if class == "" {
		class = failure.DefaultResourceClass
	}

	st := s.engine.RecordOutcome(class, req.Succeeded)
	if s.metrics != nil {
		s.metrics.ObserveOutcome(st.ResourceClass, req.Succeeded)
	}
	return c.JSON(outcomeResponse{Circuit: st})
}

type circuitResponse struct {
	circuit.State
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (s *Server) circuitView(st circuit.State) circuitResponse {
	return circuitResponse{State: st, RemainingSeconds: st.Remaining(s.now()).Seconds()}
}

func (s *Server) listCircuits(c *fiber.Ctx) error {
	states := s.engine.Tracker().Snapshots()
	out := make([]circuitResponse, 0, len(states))
	for _, st := range states {
		out = append(out, s.circuitView(st))
	}
	return c.JSON(out)
}

func (s *Server) getCircuit(c *fiber.Ctx) error {
	return c.JSON(s.circuitView(s.engine.Tracker().Snapshot(c.Params("class"))))
}

func (s *Server) resetCircuit(c *fiber.Ctx) error {
	s.engine.Tracker().Reset(c.Params("class"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listPatterns(c *fiber.Ctx) error {
	lib := s.engine.Library()
	if category := c.Query("category"); category != "" {
		var out []pattern.Pattern
		for _, p := range lib.Patterns() {
			if p.Category.String() == category {
				out = append(out, p)
			}
		}
		return c.JSON(out)
	}
	return c.JSON(lib.Patterns())
}

func (s *Server) getPattern(c *fiber.Ctx) error {
	p, ok := s.engine.Library().Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "pattern not found")
	}
	return c.JSON(p)
}

func (s *Server) taskAttempts(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotFound, "no history store is configured")
	}
	attempts, err := s.history.Attempts(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if attempts == nil {
		attempts = []failure.Attempt{}
	}
	return c.JSON(attempts)
}

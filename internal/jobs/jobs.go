// Package jobs exposes the scheduler trigger endpoint. An external
// cron-style scheduler invokes one operation per request; each operation
// runs to completion, recording per-item failures rather than aborting.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/brokerpilot/api/internal/expiration"
	"github.com/brokerpilot/api/internal/orders"
	"github.com/brokerpilot/api/internal/reconcile"
	"github.com/brokerpilot/api/internal/refresh"
	"github.com/brokerpilot/api/internal/types"
	"github.com/brokerpilot/api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Trigger operations.
const (
	OpRefresh          = "refresh"
	OpExpectedMoves    = "expectedMoves"
	OpTestAccessTokens = "testAccessTokens"
	OpProcessOrders    = "processOrders"
)

// Service dispatches trigger operations to the engines that implement them.
type Service struct {
	conductor  *refresh.Conductor
	orders     *orders.Service
	reconciler *reconcile.Service
	calendar   *expiration.Calendar
	throttle   time.Duration
}

// NewService creates the trigger dispatch service.
func NewService(c *refresh.Conductor, o *orders.Service, r *reconcile.Service, cal *expiration.Calendar, throttle time.Duration) *Service {
	return &Service{conductor: c, orders: o, reconciler: r, calendar: cal, throttle: throttle}
}

// Run executes one trigger operation. The returned response distinguishes
// "completed" from "completed with N failures" through its failure count
// and message; a non-nil error means the operation failed outright.
func (s *Service) Run(ctx context.Context, op string) (*types.TriggerResponse, error) {
	jobID := uuid.New().String()
	logger := log.With().Str("job_id", jobID).Str("operation", op).Logger()
	logger.Info().Msg("trigger operation started")

	var (
		message  string
		failures int
	)

	switch op {
	case OpRefresh:
		result, err := s.conductor.RefreshTheWorld(ctx, false, s.throttle)
		if err != nil {
			return nil, err
		}
		message = result.Message()
		failures = len(result.Failures)
		if summary := result.FormatFailures(); summary != "" {
			logger.Warn().Msg(summary)
		}

		// A world refresh also converges order status with the brokers.
		recResult, err := s.reconciler.RefreshOrderStatus(ctx)
		if err != nil {
			return nil, err
		}
		failures += len(recResult.Failures)
		message += fmt.Sprintf("; order status: %d checked, %d updated", recResult.Checked, recResult.Updated)
		if summary := recResult.FormatFailures(); summary != "" {
			logger.Warn().Msg(summary)
		}

	case OpExpectedMoves:
		result, err := s.conductor.RecomputeExpectedMoves(ctx, s.calendar)
		if err != nil {
			return nil, err
		}
		message = fmt.Sprintf("recomputed expected moves for %d symbol(s)", len(result.Refreshed))
		failures = len(result.Failures)

	case OpTestAccessTokens:
		msg, expiring := s.conductor.CheckAccessTokens()
		message = msg
		failures = expiring

	case OpProcessOrders:
		result, err := s.orders.ProcessOrders(ctx)
		if err != nil {
			return nil, err
		}
		message = result.Message()
		failures = len(result.Failures)
		if summary := result.FormatFailures(); summary != "" {
			logger.Warn().Msg(summary)
		}

	default:
		return nil, fmt.Errorf("unknown trigger operation %q", op)
	}

	logger.Info().Int("failures", failures).Msg("trigger operation complete")
	return &types.TriggerResponse{Operation: op, Message: message, Failures: failures}, nil
}

// GinHandlers contains the HTTP handler for the trigger endpoint.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates handlers for the trigger endpoint.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// TriggerHandler handles POST requests from the external scheduler. The
// operation is selected by the "op" query parameter. Partial failures still
// return success; the payload carries the failure count.
func (h *GinHandlers) TriggerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := c.Query("op")
		if op == "" {
			response.BadRequest(c, "op query parameter is required")
			return
		}

		switch op {
		case OpRefresh, OpExpectedMoves, OpTestAccessTokens, OpProcessOrders:
		default:
			response.BadRequest(c, fmt.Sprintf("unknown operation %q", op))
			return
		}

		result, err := h.service.Run(c.Request.Context(), op)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, result)
	}
}

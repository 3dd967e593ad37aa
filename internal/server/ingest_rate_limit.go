package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cirrus/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cirrus/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	rateLimitReasonGlobalRate          = "global-rate"
	rateLimitReasonProviderRate        = "provider-rate"
	rateLimitReasonProviderConcurrency = "provider-concurrency"
)

type costIngestRateLimitKey struct {
	Provider string `json:"provider"`
}

func (s *Server) CostIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ingestLimiter == nil || !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.ingestLimiter.AllowGlobal(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("cost ingest global rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyCostIngestRateLimit(c, endpoint, rateLimitReasonGlobalRate, result.RetryAfter, s.obsMetrics)
			return
		}

		provider, err := readCostIngestProvider(c)
		if err != nil {
			logger.FromContext(ctx).Warn("cost ingest rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if provider != "" {
			result, err = s.ingestLimiter.AllowProvider(ctx, provider)
			if err != nil {
				logger.FromContext(ctx).Warn("cost ingest provider rate limit check failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !result.Allowed {
				denyCostIngestRateLimit(c, endpoint, rateLimitReasonProviderRate, result.RetryAfter, s.obsMetrics)
				return
			}

			lockToken, locked, err := s.ingestLimiter.TryLockProvider(ctx, provider)
			if err != nil {
				logger.FromContext(ctx).Warn("cost ingest concurrency lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !locked {
				denyCostIngestRateLimit(c, endpoint, rateLimitReasonProviderConcurrency, 0, s.obsMetrics)
				return
			}
			defer func() {
				if err := s.ingestLimiter.ReleaseProvider(ctx, provider, lockToken); err != nil {
					logger.FromContext(ctx).Warn("cost ingest concurrency unlock failed", zap.Error(err))
				}
			}()
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyCostIngestRateLimit(c *gin.Context, endpoint, reason string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("cost ingest rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	retrySeconds := int(retryAfter / time.Second)
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retrySeconds))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

// readCostIngestProvider peeks at the request body for the provider key and
// restores the body for the handler's bind.
func readCostIngestProvider(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload costIngestRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	return strings.TrimSpace(payload.Provider), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}

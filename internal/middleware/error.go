package middleware

import (
	"errors"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

const ContextBatchRejection = "batch_rejection"

type batchFailure struct {
	batchID  string
	failedOp int
}

// batchRejection is the body of a rejected batch: the ledger error plus the
// journaled batch id and the index of the operation that aborted it.
type batchRejection struct {
	*apperrors.AppError
	BatchID  string `json:"batch_id"`
	FailedOp int    `json:"failed_op"`
}

// RejectBatch attaches a ledger rejection for ErrorHandler to render with the
// batch it aborted.
func RejectBatch(c *gin.Context, batchID string, failedOp int, err error) {
	c.Set(ContextBatchRejection, batchFailure{batchID: batchID, failedOp: failedOp})
	AddAuditContext(c, model.AuditFailedOp, failedOp)
	c.Error(err)
}

// ErrorHandler renders the last error attached to the context. Ledger codes
// map to HTTP status through their error category. Nested instances are
// allowed: once one has written the response the outer ones stay silent.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError

		if !errors.As(err, &appErr) {
			// Unknown error, wrap as Internal
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"reason", appErr.Code,
			"client_ip", c.ClientIP(),
		}

		var body any = appErr
		if v, ok := c.Get(ContextBatchRejection); ok {
			failure := v.(batchFailure)
			logFields = append(logFields, "batch_id", failure.batchID, "failed_op", failure.failedOp)
			body = batchRejection{AppError: appErr, BatchID: failure.batchID, FailedOp: failure.failedOp}
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "Internal Server Error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		c.JSON(appErr.HTTPStatus, body)
	}
}

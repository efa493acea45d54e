package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrOrderNotFound 表示交易所查不到该订单号。
	ErrOrderNotFound = errors.New("exchange order not found")
)

// RejectionError 表示交易所明确拒绝了已提交的订单，
// Code 原样保留交易所错误码，供风控与状态机分类。
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exchange rejection (%s)", e.Code)
	}
	return fmt.Sprintf("exchange rejection (%s): %s", e.Code, e.Message)
}

// AsRejection 提取拒单错误。
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsRetryable 判断错误是否为可重试的传输类故障。
// 仅幂等查询可依据该结果重试，订单提交永远不自动重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}

// normalizeError 将 ccxt 错误归一化为引擎错误分类。
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ccxtErr *ccxt.Error
	if !errors.As(err, &ccxtErr) {
		return err
	}

	switch ccxtErr.Type {
	case ccxt.OnMaintenanceErrType:
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message)
	case ccxt.OrderNotFoundErrType:
		return fmt.Errorf("%w: %s", ErrOrderNotFound, ccxtErr.Message)
	}

	if IsRetryable(err) {
		return err
	}

	// 其余非传输类错误视为交易所拒绝，错误码原样透出。
	return &RejectionError{
		Code:    string(ccxtErr.Type),
		Message: strings.TrimSpace(ccxtErr.Message),
	}
}

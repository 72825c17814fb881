package binance

import (
	"net/http"

	"github.com/gregtusar/basisarb/pkg/models"
)

var balanceCodes = map[int]bool{
	-2010: true, // new order rejected, insufficient balance
	-2019: true, // margin is insufficient
	-3041: true, // balance is not enough
}

var retryCodes = map[int]bool{
	-1001: true,
	-1003: true,
	-1007: true,
	-1008: true,
	-3044: true,
	-3045: true,
}

var notAllowedCodes = map[int]bool{
	-1121: true, // invalid symbol
	-3021: true,
	-3027: true,
	-3028: true,
	-4140: true,
}

// classifyError maps an exchange rejection onto the failure categories the
// engine reasons about. Anything unrecognised is returned as the raw APIError.
func classifyError(e *models.APIError) error {
	switch {
	case balanceCodes[e.Code]:
		return &models.BalanceError{Code: e.Code, Message: e.Message}
	case retryCodes[e.Code]:
		return &models.ShouldRetryError{Code: e.Code, Message: e.Message}
	case notAllowedCodes[e.Code]:
		return &models.NotAllowedError{Code: e.Code, Message: e.Message}
	case e.Code == 0 && (e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500):
		return &models.ShouldRetryError{Code: e.Code, Message: e.Message}
	case e.Code == 0 && e.StatusCode == http.StatusForbidden:
		return &models.NotAllowedError{Code: e.Code, Message: e.Message}
	}
	return e
}

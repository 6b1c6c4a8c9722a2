package errors

import "net/http"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"

	ErrCodeOK      ErrorCode = "OK"
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// Contract module error codes.
const (
	ErrCodeContractNotFound       ErrorCode = "CTR_001"
	ErrCodeContractCancelled      ErrorCode = "CTR_002"
	ErrCodeNotACounterOffer       ErrorCode = "CTR_003"
	ErrCodeDanglingCounterOffer   ErrorCode = "CTR_004"
	ErrCodeDuplicateOfferNumber   ErrorCode = "CTR_005"
	ErrCodeTransactionNoRoot      ErrorCode = "CTR_006"
	ErrCodeMilestoneUnknown       ErrorCode = "CTR_007"
	ErrCodeMilestoneDateMissing   ErrorCode = "CTR_008"
	ErrCodeContractStatusInvalid  ErrorCode = "CTR_009"
	ErrCodeCounterOfferOnAmendment ErrorCode = "CTR_010"
)

// Document / extraction module error codes.
const (
	ErrCodeDocumentNotFound     ErrorCode = "XTR_001"
	ErrCodeDocumentTypeInvalid  ErrorCode = "XTR_002"
	ErrCodeExtractionFailed     ErrorCode = "XTR_003"
	ErrCodeExtractionTimeout    ErrorCode = "XTR_004"
	ErrCodeVerificationFailed   ErrorCode = "XTR_005"
	ErrCodeStorageError         ErrorCode = "XTR_006"
)

// Notification module error codes.
const (
	ErrCodeEmailSendFailed     ErrorCode = "NTF_001"
	ErrCodeEmailAddressInvalid ErrorCode = "NTF_002"
	ErrCodeNoEmailableContracts ErrorCode = "NTF_003"
	ErrCodeReminderConfigInvalid ErrorCode = "NTF_004"
)

// User / organization module error codes.
const (
	ErrCodeUserNotFound      ErrorCode = "USR_001"
	ErrCodeOrgNotFound       ErrorCode = "USR_002"
	ErrCodeNotOrgMember      ErrorCode = "USR_003"
	ErrCodeMemberAlreadyExists ErrorCode = "USR_004"
)

// errorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var errorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeContractNotFound:        http.StatusNotFound,
	ErrCodeContractCancelled:       http.StatusConflict,
	ErrCodeNotACounterOffer:        http.StatusBadRequest,
	ErrCodeDanglingCounterOffer:    http.StatusUnprocessableEntity,
	ErrCodeDuplicateOfferNumber:    http.StatusUnprocessableEntity,
	ErrCodeTransactionNoRoot:       http.StatusUnprocessableEntity,
	ErrCodeMilestoneUnknown:        http.StatusBadRequest,
	ErrCodeMilestoneDateMissing:    http.StatusBadRequest,
	ErrCodeContractStatusInvalid:   http.StatusBadRequest,
	ErrCodeCounterOfferOnAmendment: http.StatusBadRequest,

	ErrCodeDocumentNotFound:    http.StatusNotFound,
	ErrCodeDocumentTypeInvalid: http.StatusBadRequest,
	ErrCodeExtractionFailed:    http.StatusBadGateway,
	ErrCodeExtractionTimeout:   http.StatusGatewayTimeout,
	ErrCodeVerificationFailed:  http.StatusBadGateway,
	ErrCodeStorageError:        http.StatusInternalServerError,

	ErrCodeEmailSendFailed:       http.StatusBadGateway,
	ErrCodeEmailAddressInvalid:   http.StatusBadRequest,
	ErrCodeNoEmailableContracts:  http.StatusUnprocessableEntity,
	ErrCodeReminderConfigInvalid: http.StatusBadRequest,

	ErrCodeUserNotFound:        http.StatusNotFound,
	ErrCodeOrgNotFound:         http.StatusNotFound,
	ErrCodeNotOrgMember:        http.StatusForbidden,
	ErrCodeMemberAlreadyExists: http.StatusConflict,
}

// errorCodeMessage maps ErrorCodes to default messages.
var errorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeContractNotFound:        "contract not found",
	ErrCodeContractCancelled:       "contract is cancelled",
	ErrCodeNotACounterOffer:        "contract is not a counter-offer",
	ErrCodeDanglingCounterOffer:    "counter-offer references a missing original contract",
	ErrCodeDuplicateOfferNumber:    "duplicate counter-offer number within transaction",
	ErrCodeTransactionNoRoot:       "transaction has no root contract",
	ErrCodeMilestoneUnknown:        "unknown milestone type",
	ErrCodeMilestoneDateMissing:    "milestone has no date set",
	ErrCodeContractStatusInvalid:   "invalid contract status",
	ErrCodeCounterOfferOnAmendment: "counter-offers must reference a root contract",

	ErrCodeDocumentNotFound:    "document not found",
	ErrCodeDocumentTypeInvalid: "unsupported document type",
	ErrCodeExtractionFailed:    "document extraction failed",
	ErrCodeExtractionTimeout:   "document extraction timed out",
	ErrCodeVerificationFailed:  "extraction verification failed",
	ErrCodeStorageError:        "document storage error",

	ErrCodeEmailSendFailed:       "failed to send email",
	ErrCodeEmailAddressInvalid:   "invalid email address",
	ErrCodeNoEmailableContracts:  "no contracts eligible for email",
	ErrCodeReminderConfigInvalid: "invalid reminder configuration",

	ErrCodeUserNotFound:        "user not found",
	ErrCodeOrgNotFound:         "organization not found",
	ErrCodeNotOrgMember:        "not a member of the organization",
	ErrCodeMemberAlreadyExists: "user is already a member",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := errorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

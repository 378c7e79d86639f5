package response

var errorMessages = map[ErrCode]string{
	ErrCodeMalformedJSON:    "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:      "Request body error: %s",
	ErrCodeResourceExists:   "%s already exists.",
	ErrCodeResourceNotFound: "%s not found.",
	ErrCodeNotConnected:     "The device is not connected.",
	ErrCodeConnect:          "Unable to connect to the device: %s",
	ErrCodeDevice:           "The device request failed: %s",
	ErrCodeScanInProgress:   "A scan is already in progress.",
	ErrCodeAlreadyRunning:   "The %s task is already running.",
	ErrCodeInvalidRange:     "Invalid address range: %s",
	ErrCodeCountLimit:       "Point count exceeds the protocol limit: %s",
	ErrCodeInvalidValue:     "Invalid value: %s",
	ErrCodeInvalidSettings:  "Invalid settings: %s",
	ErrCodeStorage:          "Storage failure: %s",
	ErrCodeHostStats:        "Unable to read host statistics: %s",
	ErrCodeUnsupportedMedia: "Content-Type must be %s.",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errorMessages[ErrCodeMalformedJSON],
}

var ErrNotConnected = &responseError{
	Code:    ErrCodeNotConnected,
	Message: errorMessages[ErrCodeNotConnected],
}

var ErrScanInProgress = &responseError{
	Code:    ErrCodeScanInProgress,
	Message: errorMessages[ErrCodeScanInProgress],
}
